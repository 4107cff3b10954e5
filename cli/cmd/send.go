package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/convrelay/convrelay/cli/internal/client"
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a single event",
	Long:  "Send a single conversion event to the ingress service",
	Example: `  convrelayctl send --name Lead --email maria@example.com
  convrelayctl send --json '{"event_name":"Purchase","value":149.9,"currency":"BRL"}'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		email, _ := cmd.Flags().GetString("email")
		eventID, _ := cmd.Flags().GetString("event-id")
		value, _ := cmd.Flags().GetFloat64("value")
		jsonData, _ := cmd.Flags().GetString("json")

		var event map[string]any
		if jsonData != "" {
			if err := json.Unmarshal([]byte(jsonData), &event); err != nil {
				return fmt.Errorf("invalid --json payload: %w", err)
			}
		} else {
			if name == "" {
				return fmt.Errorf("either --name or --json is required")
			}
			event = map[string]any{"event_name": name}
			if email != "" {
				event["email"] = email
			}
			if eventID != "" {
				event["event_id"] = eventID
			}
			if value > 0 {
				event["value"] = value
			}
		}

		ingressURL, _ := cmd.Flags().GetString("ingress-url")
		apiKey, _ := cmd.Flags().GetString("api-key")
		ingress := client.NewIngressClient(ingressURL, apiKey)

		if err := ingress.SendEvent(event); err != nil {
			return fmt.Errorf("failed to send event: %w", err)
		}

		fmt.Println("Event queued")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().StringP("name", "n", "", "Event name (e.g. Lead, Purchase)")
	sendCmd.Flags().String("email", "", "Contact email")
	sendCmd.Flags().String("event-id", "", "Explicit event id for deduplication")
	sendCmd.Flags().Float64("value", 0, "Event value")
	sendCmd.Flags().String("json", "", "Raw JSON event payload")
}
