package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/convrelay/convrelay/cli/internal/client"
	"github.com/convrelay/convrelay/cli/internal/seeder"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the pipeline with fake events",
	Long:  "Generate realistic fake conversion events and send them through the ingress",
	Example: `  convrelayctl seed --count 50
  convrelayctl seed --count 200 --interval 100ms`,
	RunE: func(cmd *cobra.Command, args []string) error {
		count, _ := cmd.Flags().GetInt("count")
		interval, _ := cmd.Flags().GetDuration("interval")

		ingressURL, _ := cmd.Flags().GetString("ingress-url")
		apiKey, _ := cmd.Flags().GetString("api-key")
		ingress := client.NewIngressClient(ingressURL, apiKey)

		if err := ingress.Health(); err != nil {
			return fmt.Errorf("ingress not reachable: %w", err)
		}

		sent := 0
		for i := 0; i < count; i++ {
			event := seeder.Event(time.Now())
			if err := ingress.SendEvent(event); err != nil {
				fmt.Printf("event %d failed: %v\n", i+1, err)
				continue
			}
			sent++
			if interval > 0 && i < count-1 {
				time.Sleep(interval)
			}
		}

		fmt.Printf("Seeded %d/%d events\n", sent, count)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)

	seedCmd.Flags().IntP("count", "c", 10, "Number of events to generate")
	seedCmd.Flags().Duration("interval", 0, "Pause between events")
}
