package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "convrelayctl",
	Short: "Conversion pipeline CLI",
	Long: `convrelayctl is the command-line interface for the conversion relay.

Send test events to the ingress API and seed the pipeline with realistic
fake traffic for local development.`,
	Version: "0.1.0",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("ingress-url", "http://localhost:3000", "Ingress service URL")
	rootCmd.PersistentFlags().String("api-key", "", "API key for the ingress (X-API-Key header)")
}
