// Package main implements the quill CLI: a human-governed content drafting
// workflow served over chat gateways and HTTP, or driven from the console.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	version    = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "quill",
	Short: "Research, plan, draft and polish content with a human in the loop",
	Long: `quill routes each request either to a direct answer or through a
research, plan, step-by-step drafting and polish workflow. Every checkpoint
waits for a human reply: "approve" (or nothing) moves on, anything else is
feedback for the next attempt.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the quill version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "quill", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to the YAML config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}
