package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/insectcam/internal/client"
	"github.com/alfredjeanlab/insectcam/internal/ui"
)

var (
	serverURL  string
	jsonOutput bool
	noColor    bool

	camClient *client.Client
)

func defaultURL() string {
	if s := os.Getenv("ICAM_URL"); s != "" {
		return s
	}
	if u := activeRemote().URL; u != "" {
		return u
	}
	return client.DefaultURL
}

// connect dials the gateway for commands that talk to a running appliance.
func connect(cmd *cobra.Command, args []string) error {
	if noColor || !ui.ShouldUseColor(cmd.OutOrStdout()) {
		ui.ForceNoColor()
	}
	c, err := client.Dial(cmd.Context(), serverURL)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", serverURL, err)
	}
	camClient = c
	return nil
}

// offline skips the gateway dial for commands that only touch local state.
func offline(cmd *cobra.Command, args []string) error { return nil }

var rootCmd = &cobra.Command{
	Use:               "icam <command>",
	Short:             "Control plane for the insect camera appliance",
	SilenceUsage:      true,
	PersistentPreRunE: connect,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if camClient != nil {
			camClient.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "url", defaultURL(), "gateway websocket URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddGroup(
		&cobra.Group{ID: "control", Title: "Control:"},
		&cobra.Group{ID: "records", Title: "Records:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false
	rootCmd.SetHelpFunc(colorizedHelpFunc())

	// Control
	rootCmd.AddCommand(captureCmd)
	rootCmd.AddCommand(streamingCmd)
	rootCmd.AddCommand(sendCmd)

	// Records
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(detectionsCmd)
	rootCmd.AddCommand(watchCmd)

	// System
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(remoteCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
