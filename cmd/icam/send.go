package main

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/insectcam/internal/envelope"
	"github.com/alfredjeanlab/insectcam/internal/messages"
)

var sendCmd = &cobra.Command{
	Use:   "send <topic>",
	Short: "Send one command envelope to the appliance",
	Long: `Send one command envelope. The payload is built from at most one of
--bool (a State payload), --session (a SessionRef payload) or --raw (hex bytes).
Without any of them the payload is empty.`,
	GroupID: "control",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := buildEnvelope(cmd, args[0])
		if err != nil {
			return err
		}
		if err := camClient.Send(cmd.Context(), env); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "sent %s\n", env)
		return nil
	},
}

func buildEnvelope(cmd *cobra.Command, topic string) (envelope.Envelope, error) {
	flags := cmd.Flags()
	set := 0
	for _, name := range []string{"bool", "session", "raw"} {
		if flags.Changed(name) {
			set++
		}
	}
	if set > 1 {
		return envelope.Envelope{}, fmt.Errorf("--bool, --session and --raw are mutually exclusive")
	}

	switch {
	case flags.Changed("bool"):
		on, _ := flags.GetBool("bool")
		return envelope.New(topic, messages.State{State: on})
	case flags.Changed("session"):
		id, _ := flags.GetString("session")
		return envelope.New(topic, messages.SessionRef{Session: id})
	case flags.Changed("raw"):
		s, _ := flags.GetString("raw")
		payload, err := hex.DecodeString(s)
		if err != nil {
			return envelope.Envelope{}, fmt.Errorf("--raw: %w", err)
		}
		return envelope.Envelope{Topic: topic, Payload: payload}, nil
	}
	return envelope.Envelope{Topic: topic}, nil
}

func init() {
	sendCmd.Flags().Bool("bool", false, "send a State payload with this value")
	sendCmd.Flags().String("session", "", "send a SessionRef payload naming this session")
	sendCmd.Flags().String("raw", "", "send these hex-encoded payload bytes")
}
