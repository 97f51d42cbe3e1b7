package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/insectcam/internal/envelope"
	"github.com/alfredjeanlab/insectcam/internal/messages"
)

// toggle describes one on/off feature driven through the state actor.
type toggle struct {
	name     string
	setTopic string
	getTopic string
	reply    string
}

var (
	captureToggle = toggle{
		name:     "capture",
		setTopic: envelope.TopicCaptureSet,
		getTopic: envelope.TopicCaptureGet,
		reply:    envelope.TopicCaptureState,
	}
	streamingToggle = toggle{
		name:     "streaming",
		setTopic: envelope.TopicStreamingSet,
		getTopic: envelope.TopicStreamingGet,
		reply:    envelope.TopicStreamingState,
	}
)

func (t toggle) command(short string) *cobra.Command {
	c := &cobra.Command{
		Use:       t.name + " on|off|get",
		Short:     short,
		GroupID:   "control",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"on", "off", "get"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			switch args[0] {
			case "on", "off":
				if err := camClient.SendState(ctx, t.setTopic, args[0] == "on"); err != nil {
					return err
				}
			case "get":
			default:
				return fmt.Errorf("unknown action %q (must be on, off or get)", args[0])
			}

			// A set that changes nothing publishes nothing, so always ask.
			if err := camClient.SendTopic(ctx, t.getTopic); err != nil {
				return err
			}
			wait, _ := cmd.Flags().GetDuration("wait")
			replies, err := camClient.Collect(ctx, wait, func(e envelope.Envelope) bool {
				return e.Topic == t.reply
			})
			if err != nil {
				return err
			}
			if len(replies) == 0 {
				return errNoReply(t.reply)
			}
			on, err := messages.DecodeState(replies[len(replies)-1].Payload)
			if err != nil {
				return err
			}
			if jsonOutput {
				printJSON(cmd.OutOrStdout(), map[string]bool{t.name: on})
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", t.name, onOff(on))
			return nil
		},
	}
	c.Flags().Duration("wait", 500*time.Millisecond, "how long to wait for the state reply")
	return c
}

var (
	captureCmd   = captureToggle.command("Turn capture on or off (opens a session when turned on)")
	streamingCmd = streamingToggle.command("Turn streaming on or off")
)
