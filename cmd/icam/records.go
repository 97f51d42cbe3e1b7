package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/insectcam/internal/envelope"
	"github.com/alfredjeanlab/insectcam/internal/messages"
)

var sessionsCmd = &cobra.Command{
	Use:     "sessions",
	Short:   "List capture sessions",
	GroupID: "records",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		wait, _ := cmd.Flags().GetDuration("wait")
		ctx := cmd.Context()

		if err := camClient.SendTopic(ctx, envelope.TopicSessionAll); err != nil {
			return err
		}
		replies, err := camClient.Collect(ctx, wait, func(e envelope.Envelope) bool {
			return e.Topic == envelope.TopicSessionDetails
		})
		if err != nil {
			return err
		}

		var sessions []sessionView
		for _, e := range replies {
			d, err := messages.DecodeSessionDetails(e.Payload)
			if err != nil {
				return err
			}
			sessions = append(sessions, newSessionView(d))
		}
		printSessionTable(cmd.OutOrStdout(), sessions)
		return nil
	},
}

var detectionsCmd = &cobra.Command{
	Use:   "detections <session>",
	Short: "List the detections recorded in a session",
	Long: `List detections for every session whose id starts with <session>,
ordered by session and detection id. A full id names one session; a shorter
prefix such as 20261017 covers a whole day.`,
	GroupID: "records",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		wait, _ := cmd.Flags().GetDuration("wait")
		prefix := args[0]
		ctx := cmd.Context()

		env, err := envelope.New(envelope.TopicSessionDetections, messages.SessionRef{Session: prefix})
		if err != nil {
			return err
		}
		if err := camClient.Send(ctx, env); err != nil {
			return err
		}

		var detections []detectionView
		_, err = camClient.Collect(ctx, wait, func(e envelope.Envelope) bool {
			if e.Topic != envelope.TopicDetection {
				return false
			}
			d, err := messages.DecodeDetection(e.Payload)
			if err != nil || !strings.HasPrefix(d.Session, prefix) {
				return false
			}
			detections = append(detections, newDetectionView(d))
			return true
		})
		if err != nil {
			return err
		}
		printDetectionTable(cmd.OutOrStdout(), detections)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{sessionsCmd, detectionsCmd} {
		c.Flags().Duration("wait", 500*time.Millisecond, "stop collecting replies after this long without one")
	}
}

// errNoReply is returned when a query times out before any reply arrives.
func errNoReply(topic string) error {
	return fmt.Errorf("no %s reply from the appliance", topic)
}
