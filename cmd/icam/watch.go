package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/insectcam/internal/envelope"
	"github.com/alfredjeanlab/insectcam/internal/events"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print events as the appliance publishes them",
	Long: `Print events until interrupted. By default events are read from the
gateway websocket, which only serves one client at a time. With --nats the
events are read from the NATS mirror instead, so any number of watchers can
run alongside the gateway client.`,
	GroupID: "records",
	Args:    cobra.NoArgs,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if natsURL(cmd) != "" {
			return nil
		}
		return connect(cmd, args)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		topics, _ := cmd.Flags().GetStringSlice("topics")
		keep := func(topic string) bool {
			return len(topics) == 0 || slices.Contains(topics, topic)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if url := natsURL(cmd); url != "" {
			prefix, _ := cmd.Flags().GetString("nats-prefix")
			return watchNATS(ctx, cmd, url, prefix, keep)
		}
		for {
			env, err := camClient.Recv(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			if keep(env.Topic) {
				printEvent(cmd.OutOrStdout(), env)
			}
		}
	},
}

func natsURL(cmd *cobra.Command) string {
	if u, _ := cmd.Flags().GetString("nats"); u != "" {
		return u
	}
	if cmd.Flags().Changed("nats") {
		return ""
	}
	return activeRemote().NATSURL
}

// watchNATS follows the event mirror on <prefix>.>.
func watchNATS(ctx context.Context, cmd *cobra.Command, url, prefix string, keep func(string) bool) error {
	sub, err := events.NewNATSSubscriber(url,
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("nats: disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Printf("nats: reconnected")
		}),
	)
	if err != nil {
		return fmt.Errorf("connecting to NATS: %w", err)
	}
	defer sub.Close()

	ch, cancel, err := sub.Subscribe(prefix + ".>")
	if err != nil {
		return fmt.Errorf("subscribing to events: %w", err)
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			env := envelope.Envelope{Topic: events.Topic(prefix, msg.Subject), Payload: msg.Payload}
			if keep(env.Topic) {
				printEvent(cmd.OutOrStdout(), env)
			}
		}
	}
}

func init() {
	watchCmd.Flags().StringSlice("topics", nil, "only print these event topics")
	watchCmd.Flags().String("nats", "", "read events from this NATS server (default: the active remote's)")
	watchCmd.Flags().String("nats-prefix", events.DefaultPrefix, "subject prefix the appliance mirrors events under")
}
