package events

import (
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
)

// startTestNATS starts an embedded NATS server and returns its client URL.
func startTestNATS(t *testing.T) string {
	t.Helper()
	opts := &natsserver.Options{Host: "127.0.0.1", Port: -1}
	srv, err := natsserver.NewServer(opts)
	if err != nil {
		t.Fatalf("starting embedded NATS: %v", err)
	}
	srv.Start()
	t.Cleanup(srv.Shutdown)
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("embedded NATS not ready")
	}
	return srv.ClientURL()
}

func TestNATSSubscriber_ReceivesMessages(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	sub, err := NewNATSSubscriber(url)
	if err != nil {
		t.Fatalf("creating subscriber: %v", err)
	}
	defer sub.Close()

	ch, cancel, err := sub.Subscribe(DefaultPrefix + ".>")
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer cancel()

	if err := pub.conn.Publish("insectcam.session.opened", []byte{0x0A, 0x01, '1'}); err != nil {
		t.Fatalf("publishing: %v", err)
	}
	pub.Flush()

	select {
	case msg := <-ch:
		if msg.Subject != "insectcam.session.opened" || len(msg.Payload) != 3 {
			t.Errorf("got %+v", msg)
		}
		if got := Topic(DefaultPrefix, msg.Subject); got != "session.opened" {
			t.Errorf("Topic = %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestNATSSubscriber_CancelClosesChannel(t *testing.T) {
	url := startTestNATS(t)
	sub, err := NewNATSSubscriber(url)
	if err != nil {
		t.Fatalf("creating subscriber: %v", err)
	}
	defer sub.Close()

	ch, cancel, err := sub.Subscribe("insectcam.>")
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	cancel()
	cancel() // idempotent

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("received a message after cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestNATSSubscriber_BadURL(t *testing.T) {
	if _, err := NewNATSSubscriber("nats://127.0.0.1:1", nil...); err == nil {
		t.Fatal("expected connection error")
	}
}
