package events

// Subscriber follows mirrored events.
type Subscriber interface {
	// Subscribe delivers messages on the returned channel. Call the returned
	// cancel function to unsubscribe and close the channel.
	Subscribe(subject string) (<-chan Message, func(), error)
	Close() error
}

// Compile-time checks.
var (
	_ Publisher  = NoopPublisher{}
	_ Publisher  = (*NATSPublisher)(nil)
	_ Subscriber = (*NATSSubscriber)(nil)
)
