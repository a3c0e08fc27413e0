package mcpclient

import "context"

// Transport is a duplex, message-framed channel bound to one server. The
// connection engine consumes exactly these operations and signals; see spec
// §4.3. Concrete implementations (child-process stdio, HTTP+SSE) live in
// sibling transport/* packages and depend only on this interface.
//
// Implementations must guarantee sequential delivery of inbound messages (no
// reordering) and at-most-once delivery of each lifecycle signal per
// connection attempt.
type Transport interface {
	// Connect establishes the channel. It must not return until the channel
	// is usable for Send/Messages, or return a *TransportError otherwise.
	Connect(ctx context.Context) error

	// Send hands one encoded message to the channel. A nil error means
	// "accepted for transmission," not "delivered."
	Send(ctx context.Context, msg Message) error

	// Close initiates shutdown. Idempotent. Must eventually cause Closed()
	// to produce a value (or be closed).
	Close() error

	// Messages yields one fully decoded inbound message per receive, in the
	// order the transport received them.
	Messages() <-chan Message

	// Errors yields a non-recoverable transport fault. The transport must
	// also signal Closed afterwards.
	Errors() <-chan error

	// Closed yields (at most once) when the channel is no longer usable,
	// optionally carrying a reason.
	Closed() <-chan string

	// Stderr yields advisory out-of-band diagnostic text (transport/stdio
	// forwards the child's stderr lines; transport/sse forwards SSE events of
	// unrecognised type; implementations with no such channel may return a
	// channel that never yields).
	Stderr() <-chan []byte
}
