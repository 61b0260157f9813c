package transport

// Transport defines a generic interface for pushing engine data to
// external consumers. Implementations should be thread-safe.
type Transport interface {
	Send(payload []byte) error
	Close() error
}

// GraphHandler is called with each encoded graph snapshot received
// from a client. Returning an error rejects the snapshot; the error
// text is reported back to the submitting session.
type GraphHandler func(payload []byte) error
