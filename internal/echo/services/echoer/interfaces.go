package echoer

import "net"

// HitCounter is the shared path access counter consulted on every request.
type HitCounter interface {
	// Hit increments the count for path iff an entry exists and reports
	// whether it did.
	Hit(path string) (uint64, bool)

	// Insert records a completed first-time request, incrementing instead
	// if a racing miss inserted the entry first.
	Insert(path string) uint64
}

// Blocklist decides whether a path may be served at all.
type Blocklist interface {
	Blocked(path string) bool
}

// ConnHandler is implemented by the service layer and driven by the
// transport: one live connection in, exactly one response out, connection
// closed before return.
type ConnHandler interface {
	Handle(conn net.Conn) error
}
