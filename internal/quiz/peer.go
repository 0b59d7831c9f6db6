package quiz

// Peer is the engine-side handle to one connected student.
//
// The engine fans out from its own goroutine and must never stall on a slow
// peer: Send either queues the message and returns true, or returns false
// immediately. A false return means the peer is overloaded or dead; the
// peer is expected to tear itself down in that case.
type Peer interface {
	Send(v any) bool

	// Stop closes the peer with a normal close frame carrying reason.
	// It must not block the caller.
	Stop(reason string)
}
