// Package progress renders multi-bar transfer progress.
package progress

// Sink receives byte-count deltas from a transfer in flight.
// Implementations must be safe for concurrent use; the multipart engine
// calls Add from every worker.
type Sink interface {
	Add(delta int64)
}

// Discard drops all updates. Used for silent transfers and tests.
var Discard Sink = discardSink{}

type discardSink struct{}

func (discardSink) Add(int64) {}
