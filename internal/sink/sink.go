// Package sink delivers chunks of completed pulses to their destination:
// a raw byte stream (file, stdout, or TCP) or the capture database.
package sink

import "github.com/lingx107/digdar/internal/pulse"

// Sink receives pulse chunks from the consumer loop. Implementations are
// driven by one goroutine; records and their sample storage are only
// valid for the duration of the call.
type Sink interface {
	WriteChunk(records []pulse.Record) error
	Close() error
}

// StatsSink receives delivery counts from sink implementations.
type StatsSink interface {
	AddSinkBytes(n int)
	AddSinkRetry()
}

type noopStats struct{}

func (noopStats) AddSinkBytes(int) {}
func (noopStats) AddSinkRetry()    {}
