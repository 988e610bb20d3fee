package sink

import (
	"fmt"
	"io"
	"net"

	"github.com/lingx107/digdar/internal/pulse"
)

// Raw streams length-prefixed pulse records to a byte sink, opening the
// stream with its JSON header. Partial writes are retried while progress
// continues; a write that makes no progress is fatal and surfaces to the
// consumer loop.
type Raw struct {
	w      io.Writer
	buf    []byte
	stats  StatsSink
	closed bool
}

// NewRaw writes the stream header to w and returns the sink. If w also
// implements io.Closer, Close closes it.
func NewRaw(w io.Writer, hdr pulse.StreamHeader, stats StatsSink) (*Raw, error) {
	if stats == nil {
		stats = noopStats{}
	}
	if err := pulse.WriteStreamHeader(w, hdr); err != nil {
		return nil, err
	}
	return &Raw{w: w, stats: stats}, nil
}

// DialRaw connects to a TCP listener and opens a pulse stream on it.
func DialRaw(addr string, hdr pulse.StreamHeader, stats StatsSink) (*Raw, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	s, err := NewRaw(conn, hdr, stats)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// WriteChunk frames and writes each record contiguously.
func (s *Raw) WriteChunk(records []pulse.Record) error {
	for i := range records {
		s.buf = pulse.AppendRecord(s.buf[:0], &records[i])
		if err := s.writeFull(s.buf); err != nil {
			return err
		}
	}
	return nil
}

func (s *Raw) writeFull(p []byte) error {
	for len(p) > 0 {
		n, err := s.w.Write(p)
		if n > 0 {
			s.stats.AddSinkBytes(n)
			p = p[n:]
		}
		switch {
		case err == nil && n == 0:
			return fmt.Errorf("raw sink write: %w", io.ErrShortWrite)
		case err != nil && n == 0:
			return fmt.Errorf("raw sink write: %w", err)
		case err != nil:
			// Partial progress: keep going with the remainder.
			s.stats.AddSinkRetry()
		}
	}
	return nil
}

// Close closes the underlying writer when it is closable.
func (s *Raw) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if c, ok := s.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
