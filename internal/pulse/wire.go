package pulse

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/lingx107/digdar/internal/adc"
)

// Stream wire format: a one-line JSON header identifying the stream,
// followed by length-prefixed little-endian records (metadata block, then
// the sample window). Both the raw sink and the pulseview tool speak it.
const (
	Magic   = "DGPU"
	Version = 1

	metaWireSize = 80
	maxFrameLen  = metaWireSize + 2*16384 // metadata plus a full window
)

// StreamHeader opens a pulse stream and fixes its geometry.
type StreamHeader struct {
	Magic   string `json:"magic"`
	Version int    `json:"version"`
	TickHz  int64  `json:"tick_hz"`
	Decim   int    `json:"decim"`
	NS      int    `json:"ns"`
}

// NewStreamHeader fills the identifying fields for a stream with the
// given capture geometry.
func NewStreamHeader(decim, ns int) StreamHeader {
	return StreamHeader{
		Magic:   Magic,
		Version: Version,
		TickHz:  adc.TickHz,
		Decim:   decim,
		NS:      ns,
	}
}

// WriteStreamHeader writes the header as one JSON line.
func WriteStreamHeader(w io.Writer, h StreamHeader) error {
	b, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("failed to marshal stream header: %w", err)
	}
	b = append(b, '\n')
	if _, err := w.Write(b); err != nil {
		return fmt.Errorf("failed to write stream header: %w", err)
	}
	return nil
}

// ReadStreamHeader reads and validates the opening JSON line.
func ReadStreamHeader(br *bufio.Reader) (StreamHeader, error) {
	var h StreamHeader
	line, err := br.ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("failed to read stream header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("failed to parse stream header: %w", err)
	}
	if h.Magic != Magic {
		return h, fmt.Errorf("bad stream magic %q, want %q", h.Magic, Magic)
	}
	if h.Version != Version {
		return h, fmt.Errorf("unsupported stream version %d", h.Version)
	}
	return h, nil
}

// EncodedSize returns the framed byte length of a record with ns samples.
func EncodedSize(ns int) int {
	return 4 + metaWireSize + 2*ns
}

// AppendRecord appends one length-prefixed record frame to dst.
func AppendRecord(dst []byte, rec *Record) []byte {
	payload := metaWireSize + 2*len(rec.Samples)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(payload))
	dst = appendMeta(dst, &rec.Meta)
	for _, s := range rec.Samples {
		dst = binary.LittleEndian.AppendUint16(dst, uint16(s))
	}
	return dst
}

// ReadRecord reads the next frame into rec, reusing rec.Samples storage.
// It returns io.EOF at a clean stream boundary and io.ErrUnexpectedEOF on
// a truncated frame.
func ReadRecord(br *bufio.Reader, rec *Record) error {
	var lenBuf [4]byte
	if _, err := io.ReadFull(br, lenBuf[:]); err != nil {
		if err == io.EOF {
			return io.EOF
		}
		return fmt.Errorf("failed to read frame length: %w", err)
	}
	payload := int(binary.LittleEndian.Uint32(lenBuf[:]))
	if payload < metaWireSize || payload > maxFrameLen || (payload-metaWireSize)%2 != 0 {
		return fmt.Errorf("bad frame length %d", payload)
	}

	buf := make([]byte, payload)
	if _, err := io.ReadFull(br, buf); err != nil {
		return fmt.Errorf("failed to read frame body: %w", err)
	}

	rec.Meta = decodeMeta(buf)
	ns := (payload - metaWireSize) / 2
	if cap(rec.Samples) < ns {
		rec.Samples = make([]adc.Sample, ns)
	} else {
		rec.Samples = rec.Samples[:ns]
	}
	for i := 0; i < ns; i++ {
		rec.Samples[i] = adc.Sample(binary.LittleEndian.Uint16(buf[metaWireSize+2*i:]))
	}
	return nil
}

func appendMeta(dst []byte, m *Metadata) []byte {
	dst = binary.LittleEndian.AppendUint64(dst, m.TrigClock)
	dst = binary.LittleEndian.AppendUint64(dst, m.TrigCount)
	dst = binary.LittleEndian.AppendUint64(dst, m.ACPCount)
	dst = binary.LittleEndian.AppendUint64(dst, m.ACPClock)
	dst = binary.LittleEndian.AppendUint64(dst, m.ARPCount)
	dst = binary.LittleEndian.AppendUint64(dst, m.ARPClock)
	dst = binary.LittleEndian.AppendUint32(dst, m.ACPPerARP)
	dst = binary.LittleEndian.AppendUint64(dst, m.ACPAtARP)
	dst = binary.LittleEndian.AppendUint64(dst, m.TrigAtARP)
	dst = binary.LittleEndian.AppendUint32(dst, m.TicksSinceACPAtARP)
	var wall int64
	if !m.ARPWall.IsZero() {
		wall = m.ARPWall.UnixNano()
	}
	dst = binary.LittleEndian.AppendUint64(dst, uint64(wall))
	return dst
}

func decodeMeta(b []byte) Metadata {
	var m Metadata
	m.TrigClock = binary.LittleEndian.Uint64(b[0:])
	m.TrigCount = binary.LittleEndian.Uint64(b[8:])
	m.ACPCount = binary.LittleEndian.Uint64(b[16:])
	m.ACPClock = binary.LittleEndian.Uint64(b[24:])
	m.ARPCount = binary.LittleEndian.Uint64(b[32:])
	m.ARPClock = binary.LittleEndian.Uint64(b[40:])
	m.ACPPerARP = binary.LittleEndian.Uint32(b[48:])
	m.ACPAtARP = binary.LittleEndian.Uint64(b[52:])
	m.TrigAtARP = binary.LittleEndian.Uint64(b[60:])
	m.TicksSinceACPAtARP = binary.LittleEndian.Uint32(b[68:])
	if wall := int64(binary.LittleEndian.Uint64(b[72:])); wall != 0 {
		m.ARPWall = time.Unix(0, wall)
	}
	return m
}

// AppendSampleBytes appends the window as little-endian 16-bit words,
// the layout structured stores keep in their sample blobs.
func AppendSampleBytes(dst []byte, samples []adc.Sample) []byte {
	for _, s := range samples {
		dst = binary.LittleEndian.AppendUint16(dst, uint16(s))
	}
	return dst
}
