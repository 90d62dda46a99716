// Package stats fetches ISP statistics buffers and re-aligns them with
// the frame sequence published by the SOF events.
package stats

import (
	"encoding/binary"
	"fmt"

	"github.com/tamzrod/isp-controlloop/internal/isp"
)

// Measurement type bits in the buffer header.
const (
	MeasAWB     uint32 = 1 << 0
	MeasAE      uint32 = 1 << 1
	MeasAF      uint32 = 1 << 2
	MeasHist    uint32 = 1 << 3
	MeasEmbData uint32 = 1 << 4
)

const headerSize = 8 // meas_type, frame_id

// Layout describes the statistics buffer: a header, the measurement
// block and an optional trailing embedded-data block.
type Layout struct {
	MeasSize     int
	EmbeddedSize int
}

// DefaultLayout is the statistics buffer of the v1.x ISP.
var DefaultLayout = Layout{MeasSize: 124, EmbeddedSize: 64}

// Record is one statistics frame as handed to the analyzer.
type Record struct {
	FrameID     uint32
	CaptureTime int64 // monotonic nanoseconds
	MeasType    uint32

	Measurements []byte
	Embedded     []byte

	// Sequence is the SOF sequence the record was accepted against.
	Sequence uint32
	// Late is set when the record arrived behind the SOF sequence.
	Late bool
}

// decode copies buf into rec, reusing rec's slices. The embedded block
// is copied only when the buffer's measurement type flags it; otherwise
// rec.Embedded is left empty.
func (l Layout) decode(buf isp.StatsBuffer, rec *Record) error {
	need := headerSize + l.MeasSize
	if len(buf.Data) < need {
		return &isp.BufferError{Op: "decode", Err: fmt.Errorf("buffer %d: %d bytes, need %d", buf.Index, len(buf.Data), need)}
	}
	rec.MeasType = binary.LittleEndian.Uint32(buf.Data[0:4])
	rec.FrameID = buf.FrameID
	rec.CaptureTime = buf.Timestamp
	rec.Late = false
	rec.Measurements = append(rec.Measurements[:0], buf.Data[headerSize:need]...)
	rec.Embedded = rec.Embedded[:0]

	if rec.MeasType&MeasEmbData == 0 || l.EmbeddedSize == 0 {
		return nil
	}
	if len(buf.Data) < need+l.EmbeddedSize {
		return &isp.BufferError{Op: "decode", Err: fmt.Errorf("buffer %d: embedded data flagged but only %d bytes", buf.Index, len(buf.Data))}
	}
	rec.Embedded = append(rec.Embedded, buf.Data[need:need+l.EmbeddedSize]...)
	return nil
}
