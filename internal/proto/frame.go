package proto

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
)

// Frames are a 4-byte big-endian unsigned length prefix followed by
// exactly that many bytes of UTF-8 JSON encoding one Record.
const lengthPrefixSize = 4

var (
	// ErrFrameTooLarge indicates a frame body over the configured maximum.
	// Connection-fatal for the offending connection only.
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")
	// ErrZeroLengthFrame indicates a zero length prefix. Connection-fatal.
	ErrZeroLengthFrame = errors.New("zero-length frame")
	// ErrMalformedRecord indicates a complete frame whose body is not a
	// valid record. Connection-fatal.
	ErrMalformedRecord = errors.New("malformed record")
)

// Encode serializes a record into a self-delimited frame. maxFrame
// bounds the encoded body size; zero means no bound.
func Encode(rec *Record, maxFrame int) ([]byte, error) {
	body, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	if maxFrame > 0 && len(body) > maxFrame {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(body))
	}
	frame := make([]byte, lengthPrefixSize+len(body))
	binary.BigEndian.PutUint32(frame, uint32(len(body)))
	copy(frame[lengthPrefixSize:], body)
	return frame, nil
}

// Decoder reassembles records from an arbitrarily segmented byte
// stream. Feed appends raw bytes; Next drains complete frames one at a
// time, holding any trailing partial frame until more bytes arrive.
type Decoder struct {
	maxFrame int
	buf      []byte
}

// NewDecoder builds a decoder enforcing the given maximum frame size.
// Zero disables the bound.
func NewDecoder(maxFrame int) *Decoder {
	return &Decoder{maxFrame: maxFrame}
}

// Feed appends bytes read from the transport.
func (d *Decoder) Feed(p []byte) {
	d.buf = append(d.buf, p...)
}

// Next returns the next complete record, or (nil, nil) when the buffer
// holds only a partial frame. A short read is never an error; the
// errors it does return are protocol violations that must terminate
// the connection.
func (d *Decoder) Next() (*Record, error) {
	if len(d.buf) < lengthPrefixSize {
		return nil, nil
	}
	length := binary.BigEndian.Uint32(d.buf)
	if length == 0 {
		return nil, ErrZeroLengthFrame
	}
	if d.maxFrame > 0 && int(length) > d.maxFrame {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
	}
	total := lengthPrefixSize + int(length)
	if len(d.buf) < total {
		return nil, nil
	}

	var rec Record
	if err := json.Unmarshal(d.buf[lengthPrefixSize:total], &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	d.buf = d.buf[total:]
	return &rec, nil
}

// Buffered reports how many bytes are waiting for a complete frame.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}
