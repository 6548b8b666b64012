package frame

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

const headerLength = 4

// MaxInboundLength caps the size of a frame accepted from the browser.
const MaxInboundLength = 64 * 1024 * 1024

// MaxOutboundLength is the largest message the browser accepts from a host.
const MaxOutboundLength = 1024 * 1024

// ErrFrameTooLarge is returned by WriteFrame when the encoded body exceeds
// MaxOutboundLength.
var ErrFrameTooLarge = errors.New("frame exceeds maximum outbound length")

// Reader decodes frames from an input stream.
type Reader struct {
	r    *bufio.Reader
	last error
}

// NewReader wraps r for frame decoding.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// ReadFrame blocks until one frame has been decoded into v. It returns false
// at end of stream and on any malformed input; Err reports which.
func (fr *Reader) ReadFrame(v any) bool {
	body, err := fr.readBody()
	if err != nil {
		fr.last = err
		return false
	}
	if err := decodeSingle(body, v); err != nil {
		fr.last = err
		return false
	}
	return true
}

// Err returns the condition that ended the stream. It is nil after a clean
// end of stream.
func (fr *Reader) Err() error {
	if errors.Is(fr.last, io.EOF) {
		return nil
	}
	return fr.last
}

func (fr *Reader) readBody() ([]byte, error) {
	var header [headerLength]byte
	if _, err := io.ReadFull(fr.r, header[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("read frame header: %w", err)
		}
		return nil, err
	}
	length := binary.LittleEndian.Uint32(header[:])
	if length == 0 {
		return nil, errors.New("read frame: empty body")
	}
	if length > MaxInboundLength {
		return nil, fmt.Errorf("read frame: length %d exceeds maximum %d", length, MaxInboundLength)
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(fr.r, body); err != nil {
		return nil, fmt.Errorf("read frame body: %w", err)
	}
	return body, nil
}

func decodeSingle(body []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("decode frame: trailing data after JSON value")
	}
	return nil
}

// Writer encodes frames onto an output stream.
type Writer struct {
	mu sync.Mutex
	w  *bufio.Writer
}

// NewWriter wraps w for frame encoding.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// WriteFrame serializes v and writes it as one length-prefixed frame.
func (fw *Writer) WriteFrame(v any) error {
	frame, err := Encode(v)
	if err != nil {
		return err
	}
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if _, err := fw.w.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	if err := fw.w.Flush(); err != nil {
		return fmt.Errorf("flush frame: %w", err)
	}
	return nil
}

// Encode returns the complete wire representation of v, header included.
func Encode(v any) ([]byte, error) {
	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	payload := bytes.TrimSuffix(body.Bytes(), []byte{'\n'})
	if len(payload) > MaxOutboundLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}
	out := make([]byte, headerLength+len(payload))
	binary.LittleEndian.PutUint32(out[:headerLength], uint32(len(payload)))
	copy(out[headerLength:], payload)
	return out, nil
}
