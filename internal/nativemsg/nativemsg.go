// Package nativemsg implements the browser native-messaging framing: a 4-byte
// little-endian length followed by a UTF-8 JSON payload, in both directions.
package nativemsg

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

// DefaultMaxMessageBytes bounds a single incoming frame.
const DefaultMaxMessageBytes = 64 << 20

// ErrMessageTooLarge is returned for frames over the configured limit.
var ErrMessageTooLarge = errors.New("native message exceeds size limit")

// Reader decodes frames from the peer.
type Reader struct {
	r        io.Reader
	maxBytes int
	header   [4]byte
}

// NewReader reads frames from r, rejecting any larger than maxBytes.
func NewReader(r io.Reader, maxBytes int) *Reader {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxMessageBytes
	}
	return &Reader{r: r, maxBytes: maxBytes}
}

// Read blocks for the next frame and decodes it into v. It returns io.EOF when
// the peer closed the pipe before a new frame started.
func (r *Reader) Read(v any) error {
	payload, err := r.ReadRaw()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("decode native message: %w", err)
	}
	return nil
}

// ReadRaw returns the next frame's payload without decoding it.
func (r *Reader) ReadRaw() ([]byte, error) {
	n, err := io.ReadFull(r.r, r.header[:])
	if err != nil {
		if n == 0 && (errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read native message header: %w", err)
	}
	length := binary.LittleEndian.Uint32(r.header[:])
	if uint64(length) > uint64(r.maxBytes) {
		return nil, fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, length)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r.r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("read native message body: %w", err)
	}
	return payload, nil
}

// Writer encodes frames to the peer. It is safe for concurrent use.
type Writer struct {
	mu sync.Mutex
	w  *bufio.Writer
}

// NewWriter frames messages onto w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// Write encodes v and flushes the frame so the peer sees it immediately.
func (w *Writer) Write(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode native message: %w", err)
	}
	if uint64(len(payload)) > uint64(^uint32(0)) {
		return fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, len(payload))
	}
	var header [4]byte
	binary.LittleEndian.PutUint32(header[:], uint32(len(payload)))

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.w.Write(header[:]); err != nil {
		return err
	}
	if _, err := w.w.Write(payload); err != nil {
		return err
	}
	return w.w.Flush()
}
