package nativemsg

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"testing"
)

type payload struct {
	Action string `json:"action"`
	Count  int    `json:"count"`
}

func TestRoundTripFrames(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.Write(payload{Action: "stream", Count: 1}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Write(payload{Action: "download", Count: 2}); err != nil {
		t.Fatalf("write: %v", err)
	}

	r := NewReader(&buf, 0)
	var first, second payload
	if err := r.Read(&first); err != nil {
		t.Fatalf("read first: %v", err)
	}
	if err := r.Read(&second); err != nil {
		t.Fatalf("read second: %v", err)
	}
	if first.Action != "stream" || second.Count != 2 {
		t.Fatalf("unexpected payloads %+v %+v", first, second)
	}
	if err := r.Read(&first); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF at end of input, got %v", err)
	}
}

func TestHeaderIsLittleEndianLength(t *testing.T) {
	var buf bytes.Buffer
	if err := NewWriter(&buf).Write(map[string]string{"status": "progress"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	raw := buf.Bytes()
	length := binary.LittleEndian.Uint32(raw[:4])
	if int(length) != len(raw)-4 {
		t.Fatalf("header says %d bytes, payload has %d", length, len(raw)-4)
	}
	if string(raw[4:]) != `{"status":"progress"}` {
		t.Fatalf("unexpected payload %q", raw[4:])
	}
}

func TestReadTruncatedBody(t *testing.T) {
	var buf bytes.Buffer
	header := make([]byte, 4)
	binary.LittleEndian.PutUint32(header, 10)
	buf.Write(header)
	buf.WriteString(`{"a":`)

	_, err := NewReader(&buf, 0).ReadRaw()
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected unexpected EOF, got %v", err)
	}
}

func TestReadShortHeader(t *testing.T) {
	_, err := NewReader(bytes.NewReader([]byte{1, 0}), 0).ReadRaw()
	if err == nil || errors.Is(err, io.EOF) {
		t.Fatalf("expected header error, got %v", err)
	}
}

func TestReadRejectsOversizedFrame(t *testing.T) {
	header := make([]byte, 4)
	binary.LittleEndian.PutUint32(header, 1024)
	_, err := NewReader(bytes.NewReader(header), 16).ReadRaw()
	if !errors.Is(err, ErrMessageTooLarge) {
		t.Fatalf("expected ErrMessageTooLarge, got %v", err)
	}
}

func TestReadMalformedJSON(t *testing.T) {
	var buf bytes.Buffer
	header := make([]byte, 4)
	binary.LittleEndian.PutUint32(header, 3)
	buf.Write(header)
	buf.WriteString("{x}")

	var p payload
	if err := NewReader(&buf, 0).Read(&p); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestConcurrentWritesKeepFramesWhole(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := w.Write(map[string]int{"index": i}); err != nil {
				t.Errorf("write %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	r := NewReader(&buf, 0)
	seen := make(map[int]bool)
	for {
		var msg map[string]int
		err := r.Read(&msg)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		seen[msg["index"]] = true
	}
	if len(seen) != 16 {
		t.Fatalf("expected 16 distinct frames, got %d", len(seen))
	}
}
