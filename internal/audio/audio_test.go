package audio

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-audio/wav"
)

func TestFormatDuration(t *testing.T) {
	cases := map[float64]string{
		0:     "0s",
		12.9:  "12s",
		59.99: "59s",
		60:    "1:00",
		61.5:  "1:01",
		605:   "10:05",
	}
	for in, want := range cases {
		if got := FormatDuration(in); got != want {
			t.Errorf("FormatDuration(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestSecondsFromPCMBytes(t *testing.T) {
	f := PCM16(22050, 1)
	// 90 seconds of mono 16-bit audio.
	n := 90 * 2 * 22050
	if got := f.Seconds(n); got != 90 {
		t.Fatalf("expected 90s, got %v", got)
	}
	if got := FormatDuration(f.Seconds(n)); got != "1:30" {
		t.Fatalf("expected 1:30, got %s", got)
	}
	mp3 := Format{Encoding: EncodingMP3}
	if mp3.Seconds(1000) != 0 {
		t.Fatal("encoded formats have no byte-rate duration")
	}
}

func TestSilence(t *testing.T) {
	f := PCM16(22050, 1)
	s := f.Silence(0.5)
	if len(s) != 22050 {
		t.Fatalf("expected 22050 bytes, got %d", len(s))
	}
	for _, b := range s {
		if b != 0 {
			t.Fatal("silence must be zero-valued")
		}
	}
	if f.Silence(0) != nil {
		t.Fatal("expected no silence for zero duration")
	}
	stereo := PCM16(16000, 2)
	if got := len(stereo.Silence(1)); got != 64000 {
		t.Fatalf("expected 64000 bytes, got %d", got)
	}
}

func TestEstimateSeconds(t *testing.T) {
	// 150 wpm at scale 1.0: 300 words take two minutes.
	if got := EstimateSeconds(300, 1.0); got != 120 {
		t.Fatalf("expected 120s, got %v", got)
	}
	// Faster speech at 0.7 shortens the estimate.
	if got := EstimateSeconds(300, 0.7); got >= 120 || got < 83 || got > 85 {
		t.Fatalf("unexpected estimate %v", got)
	}
}

func TestChunkerFixedSizes(t *testing.T) {
	var chunks [][]byte
	c := NewChunker(4, func(b []byte) error {
		chunks = append(chunks, b)
		return nil
	})
	c.Write([]byte{1, 2, 3})
	c.Write([]byte{4, 5})
	c.Write([]byte{6, 7, 8, 9, 10})
	if err := c.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if !bytes.Equal(chunks[0], []byte{1, 2, 3, 4}) || !bytes.Equal(chunks[1], []byte{5, 6, 7, 8}) || !bytes.Equal(chunks[2], []byte{9, 10}) {
		t.Fatalf("unexpected chunks %v", chunks)
	}
	if c.Total() != 10 {
		t.Fatalf("expected total 10, got %d", c.Total())
	}
	if err := c.Flush(); err != nil || len(chunks) != 3 {
		t.Fatal("flushing an empty chunker must not emit")
	}
}

func TestSafeTitle(t *testing.T) {
	cases := map[string]string{
		"Hello, World!":                       "Hello_World",
		"  spaced out  ":                      "spaced_out",
		"???":                                 "article",
		"":                                    "article",
		"A very long title that keeps going on": "A_very_long_title_that_keeps_g",
		"dash-and_underscore":                 "dash-and_underscore",
	}
	for in, want := range cases {
		if got := SafeTitle(in); got != want {
			t.Errorf("SafeTitle(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFileStoreSaveWAV(t *testing.T) {
	dir := t.TempDir()
	fs := NewFileStore(filepath.Join(dir, "out"))
	fs.clock = func() time.Time { return time.Date(2025, 1, 2, 15, 4, 5, 0, time.UTC) }

	format := PCM16(22050, 1)
	pcm := make([]byte, 4410)
	pcm[0], pcm[1] = 0xff, 0x7f

	path, size, err := fs.SaveWAV("My Article", pcm, format)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if filepath.Base(path) != "My_Article_20250102_150405.wav" {
		t.Fatalf("unexpected file name %s", path)
	}
	if size <= int64(len(pcm)) {
		t.Fatalf("expected header plus payload, got %d bytes", size)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		t.Fatal("expected a valid wav file")
	}
	if dec.SampleRate != 22050 || dec.NumChans != 1 || dec.BitDepth != 16 {
		t.Fatalf("unexpected wav header %d/%d/%d", dec.SampleRate, dec.NumChans, dec.BitDepth)
	}

	second, _, err := fs.SaveWAV("My Article", pcm, format)
	if err != nil {
		t.Fatalf("save second: %v", err)
	}
	if second == path || !strings.HasSuffix(second, "_1.wav") {
		t.Fatalf("expected a distinct file for the same second, got %s", second)
	}
}

func TestFileStoreSaveEncoded(t *testing.T) {
	fs := NewFileStore(t.TempDir())
	path, size, err := fs.SaveEncoded("Clip", "mp3", []byte("ID3data"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !strings.HasSuffix(path, ".mp3") || size != 7 {
		t.Fatalf("unexpected result %s %d", path, size)
	}
}

func TestWriteWAVRejectsEncodedFormat(t *testing.T) {
	fs := NewFileStore(t.TempDir())
	if _, _, err := fs.SaveWAV("x", []byte{1, 2}, Format{Encoding: EncodingMP3}); err == nil {
		t.Fatal("expected error")
	}
	entries, _ := os.ReadDir(fs.Dir)
	if len(entries) != 0 {
		t.Fatal("failed writes must not leave files behind")
	}
}
