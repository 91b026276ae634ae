package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"
)

// FileStore writes finished audio into a flat output directory.
type FileStore struct {
	Dir   string
	clock func() time.Time
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{Dir: dir, clock: time.Now}
}

// Create opens a new, never-before-used file named from the title and the current
// time, e.g. "Some_Article_20250102_150405.wav".
func (fs *FileStore) Create(title, ext string) (*os.File, error) {
	if err := os.MkdirAll(fs.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	base := SafeTitle(title) + "_" + fs.clock().Format("20060102_150405")
	for attempt := 0; attempt < 100; attempt++ {
		name := base
		if attempt > 0 {
			name = fmt.Sprintf("%s_%d", base, attempt)
		}
		path := filepath.Join(fs.Dir, name+"."+ext)
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create audio file: %w", err)
		}
	}
	return nil, fmt.Errorf("create audio file: too many files named %s", base)
}

// SaveWAV writes pcm as a WAV file and returns its path and size in bytes.
func (fs *FileStore) SaveWAV(title string, pcm []byte, format Format) (string, int64, error) {
	return fs.save(title, "wav", func(f *os.File) error {
		return WriteWAV(f, pcm, format)
	})
}

// SaveEncoded writes already-encoded audio (mp3) as-is.
func (fs *FileStore) SaveEncoded(title, ext string, data []byte) (string, int64, error) {
	return fs.save(title, ext, func(f *os.File) error {
		_, err := f.Write(data)
		return err
	})
}

func (fs *FileStore) save(title, ext string, write func(*os.File) error) (string, int64, error) {
	f, err := fs.Create(title, ext)
	if err != nil {
		return "", 0, err
	}
	path := f.Name()
	if err := write(f); err != nil {
		f.Close()
		os.Remove(path)
		return "", 0, err
	}
	info, statErr := f.Stat()
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", 0, fmt.Errorf("close audio file: %w", err)
	}
	var size int64
	if statErr == nil {
		size = info.Size()
	}
	return path, size, nil
}

// SafeTitle keeps the first 30 runes of a title that are letters, digits, space,
// dash or underscore, and turns spaces into underscores.
func SafeTitle(title string) string {
	runes := []rune(title)
	if len(runes) > 30 {
		runes = runes[:30]
	}
	var b strings.Builder
	for _, r := range runes {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	safe := strings.ReplaceAll(strings.TrimSpace(b.String()), " ", "_")
	if safe == "" {
		return "article"
	}
	return safe
}
