package audio

// Chunker re-frames an arbitrary byte stream into fixed-size chunks. Only the
// final chunk returned by Flush may be shorter.
type Chunker struct {
	size  int
	buf   []byte
	emit  func([]byte) error
	total int
}

func NewChunker(size int, emit func([]byte) error) *Chunker {
	if size <= 0 {
		size = 16384
	}
	return &Chunker{size: size, buf: make([]byte, 0, size), emit: emit}
}

func (c *Chunker) Write(p []byte) (int, error) {
	written := 0
	for len(p) > 0 {
		n := copy(c.buf[len(c.buf):c.size], p)
		c.buf = c.buf[:len(c.buf)+n]
		p = p[n:]
		written += n
		if len(c.buf) == c.size {
			if err := c.send(); err != nil {
				return written, err
			}
		}
	}
	return written, nil
}

// Flush emits whatever is buffered.
func (c *Chunker) Flush() error {
	if len(c.buf) == 0 {
		return nil
	}
	return c.send()
}

// Total is the number of bytes emitted so far.
func (c *Chunker) Total() int { return c.total }

func (c *Chunker) send() error {
	out := make([]byte, len(c.buf))
	copy(out, c.buf)
	c.buf = c.buf[:0]
	c.total += len(out)
	return c.emit(out)
}
