package audio

import (
	"encoding/binary"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WriteWAV wraps 16-bit little-endian PCM in a WAV container.
func WriteWAV(w io.WriteSeeker, pcm []byte, format Format) error {
	if format.Encoding != EncodingPCM || format.SampleWidth != 2 {
		return fmt.Errorf("wav output needs 16-bit pcm, got %s/%d", format.Encoding, format.SampleWidth*8)
	}
	if format.Channels <= 0 || len(pcm)%format.FrameSize() != 0 {
		return fmt.Errorf("pcm payload not aligned")
	}
	buffer := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: format.Channels, SampleRate: format.SampleRate},
		SourceBitDepth: 16,
	}
	samples := make([]int, len(pcm)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	buffer.Data = samples

	enc := wav.NewEncoder(w, format.SampleRate, 16, format.Channels, 1)
	if err := enc.Write(buffer); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}
