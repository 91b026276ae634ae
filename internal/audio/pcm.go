// Package audio holds the PCM arithmetic, framing and file output shared by the
// synthesis paths.
package audio

import (
	"fmt"
	"math"
)

const (
	EncodingPCM = "pcm"
	EncodingMP3 = "mp3"
)

// Format describes the audio a synthesizer produces.
type Format struct {
	Encoding    string
	SampleRate  int
	Channels    int
	SampleWidth int // bytes per sample per channel
}

// PCM16 returns a signed 16-bit little-endian PCM format.
func PCM16(sampleRate, channels int) Format {
	return Format{Encoding: EncodingPCM, SampleRate: sampleRate, Channels: channels, SampleWidth: 2}
}

// FrameSize is the number of bytes for one sample across all channels.
func (f Format) FrameSize() int {
	return f.SampleWidth * f.Channels
}

// BytesPerSecond is zero for encoded formats.
func (f Format) BytesPerSecond() int {
	if f.Encoding != EncodingPCM {
		return 0
	}
	return f.FrameSize() * f.SampleRate
}

// Seconds converts a PCM byte count into playback time.
func (f Format) Seconds(n int) float64 {
	bps := f.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return float64(n) / float64(bps)
}

// Silence returns zero-valued samples lasting the given number of seconds.
func (f Format) Silence(seconds float64) []byte {
	if seconds <= 0 || f.Encoding != EncodingPCM {
		return nil
	}
	frames := int(math.Round(seconds * float64(f.SampleRate)))
	return make([]byte, frames*f.FrameSize())
}

// FormatDuration renders whole seconds as "42s" below a minute and "m:ss" above.
func FormatDuration(seconds float64) string {
	total := int(seconds)
	if total < 60 {
		return fmt.Sprintf("%ds", total)
	}
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// BaseWordsPerMinute is the speaking rate at length scale 1.0.
const BaseWordsPerMinute = 150.0

// EstimateSeconds approximates playback time from a word count; a length scale
// below 1 speaks faster (0.7 is roughly 214 wpm).
func EstimateSeconds(words int, lengthScale float64) float64 {
	if lengthScale <= 0 {
		lengthScale = 1
	}
	wpm := BaseWordsPerMinute / lengthScale
	return float64(words) / wpm * 60
}
