// Package audio decodes recordings into mono sample buffers.
package audio

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/himanishpuri/soundz/pkg/models"
)

var ErrInvalidWAV = errors.New("not a valid PCM WAV file")

// ReadWAV reads a PCM WAV file of any bit depth and channel count. Channels
// are averaged into one and samples are rescaled to the 16-bit integer range,
// which is the scale the peak amplitude threshold is calibrated against.
func ReadWAV(path string) (models.SampleBuffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return models.SampleBuffer{}, err
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return models.SampleBuffer{}, fmt.Errorf("%s: %w", path, ErrInvalidWAV)
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return models.SampleBuffer{}, fmt.Errorf("decoding PCM samples: %w", err)
	}
	if buf == nil || buf.Format == nil || buf.Format.NumChannels < 1 {
		return models.SampleBuffer{}, fmt.Errorf("%s: %w", path, ErrInvalidWAV)
	}

	samples := downmix(buf.Data, buf.Format.NumChannels, int(d.BitDepth))
	return models.SampleBuffer{Samples: samples, SampleRate: buf.Format.SampleRate}, nil
}

// downmix averages interleaved channels and scales to 16-bit amplitude.
func downmix(data []int, channels, bitDepth int) []float64 {
	scale := 1.0
	offset := 0
	switch {
	case bitDepth == 8:
		// 8-bit PCM is unsigned
		offset = 128
		scale = 256
	case bitDepth > 16:
		scale = 1 / float64(int(1)<<(bitDepth-16))
	}

	frames := len(data) / channels
	out := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += float64(data[i*channels+c] - offset)
		}
		out[i] = sum / float64(channels) * scale
	}
	return out
}

// WriteWAV writes buf as a mono 16-bit PCM WAV file.
func WriteWAV(path string, buf models.SampleBuffer) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	enc := wav.NewEncoder(f, buf.SampleRate, 16, 1, 1)
	data := make([]int, len(buf.Samples))
	for i, s := range buf.Samples {
		data[i] = int(math.Max(math.MinInt16, math.Min(math.MaxInt16, math.Round(s))))
	}

	ib := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: buf.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(ib); err != nil {
		f.Close()
		return fmt.Errorf("encoding wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("finalizing wav: %w", err)
	}
	return f.Close()
}
