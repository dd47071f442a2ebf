// Package synth generates deterministic test signals on the 16-bit sample scale.
package synth

import (
	"math"
	"math/rand"

	"github.com/himanishpuri/soundz/pkg/models"
)

// Tone is a pure sinusoid.
func Tone(freq, amplitude float64, sampleRate int, seconds float64) models.SampleBuffer {
	n := int(seconds * float64(sampleRate))
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return models.SampleBuffer{Samples: samples, SampleRate: sampleRate}
}

// Silence is an all-zero buffer.
func Silence(sampleRate int, seconds float64) models.SampleBuffer {
	return models.SampleBuffer{
		Samples:    make([]float64, int(seconds*float64(sampleRate))),
		SampleRate: sampleRate,
	}
}

// Melody is a sequence of short random chords. The same seed always yields
// the same samples, and different seeds give unrelated spectra.
func Melody(seed int64, sampleRate int, seconds float64) models.SampleBuffer {
	const (
		noteSeconds = 0.25
		voices      = 3
	)
	rng := rand.New(rand.NewSource(seed))
	n := int(seconds * float64(sampleRate))
	noteLen := int(noteSeconds * float64(sampleRate))
	nyquist := float64(sampleRate) / 2

	samples := make([]float64, n)
	for start := 0; start < n; start += noteLen {
		var freqs, amps [voices]float64
		for v := 0; v < voices; v++ {
			freqs[v] = 100 + rng.Float64()*(nyquist*0.8-100)
			amps[v] = 1500 + rng.Float64()*4500
		}
		end := start + noteLen
		if end > n {
			end = n
		}
		for i := start; i < end; i++ {
			x := float64(i) / float64(sampleRate)
			var s float64
			for v := 0; v < voices; v++ {
				s += amps[v] * math.Sin(2*math.Pi*freqs[v]*x)
			}
			samples[i] = s
		}
	}
	return models.SampleBuffer{Samples: samples, SampleRate: sampleRate}
}

// WithNoise returns a copy of buf with zero-mean Gaussian noise of standard
// deviation sigma added to every sample.
func WithNoise(buf models.SampleBuffer, sigma float64, seed int64) models.SampleBuffer {
	rng := rand.New(rand.NewSource(seed))
	samples := make([]float64, len(buf.Samples))
	for i, v := range buf.Samples {
		samples[i] = v + rng.NormFloat64()*sigma
	}
	return models.SampleBuffer{Samples: samples, SampleRate: buf.SampleRate}
}
