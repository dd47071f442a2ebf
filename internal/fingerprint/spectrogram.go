package fingerprint

import (
	"math"

	"github.com/himanishpuri/soundz/pkg/models"
	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Spectrogram is a time-major log-power matrix: Power[timeBin][freqBin] in dB.
type Spectrogram struct {
	Power       [][]float64
	Frequencies []float64 // bin centres in Hz
	Times       []float64 // frame centres in seconds
}

// Empty reports whether the spectrogram has no cells.
func (s Spectrogram) Empty() bool {
	return len(s.Power) == 0 || len(s.Frequencies) == 0
}

// Hamming returns a periodic Hamming window of length n, the form used for
// spectral analysis (the symmetric window of n+1 points without its last one).
func Hamming(n int) []float64 {
	if n <= 0 {
		return nil
	}
	return window.Hamming(n + 1)[:n]
}

// Analyze turns a mono buffer into a log-power spectrogram.
//
// Each frame is mean-detrended, Hamming-windowed and transformed. The
// one-sided power spectrum is scaled by 1/sum(w)^2 with every bin except DC
// and Nyquist doubled, then converted to dB. Cells whose log is -Inf or NaN
// are stored as 0. Buffers shorter than one frame produce an empty result.
func Analyze(buf models.SampleBuffer, p Params) Spectrogram {
	n := p.FrameSize
	hop := p.Hop()
	if buf.SampleRate <= 0 || n < 2 || hop < 1 || len(buf.Samples) < n {
		return Spectrogram{}
	}

	win := Hamming(n)
	sum := floats.Sum(win)
	scale := 1 / (sum * sum)
	bins := p.Bins()
	sr := float64(buf.SampleRate)

	numFrames := 1 + (len(buf.Samples)-n)/hop
	spec := Spectrogram{
		Power:       make([][]float64, numFrames),
		Frequencies: make([]float64, bins),
		Times:       make([]float64, numFrames),
	}
	for k := range spec.Frequencies {
		spec.Frequencies[k] = float64(k) * sr / float64(n)
	}

	frame := make([]float64, n)
	for t := 0; t < numFrames; t++ {
		start := t * hop
		copy(frame, buf.Samples[start:start+n])
		floats.AddConst(-stat.Mean(frame, nil), frame)
		floats.Mul(frame, win)

		spectrum := fft.FFTReal(frame)
		row := make([]float64, bins)
		for k := 0; k < bins; k++ {
			re, im := real(spectrum[k]), imag(spectrum[k])
			power := (re*re + im*im) * scale
			if k != 0 && (n%2 == 1 || k != n/2) {
				power *= 2
			}
			row[k] = decibels(power)
		}
		spec.Power[t] = row
		spec.Times[t] = (float64(start) + float64(n)/2) / sr
	}
	return spec
}

func decibels(power float64) float64 {
	db := 10 * math.Log10(power)
	if math.IsInf(db, -1) || math.IsNaN(db) {
		return 0
	}
	return db
}
