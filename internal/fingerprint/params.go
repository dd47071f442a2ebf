package fingerprint

import (
	"errors"
	"fmt"
	"math"

	"github.com/himanishpuri/soundz/pkg/models"
)

// Defaults used for both ingestion and queries.
const (
	DefaultFrameSize        = 1024
	DefaultOverlapRatio     = 0.5
	DefaultNeighborhoodSize = 15
	DefaultMinAmplitude     = 10.0
	DefaultFanValue         = 15
	DefaultMaxDelta         = 200
)

// Params controls every stage of the pipeline. Ingestion and matching must
// share the same values or hashes will not line up.
type Params struct {
	FrameSize        int     // samples per analysis frame (nfft)
	OverlapRatio     float64 // fraction of a frame shared with the next one
	NeighborhoodSize int     // diamond radius of the peak footprint
	MinAmplitude     float64 // dB; peaks must be strictly louder
	FanValue         int     // each anchor pairs with up to FanValue-1 following peaks
	MaxDelta         int     // max time-bin distance between paired peaks
}

func DefaultParams() Params {
	return Params{
		FrameSize:        DefaultFrameSize,
		OverlapRatio:     DefaultOverlapRatio,
		NeighborhoodSize: DefaultNeighborhoodSize,
		MinAmplitude:     DefaultMinAmplitude,
		FanValue:         DefaultFanValue,
		MaxDelta:         DefaultMaxDelta,
	}
}

// Hop is the distance in samples between consecutive frames.
func (p Params) Hop() int {
	return p.FrameSize - int(math.Floor(p.OverlapRatio*float64(p.FrameSize)))
}

// Bins is the number of one-sided frequency bins per frame.
func (p Params) Bins() int {
	return p.FrameSize/2 + 1
}

// BinSeconds converts one time bin to seconds at the given sample rate.
func (p Params) BinSeconds(sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return float64(p.Hop()) / float64(sampleRate)
}

func (p Params) Validate() error {
	var errs []error
	if p.FrameSize < 2 {
		errs = append(errs, fmt.Errorf("frame size must be at least 2, got %d", p.FrameSize))
	}
	if p.OverlapRatio < 0 || p.OverlapRatio >= 1 {
		errs = append(errs, fmt.Errorf("overlap ratio must be in [0, 1), got %g", p.OverlapRatio))
	}
	if p.FrameSize >= 2 && p.Hop() < 1 {
		errs = append(errs, fmt.Errorf("hop must be positive, got %d", p.Hop()))
	}
	if p.Bins()-1 > models.MaxHashFreq {
		errs = append(errs, fmt.Errorf("frame size %d yields bins beyond the hash range (%d)", p.FrameSize, models.MaxHashFreq))
	}
	if p.NeighborhoodSize < 0 {
		errs = append(errs, fmt.Errorf("neighborhood size must not be negative, got %d", p.NeighborhoodSize))
	}
	if p.FanValue < 1 {
		errs = append(errs, fmt.Errorf("fan value must be at least 1, got %d", p.FanValue))
	}
	if p.MaxDelta < 0 || p.MaxDelta > models.MaxHashDelta {
		errs = append(errs, fmt.Errorf("max delta must be in [0, %d], got %d", models.MaxHashDelta, p.MaxDelta))
	}
	return errors.Join(errs...)
}
