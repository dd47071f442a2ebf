// Package plot renders a recording's spectrogram with its constellation of
// peaks drawn on top.
package plot

import (
	"errors"
	"image"
	"image/draw"
	"math"

	"github.com/eligwz/spectrogram"
	"github.com/himanishpuri/soundz/internal/fingerprint"
	"github.com/himanishpuri/soundz/pkg/models"
)

type Options struct {
	Width  int
	Height int
	// Params decides how peak bins map onto the image.
	Params fingerprint.Params
	// PeakColor is the constellation marker colour (hex, e.g. "ff3030").
	PeakColor  string
	MarkerSize int
}

func DefaultOptions() Options {
	return Options{
		Width:      2048,
		Height:     512,
		Params:     fingerprint.DefaultParams(),
		PeakColor:  "ff3030",
		MarkerSize: 1,
	}
}

// RenderSpectrogram draws buf as a PNG at outPath and marks every peak.
func RenderSpectrogram(buf models.SampleBuffer, peaks []fingerprint.Peak, outPath string, opts Options) error {
	if opts.Width <= 0 || opts.Height <= 0 {
		return errors.New("image dimensions must be positive")
	}
	if len(buf.Samples) == 0 || buf.SampleRate <= 0 {
		return errors.New("nothing to plot")
	}

	img := spectrogram.NewImage128(image.Rect(0, 0, opts.Width, opts.Height))
	black := spectrogram.ParseColor("000000")
	draw.Draw(img, img.Bounds(), image.NewUniform(black), image.Point{}, draw.Src)

	// the renderer expects samples in [-1, 1]
	samples := make([]float64, len(buf.Samples))
	for i, s := range buf.Samples {
		samples[i] = s / 32768
	}

	spectrogram.Drawfft(
		img,
		samples,
		uint32(buf.SampleRate),
		uint32(opts.Height), // bins
		false,               // RECTANGLE: use Hamming window
		false,               // DFT: use FFT
		true,                // MAG
		false,               // LOG10
	)

	drawConstellation(img, peaks, frameCount(len(buf.Samples), opts.Params), opts)

	return spectrogram.SavePng(img, outPath)
}

func frameCount(samples int, p fingerprint.Params) int {
	if samples < p.FrameSize || p.Hop() <= 0 {
		return 0
	}
	return (samples-p.FrameSize)/p.Hop() + 1
}

// drawConstellation maps (time bin, freq bin) onto the image with low
// frequencies at the bottom.
func drawConstellation(img draw.Image, peaks []fingerprint.Peak, frames int, opts Options) {
	bins := opts.Params.Bins()
	if frames == 0 || bins == 0 {
		return
	}

	c := spectrogram.ParseColor(opts.PeakColor)
	b := img.Bounds()
	for _, p := range peaks {
		x := int(math.Round(float64(p.TimeBin) * float64(b.Dx()-1) / math.Max(1, float64(frames-1))))
		y := b.Dy() - 1 - int(math.Round(float64(p.FreqBin)*float64(b.Dy()-1)/float64(bins-1)))
		for dx := -opts.MarkerSize; dx <= opts.MarkerSize; dx++ {
			for dy := -opts.MarkerSize; dy <= opts.MarkerSize; dy++ {
				pt := image.Pt(b.Min.X+x+dx, b.Min.Y+y+dy)
				if pt.In(b) {
					img.Set(pt.X, pt.Y, c)
				}
			}
		}
	}
}
