package fingerprint

import (
	"math"
	"testing"

	"github.com/himanishpuri/soundz/internal/synth"
	"github.com/himanishpuri/soundz/pkg/models"
)

func TestHamming(t *testing.T) {
	sizes := []int{128, 256, 512, 1024}

	for _, size := range sizes {
		window := Hamming(size)

		if len(window) != size {
			t.Errorf("Expected window size %d, got %d", size, len(window))
		}

		if math.Abs(window[0]-0.08) > 1e-12 {
			t.Errorf("Expected first coefficient 0.08, got %f", window[0])
		}

		// periodic: symmetric around size/2, peak of 1 at the centre
		for i := 1; i < size/2; i++ {
			if math.Abs(window[i]-window[size-i]) > 1e-12 {
				t.Fatalf("Window of size %d not periodic-symmetric at %d", size, i)
			}
		}
		if math.Abs(window[size/2]-1) > 1e-12 {
			t.Errorf("Expected centre coefficient 1, got %f", window[size/2])
		}
	}

	if Hamming(0) != nil {
		t.Error("Expected nil window for size 0")
	}
}

func TestAnalyzeDimensions(t *testing.T) {
	p := DefaultParams()
	buf := synth.Tone(440, 1000, 8000, 1)

	spec := Analyze(buf, p)

	expectedFrames := 1 + (8000-1024)/512
	if len(spec.Power) != expectedFrames {
		t.Fatalf("Expected %d frames, got %d", expectedFrames, len(spec.Power))
	}
	if len(spec.Times) != expectedFrames {
		t.Errorf("Expected %d time centres, got %d", expectedFrames, len(spec.Times))
	}
	if len(spec.Frequencies) != 513 {
		t.Errorf("Expected 513 frequency bins, got %d", len(spec.Frequencies))
	}
	for i, row := range spec.Power {
		if len(row) != 513 {
			t.Fatalf("Row %d has %d bins, expected 513", i, len(row))
		}
	}

	if got, want := spec.Frequencies[1], 8000.0/1024; math.Abs(got-want) > 1e-9 {
		t.Errorf("Expected bin spacing %f Hz, got %f", want, got)
	}
	if got, want := spec.Frequencies[512], 4000.0; math.Abs(got-want) > 1e-9 {
		t.Errorf("Expected Nyquist bin at %f Hz, got %f", want, got)
	}
	if got, want := spec.Times[0], 512.0/8000; math.Abs(got-want) > 1e-12 {
		t.Errorf("Expected first frame centre %f s, got %f", want, got)
	}
	if got, want := spec.Times[1]-spec.Times[0], 512.0/8000; math.Abs(got-want) > 1e-12 {
		t.Errorf("Expected frame spacing %f s, got %f", want, got)
	}
}

func TestAnalyzeToneLevel(t *testing.T) {
	// 512 Hz at 8192 Hz sits exactly on bin 64
	const amplitude = 1000.0
	p := DefaultParams()
	spec := Analyze(synth.Tone(512, amplitude, 8192, 1), p)

	expected := 10 * math.Log10(amplitude*amplitude/2)
	for ti, row := range spec.Power {
		best := 0
		for f := range row {
			if row[f] > row[best] {
				best = f
			}
		}
		if best != 64 {
			t.Fatalf("Frame %d: expected loudest bin 64, got %d", ti, best)
		}
		if math.Abs(row[64]-expected) > 0.01 {
			t.Errorf("Frame %d: expected %.3f dB at bin 64, got %.3f", ti, expected, row[64])
		}
	}
}

func TestAnalyzeSilence(t *testing.T) {
	spec := Analyze(synth.Silence(11025, 2), DefaultParams())

	if spec.Empty() {
		t.Fatal("Expected a non-empty spectrogram for 2 s of silence")
	}
	for ti, row := range spec.Power {
		for f, v := range row {
			if v != 0 {
				t.Fatalf("Expected sanitised 0 at (%d,%d), got %f", ti, f, v)
			}
		}
	}
}

func TestAnalyzeShortOrInvalidInput(t *testing.T) {
	tests := []struct {
		name string
		buf  models.SampleBuffer
	}{
		{"empty", models.SampleBuffer{SampleRate: 44100}},
		{"shorter than a frame", models.SampleBuffer{Samples: make([]float64, 1023), SampleRate: 44100}},
		{"no sample rate", models.SampleBuffer{Samples: make([]float64, 4096)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := Analyze(tt.buf, DefaultParams())
			if !spec.Empty() {
				t.Errorf("Expected empty spectrogram, got %d frames", len(spec.Power))
			}
		})
	}
}

func TestAnalyzeDetrendsFrames(t *testing.T) {
	// A constant offset is removed per frame, so a DC-only signal is silent.
	buf := models.SampleBuffer{Samples: make([]float64, 4096), SampleRate: 8000}
	for i := range buf.Samples {
		buf.Samples[i] = 1200
	}

	spec := Analyze(buf, DefaultParams())
	for ti, row := range spec.Power {
		if row[0] > 0 {
			t.Errorf("Frame %d: expected no DC energy after detrending, got %f dB", ti, row[0])
		}
	}
}
