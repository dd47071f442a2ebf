package fingerprint

import (
	"testing"

	"github.com/himanishpuri/soundz/internal/synth"
)

// flatSpectrogram returns a rows x cols spectrogram filled with level.
func flatSpectrogram(rows, cols int, level float64) Spectrogram {
	spec := Spectrogram{
		Power:       make([][]float64, rows),
		Frequencies: make([]float64, cols),
		Times:       make([]float64, rows),
	}
	for t := range spec.Power {
		spec.Power[t] = make([]float64, cols)
		for f := range spec.Power[t] {
			spec.Power[t][f] = level
		}
	}
	return spec
}

func TestExtractPeaksSingleMaximum(t *testing.T) {
	spec := flatSpectrogram(40, 40, 5)
	spec.Power[20][10] = 30

	peaks := ExtractPeaks(spec, DefaultParams())

	if len(peaks) != 1 {
		t.Fatalf("Expected 1 peak, got %d: %+v", len(peaks), peaks)
	}
	if peaks[0].TimeBin != 20 || peaks[0].FreqBin != 10 || peaks[0].Amplitude != 30 {
		t.Errorf("Unexpected peak %+v", peaks[0])
	}
}

func TestExtractPeaksOnZeroBackground(t *testing.T) {
	spec := flatSpectrogram(50, 50, 0)
	spec.Power[25][25] = 20

	peaks := ExtractPeaks(spec, DefaultParams())

	if len(peaks) != 1 {
		t.Fatalf("Expected 1 peak on a silent background, got %d", len(peaks))
	}
	if peaks[0].TimeBin != 25 || peaks[0].FreqBin != 25 {
		t.Errorf("Expected peak at (25,25), got (%d,%d)", peaks[0].TimeBin, peaks[0].FreqBin)
	}
}

func TestExtractPeaksNeighborhoodSuppression(t *testing.T) {
	spec := flatSpectrogram(60, 60, 1)
	spec.Power[10][10] = 30
	spec.Power[12][12] = 25 // within Manhattan distance 15 of the louder one
	spec.Power[45][50] = 20 // far away

	peaks := ExtractPeaks(spec, DefaultParams())

	if len(peaks) != 2 {
		t.Fatalf("Expected 2 peaks, got %d: %+v", len(peaks), peaks)
	}
	if peaks[0].TimeBin != 10 || peaks[0].FreqBin != 10 {
		t.Errorf("Expected first peak at (10,10), got (%d,%d)", peaks[0].TimeBin, peaks[0].FreqBin)
	}
	if peaks[1].TimeBin != 45 || peaks[1].FreqBin != 50 {
		t.Errorf("Expected second peak at (45,50), got (%d,%d)", peaks[1].TimeBin, peaks[1].FreqBin)
	}
}

func TestExtractPeaksAmplitudeThreshold(t *testing.T) {
	p := DefaultParams()
	spec := flatSpectrogram(80, 80, 0)
	spec.Power[5][5] = p.MinAmplitude       // equal is not enough
	spec.Power[40][40] = p.MinAmplitude + 1 // strictly above
	spec.Power[75][70] = p.MinAmplitude - 3

	peaks := ExtractPeaks(spec, p)

	if len(peaks) != 1 {
		t.Fatalf("Expected 1 peak above threshold, got %d: %+v", len(peaks), peaks)
	}
	if peaks[0].TimeBin != 40 {
		t.Errorf("Expected the peak at time 40, got %d", peaks[0].TimeBin)
	}
}

func TestExtractPeaksOrder(t *testing.T) {
	spec := flatSpectrogram(100, 100, 0)
	spec.Power[70][5] = 40
	spec.Power[10][80] = 40
	spec.Power[10][20] = 40
	spec.Power[40][50] = 40

	peaks := ExtractPeaks(spec, DefaultParams())

	expected := [][2]int{{10, 20}, {10, 80}, {40, 50}, {70, 5}}
	if len(peaks) != len(expected) {
		t.Fatalf("Expected %d peaks, got %d", len(expected), len(peaks))
	}
	for i, e := range expected {
		if peaks[i].TimeBin != e[0] || peaks[i].FreqBin != e[1] {
			t.Errorf("Peak %d: expected (t=%d,f=%d), got (t=%d,f=%d)",
				i, e[0], e[1], peaks[i].TimeBin, peaks[i].FreqBin)
		}
	}
}

func TestExtractPeaksFromAudio(t *testing.T) {
	p := DefaultParams()
	spec := Analyze(synth.Melody(1, 11025, 5), p)
	peaks := ExtractPeaks(spec, p)

	if len(peaks) == 0 {
		t.Fatal("No peaks extracted")
	}

	for i, pk := range peaks {
		if pk.Amplitude <= p.MinAmplitude {
			t.Errorf("Peak %d below threshold: %f", i, pk.Amplitude)
		}
		if pk.TimeBin < 0 || pk.TimeBin >= len(spec.Power) {
			t.Errorf("Peak %d has invalid time bin: %d", i, pk.TimeBin)
		}
		if pk.FreqBin < 0 || pk.FreqBin >= len(spec.Frequencies) {
			t.Errorf("Peak %d has invalid freq bin: %d", i, pk.FreqBin)
		}
		if i > 0 {
			prev := peaks[i-1]
			if pk.TimeBin < prev.TimeBin || (pk.TimeBin == prev.TimeBin && pk.FreqBin <= prev.FreqBin) {
				t.Fatalf("Peaks not in time-major order at %d", i)
			}
		}
	}

	t.Logf("Extracted %d peaks from %d frames", len(peaks), len(spec.Power))
}

func TestExtractPeaksEmptyAndSilent(t *testing.T) {
	if peaks := ExtractPeaks(Spectrogram{}, DefaultParams()); len(peaks) != 0 {
		t.Errorf("Expected no peaks from empty spectrogram, got %d", len(peaks))
	}

	p := DefaultParams()
	spec := Analyze(synth.Silence(11025, 3), p)
	if peaks := ExtractPeaks(spec, p); len(peaks) != 0 {
		t.Errorf("Expected no peaks from silence, got %d", len(peaks))
	}
}
