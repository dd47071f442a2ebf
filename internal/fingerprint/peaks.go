package fingerprint

// Peak is a point of the constellation map.
type Peak struct {
	FreqBin   int
	TimeBin   int
	Amplitude float64 // dB
}

// ExtractPeaks finds the local maxima of the spectrogram that stand out from
// their diamond neighbourhood and are louder than p.MinAmplitude.
//
// A cell is a candidate when it equals the neighbourhood maximum. Zero-valued
// regions (silence after log sanitising) are all "maxima" of themselves, so
// the eroded zero background is XORed out of the candidate mask. Peaks are
// returned in time-major scan order: time bin ascending, then frequency bin.
func ExtractPeaks(spec Spectrogram, p Params) []Peak {
	if spec.Empty() {
		return nil
	}

	maxed := maxFilter(spec.Power, p.NeighborhoodSize)

	background := make([][]bool, len(spec.Power))
	for t, row := range spec.Power {
		background[t] = make([]bool, len(row))
		for f, v := range row {
			background[t][f] = v == 0
		}
	}
	eroded := erode(background, p.NeighborhoodSize)

	var peaks []Peak
	for t, row := range spec.Power {
		for f, v := range row {
			localMax := v == maxed[t][f]
			if localMax == eroded[t][f] {
				continue
			}
			if v > p.MinAmplitude {
				peaks = append(peaks, Peak{FreqBin: f, TimeBin: t, Amplitude: v})
			}
		}
	}
	return peaks
}
