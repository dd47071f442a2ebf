package fingerprint

import "github.com/himanishpuri/soundz/pkg/models"

// Result holds every intermediate product of one pipeline run.
type Result struct {
	Spectrogram  Spectrogram
	Peaks        []Peak
	Fingerprints []models.Fingerprint
}

// Generate runs analysis, peak extraction and hashing on a buffer. It is a
// pure function of its inputs and safe to call concurrently.
func Generate(buf models.SampleBuffer, p Params) Result {
	spec := Analyze(buf, p)
	peaks := ExtractPeaks(spec, p)
	return Result{
		Spectrogram:  spec,
		Peaks:        peaks,
		Fingerprints: Build(peaks, p),
	}
}
