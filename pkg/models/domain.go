package models

import "time"

// SampleBuffer is a mono PCM signal on a 16-bit integer scale.
type SampleBuffer struct {
	Samples    []float64
	SampleRate int
}

// Duration returns the buffer length in seconds.
func (b SampleBuffer) Duration() float64 {
	if b.SampleRate <= 0 {
		return 0
	}
	return float64(len(b.Samples)) / float64(b.SampleRate)
}

// Slice returns the samples between start and end seconds, clamped to the buffer.
func (b SampleBuffer) Slice(start, end float64) SampleBuffer {
	from := int(start * float64(b.SampleRate))
	to := int(end * float64(b.SampleRate))
	if from < 0 {
		from = 0
	}
	if to > len(b.Samples) {
		to = len(b.Samples)
	}
	if from >= to {
		return SampleBuffer{SampleRate: b.SampleRate}
	}
	return SampleBuffer{Samples: b.Samples[from:to], SampleRate: b.SampleRate}
}

// Song represents a song entry in the catalogue.
type Song struct {
	ID         string    // Store-assigned ID (UUID)
	Artist     string    // Artist name
	Album      string    // Album name
	Title      string    // Song title
	Track      string    // Track number as tagged, e.g. "3" or "3/12"
	Year       int       // Release year, 0 if unknown
	SampleRate int       // Sample rate of the indexed buffer
	Duration   float64   // Duration in seconds
	CreatedAt  time.Time // Set by the store
}

// Candidate is a ranked alternative produced by offset voting.
type Candidate struct {
	SongID     string
	OffsetBins int
	Votes      int
}

// MatchResult is the outcome of a successful lookup.
type MatchResult struct {
	Song              Song
	OffsetBins        int     // stored anchor time minus query anchor time, in time bins
	OffsetSeconds     float64 // OffsetBins converted with the analysis hop
	Votes             int     // hits at the winning (offset, song) pair
	MatchedRecords    int     // records returned by the store for the query hashes
	QueryFingerprints int
	Confidence        float64 // 0-100, display only
	Candidates        []Candidate
}
