// Package match turns fingerprint hits into a single best song and offset
// by histogram voting over (offset, song) pairs.
package match

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/himanishpuri/soundz/pkg/models"
)

// TieBreak decides between (offset, song) pairs with the same vote count.
type TieBreak int

const (
	// TieBreakFirst keeps the pair that reached the winning count first while
	// scanning records in the order the store returned them.
	TieBreakFirst TieBreak = iota
	// TieBreakLowestSongID prefers the lowest song ID, then the lowest offset.
	// The result does not depend on record order.
	TieBreakLowestSongID
)

func (t TieBreak) String() string {
	switch t {
	case TieBreakFirst:
		return "first"
	case TieBreakLowestSongID:
		return "lowest-id"
	default:
		return fmt.Sprintf("TieBreak(%d)", int(t))
	}
}

func ParseTieBreak(s string) (TieBreak, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "first":
		return TieBreakFirst, nil
	case "lowest-id", "lowest":
		return TieBreakLowestSongID, nil
	default:
		return 0, fmt.Errorf("unknown tie-break policy %q", s)
	}
}

type Options struct {
	TieBreak      TieBreak
	MaxCandidates int // 0 keeps every song
}

func DefaultOptions() Options {
	return Options{TieBreak: TieBreakFirst, MaxCandidates: 5}
}

// Alignment is the winning (offset, song) pair plus the ranked alternatives.
type Alignment struct {
	SongID     string
	Offset     int // stored time minus query time, in time bins
	Votes      int
	Matched    int // records whose hash occurs in the query
	Candidates []models.Candidate
}

type pair struct {
	offset int
	songID string
}

type songBest struct {
	offset    int
	votes     int
	reachedAt int // record index at which votes was reached
}

// Align votes for the offset between each stored record and the query
// fingerprint with the same hash. When several query anchors share a hash,
// the first one in query order is used. It returns false when no record
// hashes occur in the query.
func Align(query []models.Fingerprint, records []models.FingerprintRecord, opts Options) (Alignment, bool) {
	if len(query) == 0 || len(records) == 0 {
		return Alignment{}, false
	}

	queryTimes := make(map[models.Hash]int, len(query))
	for _, fp := range query {
		if _, ok := queryTimes[fp.Hash]; !ok {
			queryTimes[fp.Hash] = fp.AnchorTime
		}
	}

	counts := make(map[pair]int)
	perSong := make(map[string]*songBest)
	matched := 0

	for i, rec := range records {
		qt, ok := queryTimes[rec.Hash]
		if !ok {
			continue
		}
		matched++

		k := pair{offset: rec.Time - qt, songID: rec.SongID}
		counts[k]++
		c := counts[k]

		sb := perSong[k.songID]
		switch {
		case sb == nil:
			perSong[k.songID] = &songBest{offset: k.offset, votes: c, reachedAt: i}
		case c > sb.votes:
			sb.offset, sb.votes, sb.reachedAt = k.offset, c, i
		case c == sb.votes && opts.TieBreak == TieBreakLowestSongID && k.offset < sb.offset:
			sb.offset, sb.reachedAt = k.offset, i
		}
	}
	if matched == 0 {
		return Alignment{}, false
	}

	ids := make([]string, 0, len(perSong))
	for id := range perSong {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := perSong[ids[i]], perSong[ids[j]]
		if a.votes != b.votes {
			return a.votes > b.votes
		}
		if opts.TieBreak == TieBreakLowestSongID {
			return ids[i] < ids[j]
		}
		return a.reachedAt < b.reachedAt
	})

	if opts.MaxCandidates > 0 && len(ids) > opts.MaxCandidates {
		ids = ids[:opts.MaxCandidates]
	}
	candidates := make([]models.Candidate, len(ids))
	for i, id := range ids {
		sb := perSong[id]
		candidates[i] = models.Candidate{SongID: id, OffsetBins: sb.offset, Votes: sb.votes}
	}

	top := candidates[0]
	return Alignment{
		SongID:     top.SongID,
		Offset:     top.OffsetBins,
		Votes:      top.Votes,
		Matched:    matched,
		Candidates: candidates,
	}, true
}

// Confidence maps a vote count to a 0-100 display score. The reference size
// is the smaller of the query and song fingerprint counts, so short clips of
// long songs are not penalised. It never influences which song wins.
func Confidence(votes, queryCount, songCount int) float64 {
	if votes == 0 || queryCount == 0 || songCount == 0 {
		return 0
	}

	ref := min(queryCount, songCount)
	ratio := float64(votes) / float64(ref)

	const (
		steepness = 20.0
		midpoint  = 0.15 // ratio that scores 50
	)
	confidence := 100.0 / (1.0 + math.Exp(-steepness*(ratio-midpoint)))

	if ratio > 0.30 {
		confidence = math.Min(100.0, confidence+(ratio-0.30)*50)
	}

	// a handful of aligned hashes is not significant on its own
	if votes < 5 {
		confidence *= float64(votes) / 5.0
	}
	return confidence
}
