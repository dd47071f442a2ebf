package match

import (
	"math"
	"testing"

	"github.com/himanishpuri/soundz/pkg/models"
)

func fp(h models.Hash, t int) models.Fingerprint {
	return models.Fingerprint{Hash: h, AnchorTime: t}
}

func rec(h models.Hash, t int, song string) models.FingerprintRecord {
	return models.FingerprintRecord{Hash: h, Time: t, SongID: song}
}

func TestAlignNoRecords(t *testing.T) {
	query := []models.Fingerprint{fp(1, 0), fp(2, 5)}

	if _, ok := Align(query, nil, DefaultOptions()); ok {
		t.Error("Expected no match without records")
	}
	if _, ok := Align(nil, []models.FingerprintRecord{rec(1, 0, "a")}, DefaultOptions()); ok {
		t.Error("Expected no match without query fingerprints")
	}
}

func TestAlignNoSharedHashes(t *testing.T) {
	query := []models.Fingerprint{fp(1, 0), fp(2, 5)}
	records := []models.FingerprintRecord{rec(9, 0, "a"), rec(10, 3, "b")}

	if _, ok := Align(query, records, DefaultOptions()); ok {
		t.Error("Expected no match when no record hash occurs in the query")
	}
}

func TestAlignPicksConsistentOffset(t *testing.T) {
	// query is song "a" starting at bin 100
	query := []models.Fingerprint{fp(1, 0), fp(2, 4), fp(3, 9), fp(4, 12)}
	records := []models.FingerprintRecord{
		rec(1, 100, "a"), rec(2, 104, "a"), rec(3, 109, "a"), rec(4, 112, "a"),
		rec(1, 7, "b"), rec(2, 50, "b"), rec(3, 9, "b"),
		rec(4, 30, "a"), // stray hit at a different offset
	}

	al, ok := Align(query, records, DefaultOptions())
	if !ok {
		t.Fatal("Expected a match")
	}
	if al.SongID != "a" || al.Offset != 100 || al.Votes != 4 {
		t.Errorf("Expected song a at offset 100 with 4 votes, got %+v", al)
	}
	if al.Matched != len(records) {
		t.Errorf("Expected %d matched records, got %d", len(records), al.Matched)
	}
	if len(al.Candidates) != 2 || al.Candidates[1].SongID != "b" {
		t.Errorf("Expected song b as runner-up, got %+v", al.Candidates)
	}
}

func TestAlignExactRecovery(t *testing.T) {
	query := make([]models.Fingerprint, 0, 50)
	records := make([]models.FingerprintRecord, 0, 50)
	for i := 0; i < 50; i++ {
		h := models.Hash(i * 7)
		query = append(query, fp(h, i*3))
		records = append(records, rec(h, i*3, "song"))
	}

	al, ok := Align(query, records, DefaultOptions())
	if !ok {
		t.Fatal("Expected a match")
	}
	if al.SongID != "song" || al.Offset != 0 || al.Votes != 50 {
		t.Errorf("Expected offset 0 with 50 votes, got %+v", al)
	}
}

func TestAlignFirstAnchorWins(t *testing.T) {
	// hash 5 occurs at query times 2 and 40; offsets use 2
	query := []models.Fingerprint{fp(5, 2), fp(6, 3), fp(5, 40)}
	records := []models.FingerprintRecord{rec(5, 12, "a"), rec(6, 13, "a")}

	al, ok := Align(query, records, DefaultOptions())
	if !ok {
		t.Fatal("Expected a match")
	}
	if al.Offset != 10 || al.Votes != 2 {
		t.Errorf("Expected offset 10 with 2 votes, got %+v", al)
	}
}

func TestAlignTieBreakFirst(t *testing.T) {
	query := []models.Fingerprint{fp(1, 0), fp(2, 0)}
	records := []models.FingerprintRecord{
		rec(1, 5, "zeta"),
		rec(1, 8, "alpha"),
		rec(2, 5, "zeta"),  // zeta reaches 2 votes first
		rec(2, 8, "alpha"), // alpha ties afterwards
	}

	al, ok := Align(query, records, Options{TieBreak: TieBreakFirst})
	if !ok {
		t.Fatal("Expected a match")
	}
	if al.SongID != "zeta" || al.Offset != 5 {
		t.Errorf("Expected zeta at 5 under first-reached policy, got %s at %d", al.SongID, al.Offset)
	}
}

func TestAlignTieBreakLowestSongID(t *testing.T) {
	query := []models.Fingerprint{fp(1, 0), fp(2, 0)}
	records := []models.FingerprintRecord{
		rec(1, 5, "zeta"),
		rec(1, 8, "alpha"),
		rec(2, 5, "zeta"),
		rec(2, 8, "alpha"),
	}

	al, ok := Align(query, records, Options{TieBreak: TieBreakLowestSongID})
	if !ok {
		t.Fatal("Expected a match")
	}
	if al.SongID != "alpha" || al.Offset != 8 {
		t.Errorf("Expected alpha at 8 under lowest-id policy, got %s at %d", al.SongID, al.Offset)
	}

	// reversing record order must not change the outcome
	reversed := make([]models.FingerprintRecord, len(records))
	for i, r := range records {
		reversed[len(records)-1-i] = r
	}
	al2, _ := Align(query, reversed, Options{TieBreak: TieBreakLowestSongID})
	if al2.SongID != al.SongID || al2.Offset != al.Offset {
		t.Errorf("Expected order-independent result, got %s at %d", al2.SongID, al2.Offset)
	}
}

func TestAlignTieBreakLowestOffsetWithinSong(t *testing.T) {
	query := []models.Fingerprint{fp(1, 0)}
	records := []models.FingerprintRecord{rec(1, 30, "a"), rec(1, 10, "a")}

	al, _ := Align(query, records, Options{TieBreak: TieBreakLowestSongID})
	if al.Offset != 10 {
		t.Errorf("Expected lowest offset 10, got %d", al.Offset)
	}

	al, _ = Align(query, records, Options{TieBreak: TieBreakFirst})
	if al.Offset != 30 {
		t.Errorf("Expected first offset 30, got %d", al.Offset)
	}
}

func TestAlignCandidateLimit(t *testing.T) {
	query := []models.Fingerprint{fp(1, 0)}
	records := []models.FingerprintRecord{
		rec(1, 0, "a"), rec(1, 0, "b"), rec(1, 0, "c"), rec(1, 0, "d"),
	}

	al, _ := Align(query, records, Options{MaxCandidates: 2})
	if len(al.Candidates) != 2 {
		t.Errorf("Expected 2 candidates, got %d", len(al.Candidates))
	}

	al, _ = Align(query, records, Options{})
	if len(al.Candidates) != 4 {
		t.Errorf("Expected all 4 candidates, got %d", len(al.Candidates))
	}
}

func TestParseTieBreak(t *testing.T) {
	tests := []struct {
		in      string
		want    TieBreak
		wantErr bool
	}{
		{"", TieBreakFirst, false},
		{"first", TieBreakFirst, false},
		{"Lowest-ID", TieBreakLowestSongID, false},
		{"random", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseTieBreak(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseTieBreak(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseTieBreak(%q) = %v, expected %v", tt.in, got, tt.want)
		}
	}
}

func TestConfidence(t *testing.T) {
	if c := Confidence(0, 100, 100); c != 0 {
		t.Errorf("Expected 0 for no votes, got %f", c)
	}
	if c := Confidence(10, 0, 100); c != 0 {
		t.Errorf("Expected 0 for empty query, got %f", c)
	}

	low := Confidence(5, 1000, 5000)
	high := Confidence(400, 1000, 5000)
	if !(low < 50 && high > 90) {
		t.Errorf("Expected low < 50 and high > 90, got %f and %f", low, high)
	}
	if high > 100 || math.IsNaN(high) {
		t.Errorf("Confidence out of range: %f", high)
	}

	// few votes are penalised even with a perfect ratio
	if c := Confidence(2, 2, 2); c >= Confidence(10, 10, 10) {
		t.Errorf("Expected 2 votes to score lower than 10 votes, got %f", c)
	}
}
