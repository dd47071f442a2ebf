package audio

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dhowden/tag"
	"github.com/himanishpuri/soundz/pkg/models"
)

// ReadTags returns the song metadata embedded in the file. Files without a
// recognised tag format yield a song titled after the file name.
func ReadTags(path string) (models.Song, error) {
	f, err := os.Open(path)
	if err != nil {
		return models.Song{}, err
	}
	defer f.Close()

	// a missing or unreadable tag block is not fatal for ingestion
	song := models.Song{}
	if m, err := tag.ReadFrom(f); err == nil {
		song.Title = strings.TrimSpace(m.Title())
		song.Artist = strings.TrimSpace(m.Artist())
		song.Album = strings.TrimSpace(m.Album())
		song.Year = m.Year()
		if n, _ := m.Track(); n > 0 {
			song.Track = strconv.Itoa(n)
		}
	}

	if song.Title == "" {
		song.Title = TitleFromPath(path)
	}
	return song, nil
}

// TitleFromPath is the file's base name without its extension.
func TitleFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
