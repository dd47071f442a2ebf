package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/himanishpuri/soundz/pkg/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const (
	errDBClientNil = "db client is nil"
	insertBatch    = 500
	lookupChunk    = 500
	metaHashKey    = "hash_version"
)

type songRow struct {
	ID         string  `gorm:"primaryKey;type:varchar(36)"`
	Artist     string  `gorm:"not null;uniqueIndex:idx_song_unique,priority:1"`
	Album      string  `gorm:"not null;uniqueIndex:idx_song_unique,priority:2"`
	Track      string  `gorm:"not null;default:'';uniqueIndex:idx_song_unique,priority:3"`
	Title      string  `gorm:"not null;index:idx_song_title"`
	Year       int
	SampleRate int
	Duration   float64
	CreatedAt  time.Time
}

func (songRow) TableName() string { return "songs" }

type fingerprintRow struct {
	ID     uint   `gorm:"primaryKey;autoIncrement"`
	Hash   uint32 `gorm:"not null;index:idx_fingerprint_hash;uniqueIndex:idx_fingerprint_unique,priority:2"`
	Time   int    `gorm:"not null;uniqueIndex:idx_fingerprint_unique,priority:3"`
	SongID string `gorm:"type:varchar(36);not null;uniqueIndex:idx_fingerprint_unique,priority:1"`
}

func (fingerprintRow) TableName() string { return "fingerprints" }

type metaRow struct {
	Name  string `gorm:"primaryKey"`
	Value string `gorm:"not null"`
}

func (metaRow) TableName() string { return "store_meta" }

// SQLiteStore keeps songs and fingerprints in a single SQLite file.
type SQLiteStore struct {
	DB *gorm.DB
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}

	gormConfig := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	}

	dsn := dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)"
	db, err := gorm.Open(sqlite.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}

	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&songRow{}, &fingerprintRow{}, &metaRow{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	s := &SQLiteStore{DB: db, db: sqlDB}
	if err := s.checkHashVersion(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) checkHashVersion() error {
	want := strconv.Itoa(models.HashVersion)
	row := metaRow{Name: metaHashKey, Value: want}
	if err := s.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return fmt.Errorf("writing hash version: %w", err)
	}

	var stored metaRow
	if err := s.DB.Where("name = ?", metaHashKey).First(&stored).Error; err != nil {
		return fmt.Errorf("reading hash version: %w", err)
	}
	if stored.Value != want {
		return fmt.Errorf("%w: found %s, expected %s", ErrHashVersionMismatch, stored.Value, want)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) SaveSong(ctx context.Context, song models.Song) (string, error) {
	if s == nil || s.DB == nil {
		return "", errors.New(errDBClientNil)
	}

	row := songRow{
		ID:         uuid.NewString(),
		Artist:     song.Artist,
		Album:      song.Album,
		Track:      song.Track,
		Title:      song.Title,
		Year:       song.Year,
		SampleRate: song.SampleRate,
		Duration:   song.Duration,
	}
	if err := s.DB.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return "", ErrDuplicateSong
		}
		return "", fmt.Errorf("creating song: %w", err)
	}
	return row.ID, nil
}

func (s *SQLiteStore) SongExists(ctx context.Context, artist, album, track string) (bool, error) {
	if s == nil || s.DB == nil {
		return false, errors.New(errDBClientNil)
	}

	var count int64
	err := s.DB.WithContext(ctx).Model(&songRow{}).
		Where("artist = ? AND album = ? AND track = ?", artist, album, track).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("counting songs: %w", err)
	}
	return count > 0, nil
}

func (s *SQLiteStore) SaveFingerprints(ctx context.Context, songID string, fps []models.Fingerprint) error {
	if s == nil || s.DB == nil {
		return errors.New(errDBClientNil)
	}

	// checked outside the write transaction so the transaction never has to
	// upgrade a read lock
	if _, err := s.LookupSong(ctx, songID); err != nil {
		return err
	}
	if len(fps) == 0 {
		return nil
	}

	rows := make([]fingerprintRow, len(fps))
	for i, fp := range fps {
		rows[i] = fingerprintRow{Hash: uint32(fp.Hash), Time: fp.AnchorTime, SongID: songID}
	}

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(rows, insertBatch).Error
		if err != nil {
			return fmt.Errorf("batch insert fingerprints: %w", err)
		}
		return nil
	})
}

func (s *SQLiteStore) LookupFingerprints(ctx context.Context, hashes []models.Hash) ([]models.FingerprintRecord, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	if len(hashes) == 0 {
		return nil, nil
	}

	var rows []fingerprintRow
	for start := 0; start < len(hashes); start += lookupChunk {
		end := min(start+lookupChunk, len(hashes))
		chunk := make([]uint32, 0, end-start)
		for _, h := range hashes[start:end] {
			chunk = append(chunk, uint32(h))
		}

		var part []fingerprintRow
		if err := s.DB.WithContext(ctx).Where("hash IN ?", chunk).Find(&part).Error; err != nil {
			return nil, fmt.Errorf("batch querying fingerprints: %w", err)
		}
		rows = append(rows, part...)
	}

	// chunks may return overlapping ranges of ids when hashes repeat
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })

	out := make([]models.FingerprintRecord, 0, len(rows))
	var last uint
	for i, r := range rows {
		if i > 0 && r.ID == last {
			continue
		}
		last = r.ID
		out = append(out, models.FingerprintRecord{Hash: models.Hash(r.Hash), Time: r.Time, SongID: r.SongID})
	}
	return out, nil
}

func (s *SQLiteStore) LookupSong(ctx context.Context, songID string) (models.Song, error) {
	if s == nil || s.DB == nil {
		return models.Song{}, errors.New(errDBClientNil)
	}

	var row songRow
	if err := s.DB.WithContext(ctx).Where("id = ?", songID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Song{}, fmt.Errorf("song %s: %w", songID, ErrNotFound)
		}
		return models.Song{}, fmt.Errorf("querying song: %w", err)
	}
	return row.toModel(), nil
}

func (s *SQLiteStore) ListSongs(ctx context.Context) ([]models.Song, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New(errDBClientNil)
	}

	var rows []songRow
	if err := s.DB.WithContext(ctx).Order("artist, album, track, title").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing songs: %w", err)
	}
	songs := make([]models.Song, len(rows))
	for i, r := range rows {
		songs[i] = r.toModel()
	}
	return songs, nil
}

func (s *SQLiteStore) DeleteSong(ctx context.Context, songID string) error {
	if s == nil || s.DB == nil {
		return errors.New(errDBClientNil)
	}
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("song_id = ?", songID).Delete(&fingerprintRow{}).Error; err != nil {
			return fmt.Errorf("deleting fingerprints: %w", err)
		}
		res := tx.Where("id = ?", songID).Delete(&songRow{})
		if res.Error != nil {
			return fmt.Errorf("deleting song: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("song %s: %w", songID, ErrNotFound)
		}
		return nil
	})
}

func (s *SQLiteStore) FingerprintCount(ctx context.Context, songID string) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New(errDBClientNil)
	}

	var count int64
	if err := s.DB.WithContext(ctx).Model(&fingerprintRow{}).Where("song_id = ?", songID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting fingerprints: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	if s == nil || s.DB == nil {
		return Stats{}, errors.New(errDBClientNil)
	}

	var st Stats
	if err := s.DB.WithContext(ctx).Model(&songRow{}).Count(&st.Songs).Error; err != nil {
		return Stats{}, fmt.Errorf("counting songs: %w", err)
	}
	if err := s.DB.WithContext(ctx).Model(&fingerprintRow{}).Count(&st.Fingerprints).Error; err != nil {
		return Stats{}, fmt.Errorf("counting fingerprints: %w", err)
	}
	return st, nil
}

func (r songRow) toModel() models.Song {
	return models.Song{
		ID:         r.ID,
		Artist:     r.Artist,
		Album:      r.Album,
		Title:      r.Title,
		Track:      r.Track,
		Year:       r.Year,
		SampleRate: r.SampleRate,
		Duration:   r.Duration,
		CreatedAt:  r.CreatedAt,
	}
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
