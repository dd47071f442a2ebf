package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/himanishpuri/soundz/pkg/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	collSongs        = "songs"
	collFingerprints = "fingerprints"
	collBatches      = "batches"
	collMeta         = "meta"
)

type songDoc struct {
	ID         string    `bson:"_id"`
	Artist     string    `bson:"artist"`
	Album      string    `bson:"album"`
	Track      string    `bson:"track"`
	Title      string    `bson:"title"`
	Year       int       `bson:"year"`
	SampleRate int       `bson:"sample_rate"`
	Duration   float64   `bson:"duration"`
	CreatedAt  time.Time `bson:"created_at"`
}

type fingerprintDoc struct {
	ID     primitive.ObjectID `bson:"_id,omitempty"`
	Hash   int64              `bson:"hash"`
	Time   int                `bson:"time"`
	SongID string             `bson:"song_id"`
	Batch  string             `bson:"batch"`
}

type batchDoc struct {
	ID     string `bson:"_id"`
	SongID string `bson:"song_id"`
}

// MongoStore keeps songs and fingerprints in a MongoDB database. A
// fingerprint document is only visible once the batch it was inserted with
// has a document in the batches collection.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("pinging mongo: %w", err)
	}

	s := &MongoStore{client: client, db: client.Database(database)}
	if err := s.ensureIndexes(ctx); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}
	if err := s.checkHashVersion(ctx); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.db.Collection(collSongs).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "artist", Value: 1}, {Key: "album", Value: 1}, {Key: "track", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("idx_song_unique"),
	})
	if err != nil {
		return fmt.Errorf("creating song index: %w", err)
	}

	_, err = s.db.Collection(collFingerprints).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "hash", Value: 1}},
			Options: options.Index().SetName("idx_fingerprint_hash"),
		},
		{
			Keys:    bson.D{{Key: "song_id", Value: 1}, {Key: "hash", Value: 1}, {Key: "time", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("idx_fingerprint_unique"),
		},
	})
	if err != nil {
		return fmt.Errorf("creating fingerprint indexes: %w", err)
	}

	_, err = s.db.Collection(collBatches).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "song_id", Value: 1}},
		Options: options.Index().SetName("idx_batch_song"),
	})
	if err != nil {
		return fmt.Errorf("creating batch index: %w", err)
	}
	return nil
}

func (s *MongoStore) checkHashVersion(ctx context.Context) error {
	want := strconv.Itoa(models.HashVersion)
	meta := s.db.Collection(collMeta)

	_, err := meta.UpdateOne(ctx,
		bson.M{"_id": metaHashKey},
		bson.M{"$setOnInsert": bson.M{"value": want}},
		options.Update().SetUpsert(true),
	)
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("writing hash version: %w", err)
	}

	var stored struct {
		Value string `bson:"value"`
	}
	if err := meta.FindOne(ctx, bson.M{"_id": metaHashKey}).Decode(&stored); err != nil {
		return fmt.Errorf("reading hash version: %w", err)
	}
	if stored.Value != want {
		return fmt.Errorf("%w: found %s, expected %s", ErrHashVersionMismatch, stored.Value, want)
	}
	return nil
}

func (s *MongoStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) SaveSong(ctx context.Context, song models.Song) (string, error) {
	doc := songDoc{
		ID:         uuid.NewString(),
		Artist:     song.Artist,
		Album:      song.Album,
		Track:      song.Track,
		Title:      song.Title,
		Year:       song.Year,
		SampleRate: song.SampleRate,
		Duration:   song.Duration,
		CreatedAt:  time.Now().UTC(),
	}
	if _, err := s.db.Collection(collSongs).InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", ErrDuplicateSong
		}
		return "", fmt.Errorf("creating song: %w", err)
	}
	return doc.ID, nil
}

func (s *MongoStore) SongExists(ctx context.Context, artist, album, track string) (bool, error) {
	n, err := s.db.Collection(collSongs).CountDocuments(ctx,
		bson.M{"artist": artist, "album": album, "track": track},
		options.Count().SetLimit(1),
	)
	if err != nil {
		return false, fmt.Errorf("counting songs: %w", err)
	}
	return n > 0, nil
}

func (s *MongoStore) SaveFingerprints(ctx context.Context, songID string, fps []models.Fingerprint) error {
	if _, err := s.LookupSong(ctx, songID); err != nil {
		return err
	}
	if len(fps) == 0 {
		return nil
	}

	batch := uuid.NewString()
	docs := make([]interface{}, len(fps))
	for i, fp := range fps {
		docs[i] = fingerprintDoc{Hash: int64(fp.Hash), Time: fp.AnchorTime, SongID: songID, Batch: batch}
	}

	_, err := s.db.Collection(collFingerprints).InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err != nil && !onlyDuplicateKeys(err) {
		return fmt.Errorf("batch insert fingerprints: %w", err)
	}
	if err := s.adoptUncommitted(ctx, songID, batch); err != nil {
		return err
	}

	if _, err := s.db.Collection(collBatches).InsertOne(ctx, batchDoc{ID: batch, SongID: songID}); err != nil {
		return fmt.Errorf("committing fingerprint batch: %w", err)
	}
	return nil
}

// adoptUncommitted moves the song's rows left behind by an earlier failed
// save into batch. Those rows made the duplicate-key errors of the insert
// above, so they have to become visible with this commit.
func (s *MongoStore) adoptUncommitted(ctx context.Context, songID, batch string) error {
	committed, err := s.committedBatches(ctx, bson.M{"song_id": songID})
	if err != nil {
		return err
	}
	committed = append(committed, batch)

	_, err = s.db.Collection(collFingerprints).UpdateMany(ctx,
		bson.M{"song_id": songID, "batch": bson.M{"$nin": committed}},
		bson.M{"$set": bson.M{"batch": batch}},
	)
	if err != nil {
		return fmt.Errorf("adopting uncommitted fingerprints: %w", err)
	}
	return nil
}

// onlyDuplicateKeys reports whether every write error of an unordered bulk
// insert was a duplicate key.
func onlyDuplicateKeys(err error) bool {
	var bwe mongo.BulkWriteException
	if errors.As(err, &bwe) {
		if bwe.WriteConcernError != nil || len(bwe.WriteErrors) == 0 {
			return false
		}
		for _, we := range bwe.WriteErrors {
			if we.Code != 11000 {
				return false
			}
		}
		return true
	}
	return mongo.IsDuplicateKeyError(err)
}

func (s *MongoStore) LookupFingerprints(ctx context.Context, hashes []models.Hash) ([]models.FingerprintRecord, error) {
	if len(hashes) == 0 {
		return nil, nil
	}

	var docs []fingerprintDoc
	for start := 0; start < len(hashes); start += lookupChunk {
		end := min(start+lookupChunk, len(hashes))
		chunk := make([]int64, 0, end-start)
		for _, h := range hashes[start:end] {
			chunk = append(chunk, int64(h))
		}

		cur, err := s.db.Collection(collFingerprints).Find(ctx,
			bson.M{"hash": bson.M{"$in": chunk}},
			options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}),
		)
		if err != nil {
			return nil, fmt.Errorf("batch querying fingerprints: %w", err)
		}
		var part []fingerprintDoc
		if err := cur.All(ctx, &part); err != nil {
			return nil, fmt.Errorf("decoding fingerprints: %w", err)
		}
		docs = append(docs, part...)
	}
	if len(docs) == 0 {
		return nil, nil
	}

	committed, alive, err := s.visibility(ctx, docs)
	if err != nil {
		return nil, err
	}

	seen := make(map[primitive.ObjectID]struct{}, len(docs))
	out := make([]models.FingerprintRecord, 0, len(docs))
	for _, d := range docs {
		if _, dup := seen[d.ID]; dup {
			continue
		}
		seen[d.ID] = struct{}{}
		if !committed[d.Batch] || !alive[d.SongID] {
			continue
		}
		out = append(out, models.FingerprintRecord{Hash: models.Hash(d.Hash), Time: d.Time, SongID: d.SongID})
	}
	return out, nil
}

func (s *MongoStore) visibility(ctx context.Context, docs []fingerprintDoc) (committed, alive map[string]bool, err error) {
	batchSet := make(map[string]struct{})
	songSet := make(map[string]struct{})
	for _, d := range docs {
		batchSet[d.Batch] = struct{}{}
		songSet[d.SongID] = struct{}{}
	}

	committed = make(map[string]bool, len(batchSet))
	var batches []batchDoc
	cur, err := s.db.Collection(collBatches).Find(ctx, bson.M{"_id": bson.M{"$in": keys(batchSet)}})
	if err != nil {
		return nil, nil, fmt.Errorf("querying batches: %w", err)
	}
	if err := cur.All(ctx, &batches); err != nil {
		return nil, nil, fmt.Errorf("decoding batches: %w", err)
	}
	for _, b := range batches {
		committed[b.ID] = true
	}

	alive = make(map[string]bool, len(songSet))
	var songs []songDoc
	cur, err = s.db.Collection(collSongs).Find(ctx,
		bson.M{"_id": bson.M{"$in": keys(songSet)}},
		options.Find().SetProjection(bson.M{"_id": 1}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("querying songs: %w", err)
	}
	if err := cur.All(ctx, &songs); err != nil {
		return nil, nil, fmt.Errorf("decoding songs: %w", err)
	}
	for _, sd := range songs {
		alive[sd.ID] = true
	}
	return committed, alive, nil
}

func keys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}

func (s *MongoStore) LookupSong(ctx context.Context, songID string) (models.Song, error) {
	var doc songDoc
	err := s.db.Collection(collSongs).FindOne(ctx, bson.M{"_id": songID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Song{}, fmt.Errorf("song %s: %w", songID, ErrNotFound)
	}
	if err != nil {
		return models.Song{}, fmt.Errorf("querying song: %w", err)
	}
	return doc.toModel(), nil
}

func (s *MongoStore) ListSongs(ctx context.Context) ([]models.Song, error) {
	cur, err := s.db.Collection(collSongs).Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{
			{Key: "artist", Value: 1}, {Key: "album", Value: 1},
			{Key: "track", Value: 1}, {Key: "title", Value: 1},
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("listing songs: %w", err)
	}
	var docs []songDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decoding songs: %w", err)
	}

	songs := make([]models.Song, len(docs))
	for i, d := range docs {
		songs[i] = d.toModel()
	}
	return songs, nil
}

// DeleteSong removes the song document first so its fingerprints stop
// matching even if the cleanup below is interrupted.
func (s *MongoStore) DeleteSong(ctx context.Context, songID string) error {
	res, err := s.db.Collection(collSongs).DeleteOne(ctx, bson.M{"_id": songID})
	if err != nil {
		return fmt.Errorf("deleting song: %w", err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("song %s: %w", songID, ErrNotFound)
	}

	if _, err := s.db.Collection(collFingerprints).DeleteMany(ctx, bson.M{"song_id": songID}); err != nil {
		return fmt.Errorf("deleting fingerprints: %w", err)
	}
	if _, err := s.db.Collection(collBatches).DeleteMany(ctx, bson.M{"song_id": songID}); err != nil {
		return fmt.Errorf("deleting batches: %w", err)
	}
	return nil
}

func (s *MongoStore) FingerprintCount(ctx context.Context, songID string) (int64, error) {
	committed, err := s.committedBatches(ctx, bson.M{"song_id": songID})
	if err != nil {
		return 0, err
	}
	n, err := s.db.Collection(collFingerprints).CountDocuments(ctx,
		bson.M{"song_id": songID, "batch": bson.M{"$in": committed}})
	if err != nil {
		return 0, fmt.Errorf("counting fingerprints: %w", err)
	}
	return n, nil
}

func (s *MongoStore) Stats(ctx context.Context) (Stats, error) {
	songs, err := s.db.Collection(collSongs).CountDocuments(ctx, bson.M{})
	if err != nil {
		return Stats{}, fmt.Errorf("counting songs: %w", err)
	}
	committed, err := s.committedBatches(ctx, bson.M{})
	if err != nil {
		return Stats{}, err
	}
	fps, err := s.db.Collection(collFingerprints).CountDocuments(ctx, bson.M{"batch": bson.M{"$in": committed}})
	if err != nil {
		return Stats{}, fmt.Errorf("counting fingerprints: %w", err)
	}
	return Stats{Songs: songs, Fingerprints: fps}, nil
}

func (s *MongoStore) committedBatches(ctx context.Context, filter bson.M) ([]string, error) {
	var batches []batchDoc
	cur, err := s.db.Collection(collBatches).Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("querying batches: %w", err)
	}
	if err := cur.All(ctx, &batches); err != nil {
		return nil, fmt.Errorf("decoding batches: %w", err)
	}
	ids := make([]string, 0, len(batches))
	for _, b := range batches {
		ids = append(ids, b.ID)
	}
	return ids, nil
}

func (d songDoc) toModel() models.Song {
	return models.Song{
		ID:         d.ID,
		Artist:     d.Artist,
		Album:      d.Album,
		Title:      d.Title,
		Track:      d.Track,
		Year:       d.Year,
		SampleRate: d.SampleRate,
		Duration:   d.Duration,
		CreatedAt:  d.CreatedAt,
	}
}
