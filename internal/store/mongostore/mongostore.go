// Package mongostore implements store.Store on MongoDB.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"

	"vodpipe/internal/config"
	"vodpipe/internal/store"
)

const (
	videosCollection    = "videos"
	qualitiesCollection = "video_qualities"
)

// Store is a MongoDB-backed store.Store.
type Store struct {
	client    *mongo.Client
	videos    *mongo.Collection
	qualities *mongo.Collection
	now       func() time.Time
	owned     bool
}

var _ store.Store = (*Store)(nil)

type videoDoc struct {
	ID          string   `bson:"_id"`
	Title       string   `bson:"title"`
	Description *string  `bson:"description,omitempty"`
	Duration    *float64 `bson:"duration,omitempty"`
	Status      string   `bson:"status"`
	CreatedAt   int64    `bson:"createdAt"`
	UpdatedAt   int64    `bson:"updatedAt"`
}

type qualityDoc struct {
	ID         string `bson:"_id"`
	VideoID    string `bson:"videoId"`
	Resolution string `bson:"resolution"`
	Bitrate    string `bson:"bitrate"`
	FilePath   string `bson:"filePath"`
	CreatedAt  int64  `bson:"createdAt"`
}

// Connect dials uri with the OpenTelemetry command monitor attached.
func Connect(ctx context.Context, uri string, extra ...*options.ClientOptions) (*mongo.Client, error) {
	opts := append([]*options.ClientOptions{
		options.Client().ApplyURI(uri).SetMonitor(otelmongo.NewMonitor()),
	}, extra...)
	client, err := mongo.Connect(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Open connects using cfg.Store, verifies the primary, and ensures indexes.
func Open(ctx context.Context, cfg *config.Config) (*Store, error) {
	timeout := time.Duration(cfg.Store.MongoConnectTimeout) * time.Second
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := Connect(ctx, cfg.Store.MongoURI, options.Client().SetConnectTimeout(timeout))
	if err != nil {
		return nil, store.Wrap("open", fmt.Errorf("mongo connect: %w", err))
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, store.Wrap("open", fmt.Errorf("mongo ping: %w", err))
	}
	s := New(client, cfg.Store.MongoDatabase)
	s.owned = true
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, store.Wrap("open", fmt.Errorf("ensure indexes: %w", err))
	}
	return s, nil
}

// New wraps an existing client. Close leaves a client it did not dial connected.
func New(client *mongo.Client, dbName string) *Store {
	db := client.Database(dbName)
	return &Store{
		client:    client,
		videos:    db.Collection(videosCollection),
		qualities: db.Collection(qualitiesCollection),
		now:       time.Now,
	}
}

// EnsureIndexes creates the listing and lookup indexes.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	if _, err := s.videos.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
	}); err != nil {
		return err
	}
	_, err := s.qualities.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "videoId", Value: 1}, {Key: "createdAt", Value: 1}},
	})
	return err
}

// Close disconnects the client when Open dialed it.
func (s *Store) Close() error {
	if s == nil || s.client == nil || !s.owned {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Ping checks the primary is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return store.Wrap("ping", s.client.Ping(ctx, readpref.Primary()))
}

func (s *Store) stamp() int64 {
	return s.now().UTC().UnixNano()
}

// CreateVideo inserts v as uploading.
func (s *Store) CreateVideo(ctx context.Context, v store.Video) (*store.Video, error) {
	if v.ID == "" {
		return nil, store.Wrap("create video", errors.New("video id is required"))
	}
	now := s.stamp()
	doc := videoDoc{
		ID:        v.ID,
		Title:     v.Title,
		Status:    string(store.StatusUploading),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if v.Description != "" {
		desc := v.Description
		doc.Description = &desc
	}
	if _, err := s.videos.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, store.Wrap("create video", fmt.Errorf("%w: video %s", store.ErrDuplicate, v.ID))
		}
		return nil, store.Wrap("create video", err)
	}
	out := fromVideoDoc(doc)
	return &out, nil
}

// UpdateStatus applies a guarded transition.
func (s *Store) UpdateStatus(ctx context.Context, id string, status store.Status) error {
	var sources []string
	for _, from := range store.AllStatuses() {
		if store.CanTransition(from, status) {
			sources = append(sources, string(from))
		}
	}
	if len(sources) == 0 {
		return store.Wrap("update status", fmt.Errorf("%w: nothing transitions to %q", store.ErrInvalidTransition, status))
	}
	res, err := s.videos.UpdateOne(ctx,
		bson.M{"_id": id, "status": bson.M{"$in": sources}},
		bson.M{"$set": bson.M{"status": string(status), "updatedAt": s.stamp()}},
	)
	if err != nil {
		return store.Wrap("update status", err)
	}
	if res.MatchedCount == 1 {
		return nil
	}
	current, err := s.GetVideo(ctx, id)
	if err != nil {
		return err
	}
	return store.Wrap("update status", fmt.Errorf("%w: %s -> %s", store.ErrInvalidTransition, current.Status, status))
}

// UpdateDuration records the probed duration.
func (s *Store) UpdateDuration(ctx context.Context, id string, seconds float64) error {
	res, err := s.videos.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"duration": seconds, "updatedAt": s.stamp()}},
	)
	if err != nil {
		return store.Wrap("update duration", err)
	}
	if res.MatchedCount == 0 {
		return store.Wrap("update duration", store.ErrNotFound)
	}
	return nil
}

// InsertQuality records a rendition for an existing video.
func (s *Store) InsertQuality(ctx context.Context, q store.Quality) (*store.Quality, error) {
	n, err := s.videos.CountDocuments(ctx, bson.M{"_id": q.VideoID})
	if err != nil {
		return nil, store.Wrap("insert quality", err)
	}
	if n == 0 {
		return nil, store.Wrap("insert quality", store.ErrNotFound)
	}
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	doc := qualityDoc{
		ID:         q.ID,
		VideoID:    q.VideoID,
		Resolution: q.Resolution,
		Bitrate:    q.Bitrate,
		FilePath:   q.FilePath,
		CreatedAt:  s.stamp(),
	}
	if _, err := s.qualities.InsertOne(ctx, doc); err != nil {
		return nil, store.Wrap("insert quality", err)
	}
	out := fromQualityDoc(doc)
	return &out, nil
}

// GetVideo fetches one video.
func (s *Store) GetVideo(ctx context.Context, id string) (*store.Video, error) {
	var doc videoDoc
	if err := s.videos.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.Wrap("get video", store.ErrNotFound)
		}
		return nil, store.Wrap("get video", err)
	}
	v := fromVideoDoc(doc)
	return &v, nil
}

// ListVideos returns a newest-first page.
func (s *Store) ListVideos(ctx context.Context, filter store.ListFilter) (store.ListResult, error) {
	query := bson.M{}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		query["status"] = bson.M{"$in": statuses}
	}

	total, err := s.videos.CountDocuments(ctx, query)
	if err != nil {
		return store.ListResult{}, store.Wrap("list videos", err)
	}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	if filter.Offset > 0 {
		opts.SetSkip(int64(filter.Offset))
	}
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	cursor, err := s.videos.Find(ctx, query, opts)
	if err != nil {
		return store.ListResult{}, store.Wrap("list videos", err)
	}
	defer cursor.Close(ctx)

	var docs []videoDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return store.ListResult{}, store.Wrap("list videos", err)
	}
	result := store.ListResult{Total: int(total), Videos: make([]store.Video, 0, len(docs))}
	for _, doc := range docs {
		result.Videos = append(result.Videos, fromVideoDoc(doc))
	}
	return result, nil
}

// ListQualities returns one video's renditions.
func (s *Store) ListQualities(ctx context.Context, videoID string) ([]store.Quality, error) {
	byVideo, err := s.QualitiesFor(ctx, []string{videoID})
	if err != nil {
		return nil, err
	}
	return byVideo[videoID], nil
}

// QualitiesFor returns renditions grouped by video.
func (s *Store) QualitiesFor(ctx context.Context, videoIDs []string) (map[string][]store.Quality, error) {
	out := make(map[string][]store.Quality, len(videoIDs))
	if len(videoIDs) == 0 {
		return out, nil
	}
	cursor, err := s.qualities.Find(ctx,
		bson.M{"videoId": bson.M{"$in": videoIDs}},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}),
	)
	if err != nil {
		return nil, store.Wrap("list qualities", err)
	}
	defer cursor.Close(ctx)

	var docs []qualityDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, store.Wrap("list qualities", err)
	}
	for _, doc := range docs {
		out[doc.VideoID] = append(out[doc.VideoID], fromQualityDoc(doc))
	}
	return out, nil
}

// FailInterrupted fails every uploading or processing video.
func (s *Store) FailInterrupted(ctx context.Context) ([]string, error) {
	filter := bson.M{"status": bson.M{"$in": []string{string(store.StatusUploading), string(store.StatusProcessing)}}}
	cursor, err := s.videos.Find(ctx, filter, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, store.Wrap("fail interrupted", err)
	}
	var docs []struct {
		ID string `bson:"_id"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, store.Wrap("fail interrupted", err)
	}
	if len(docs) == 0 {
		return nil, nil
	}
	ids := make([]string, len(docs))
	for i, doc := range docs {
		ids[i] = doc.ID
	}
	_, err = s.videos.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": ids}, "status": filter["status"]},
		bson.M{"$set": bson.M{"status": string(store.StatusFailed), "updatedAt": s.stamp()}},
	)
	if err != nil {
		return nil, store.Wrap("fail interrupted", err)
	}
	return ids, nil
}

func fromVideoDoc(doc videoDoc) store.Video {
	v := store.Video{
		ID:        doc.ID,
		Title:     doc.Title,
		Duration:  doc.Duration,
		Status:    store.Status(doc.Status),
		CreatedAt: time.Unix(0, doc.CreatedAt).UTC(),
		UpdatedAt: time.Unix(0, doc.UpdatedAt).UTC(),
	}
	if doc.Description != nil {
		v.Description = *doc.Description
	}
	return v
}

func fromQualityDoc(doc qualityDoc) store.Quality {
	return store.Quality{
		ID:         doc.ID,
		VideoID:    doc.VideoID,
		Resolution: doc.Resolution,
		Bitrate:    doc.Bitrate,
		FilePath:   doc.FilePath,
		CreatedAt:  time.Unix(0, doc.CreatedAt).UTC(),
	}
}
