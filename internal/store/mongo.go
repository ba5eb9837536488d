package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
)

const defaultMongoDatabase = "pagetree"

// MongoStore keeps one document per page in a flat collection. Tree queries
// are path range scans over the (path, level, rank) index.
type MongoStore struct {
	client    *mongo.Client
	pages     *mongo.Collection
	redirects *mongo.Collection
	counters  *mongo.Collection
}

type pageDoc struct {
	ID        string            `bson:"_id"`
	Slug      string            `bson:"slug"`
	Path      string            `bson:"path,omitempty"`
	Level     int               `bson:"level"`
	Rank      int               `bson:"rank"`
	Type      string            `bson:"type"`
	Title     string            `bson:"title"`
	Areas     map[string]string `bson:"areas,omitempty"`
	CreatedAt time.Time         `bson:"created_at"`
	UpdatedAt time.Time         `bson:"updated_at"`
}

func (d pageDoc) page() Page {
	return Page{
		ID:        d.ID,
		Slug:      d.Slug,
		Path:      d.Path,
		Level:     d.Level,
		Rank:      d.Rank,
		Type:      d.Type,
		Title:     d.Title,
		Areas:     d.Areas,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

type redirectDoc struct {
	From      string    `bson:"_id"`
	To        string    `bson:"to"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func OpenMongo(ctx context.Context, uri string) (*MongoStore, error) {
	database := defaultMongoDatabase
	if cs, err := connstring.ParseAndValidate(uri); err == nil && cs.Database != "" {
		database = cs.Database
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(database)
	s := &MongoStore{
		client:    client,
		pages:     db.Collection("pages"),
		redirects: db.Collection("redirects"),
		counters:  db.Collection("rank_counters"),
	}
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.pages.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "slug", Value: 1}}, Options: options.Index().SetUnique(true).SetName("slug_unique")},
		{Keys: bson.D{{Key: "path", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true).SetName("path_unique")},
		{Keys: bson.D{{Key: "path", Value: 1}, {Key: "level", Value: 1}, {Key: "rank", Value: 1}}, Options: options.Index().SetName("path_level_rank")},
	})
	if err != nil {
		return fmt.Errorf("ensure page indexes: %w", err)
	}
	return nil
}

var lightProjection = bson.D{{Key: "areas", Value: 0}}

var levelRankSort = bson.D{{Key: "level", Value: 1}, {Key: "rank", Value: 1}, {Key: "path", Value: 1}}

func (s *MongoStore) findMany(ctx context.Context, op string, filter any, opts *options.FindOptions) ([]Page, error) {
	cursor, err := s.pages.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer cursor.Close(ctx)

	items := make([]Page, 0)
	for cursor.Next(ctx) {
		var doc pageDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode page: %w", err)
		}
		items = append(items, doc.page())
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterate pages: %w", err)
	}
	return items, nil
}

func (s *MongoStore) FindPageBySlug(ctx context.Context, slug string) (Page, error) {
	var doc pageDoc
	err := s.pages.FindOne(ctx, bson.M{"slug": slug}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Page{}, ErrNotFound
	}
	if err != nil {
		return Page{}, fmt.Errorf("find page by slug: %w", err)
	}
	page := doc.page()
	page.Areas = copyAreas(page.Areas)
	return page, nil
}

func (s *MongoStore) FindPagesBySlugs(ctx context.Context, slugs []string) ([]Page, error) {
	if len(slugs) == 0 {
		return []Page{}, nil
	}
	opts := options.Find().SetProjection(lightProjection)
	return s.findMany(ctx, "find pages by slugs", bson.M{"slug": bson.M{"$in": slugs}}, opts)
}

func (s *MongoStore) FindPagesByPaths(ctx context.Context, paths []string) ([]Page, error) {
	if len(paths) == 0 {
		return []Page{}, nil
	}
	opts := options.Find().SetProjection(lightProjection).SetSort(bson.D{{Key: "level", Value: 1}})
	return s.findMany(ctx, "find pages by paths", bson.M{"path": bson.M{"$in": paths}}, opts)
}

func (s *MongoStore) FindPages(ctx context.Context, q PageQuery) ([]Page, error) {
	filter := bson.M{
		"path":  bson.M{"$gte": q.PathFrom, "$lt": q.PathTo},
		"level": bson.M{"$gt": q.LevelAbove, "$lte": q.LevelAtMost},
	}
	opts := options.Find().SetProjection(lightProjection).SetSort(levelRankSort)
	return s.findMany(ctx, "find pages", filter, opts)
}

func (s *MongoStore) ListPages(ctx context.Context) ([]Page, error) {
	items, err := s.findMany(ctx, "list pages", bson.M{}, options.Find().SetSort(levelRankSort))
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].Areas = copyAreas(items[i].Areas)
	}
	return items, nil
}

func (s *MongoStore) SearchPages(ctx context.Context, q SearchQuery) ([]Page, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	pattern := regexp.QuoteMeta(strings.TrimSpace(q.Term))
	filter := bson.M{"$or": bson.A{
		bson.M{"title": bson.M{"$regex": pattern, "$options": "i"}},
		bson.M{"slug": bson.M{"$regex": pattern, "$options": "i"}},
	}}
	if q.Type != "" {
		filter["type"] = q.Type
	}
	opts := options.Find().SetSort(levelRankSort).SetLimit(int64(limit))
	return s.findMany(ctx, "search pages", filter, opts)
}

func (s *MongoStore) CountPages(ctx context.Context) (int, error) {
	count, err := s.pages.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("count pages: %w", err)
	}
	return int(count), nil
}

func (s *MongoStore) InsertPage(ctx context.Context, page Page) (Page, error) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	page.CreatedAt, page.UpdatedAt = now, now
	page.Areas = copyAreas(page.Areas)
	doc := pageDoc{
		ID:        page.ID,
		Slug:      page.Slug,
		Path:      page.Path,
		Level:     page.Level,
		Rank:      page.Rank,
		Type:      page.Type,
		Title:     page.Title,
		Areas:     page.Areas,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.pages.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return Page{}, fmt.Errorf("insert page %s: %w", page.Slug, ErrConflict)
		}
		return Page{}, fmt.Errorf("insert page: %w", err)
	}
	return page, nil
}

func (s *MongoStore) UpdatePage(ctx context.Context, page Page) (Page, error) {
	set := bson.M{
		"slug":       page.Slug,
		"level":      page.Level,
		"type":       page.Type,
		"title":      page.Title,
		"areas":      copyAreas(page.Areas),
		"updated_at": time.Now().UTC().Truncate(time.Millisecond),
	}
	update := bson.M{"$set": set}
	if page.Path == "" {
		update["$unset"] = bson.M{"path": ""}
	} else {
		set["path"] = page.Path
	}

	var doc pageDoc
	err := s.pages.FindOneAndUpdate(ctx, bson.M{"_id": page.ID}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Page{}, fmt.Errorf("update page: %w", ErrNotFound)
	}
	if mongo.IsDuplicateKeyError(err) {
		return Page{}, fmt.Errorf("update page %s: %w", page.Slug, ErrConflict)
	}
	if err != nil {
		return Page{}, fmt.Errorf("update page: %w", err)
	}
	updated := doc.page()
	updated.Areas = copyAreas(updated.Areas)
	return updated, nil
}

func (s *MongoStore) UpdatePageAddress(ctx context.Context, id, slug, path string) error {
	set := bson.M{"slug": slug, "updated_at": time.Now().UTC().Truncate(time.Millisecond)}
	update := bson.M{"$set": set}
	if path == "" {
		update["$unset"] = bson.M{"path": ""}
	} else {
		set["path"] = path
	}
	result, err := s.pages.UpdateOne(ctx, bson.M{"_id": id}, update)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("update page address %s: %w", slug, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("update page address: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("update page address: %w", ErrNotFound)
	}
	return nil
}

func (s *MongoStore) DeletePage(ctx context.Context, id string) error {
	result, err := s.pages.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete page: %w", err)
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("delete page: %w", ErrNotFound)
	}
	return nil
}

func (s *MongoStore) LookupRedirect(ctx context.Context, from string) (Redirect, error) {
	var doc redirectDoc
	err := s.redirects.FindOne(ctx, bson.M{"_id": from}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Redirect{}, ErrNotFound
	}
	if err != nil {
		return Redirect{}, fmt.Errorf("lookup redirect: %w", err)
	}
	return Redirect{From: doc.From, To: doc.To, UpdatedAt: doc.UpdatedAt}, nil
}

func (s *MongoStore) UpsertRedirect(ctx context.Context, from, to string) error {
	_, err := s.redirects.UpdateOne(ctx,
		bson.M{"_id": from},
		bson.M{"$set": bson.M{"to": to, "updated_at": time.Now().UTC().Truncate(time.Millisecond)}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upsert redirect: %w", err)
	}
	return nil
}

// NextRank applies "raise to floor, then increment" as one pipeline update so
// concurrent callers never observe the same value.
func (s *MongoStore) NextRank(ctx context.Context, parentID string, floor int) (int, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{{Key: "last_rank", Value: bson.D{{Key: "$add", Value: bson.A{
			bson.D{{Key: "$max", Value: bson.A{"$last_rank", floor}}},
			1,
		}}}}}}},
	}
	var doc struct {
		LastRank int `bson:"last_rank"`
	}
	err := s.counters.FindOneAndUpdate(ctx, bson.M{"_id": parentID}, pipeline,
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)).Decode(&doc)
	if err != nil {
		return 0, fmt.Errorf("next rank: %w", err)
	}
	return doc.LastRank, nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("ping mongo: %w", err)
	}
	return nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
