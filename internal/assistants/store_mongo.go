package assistants

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"modelgate/internal/storage"
)

// MongoStore persists entities in MongoDB. Each entity collection mirrors
// the relational shape: _id and the pagination keys indexed, the entity
// itself held as a JSON payload string.
type MongoStore struct {
	db      *mongo.Database
	storage storage.Storage
}

type mongoRecord struct {
	ID        string `bson:"_id"`
	ThreadID  string `bson:"thread_id,omitempty"`
	CreatedAt int64  `bson:"created_at"`
	Payload   string `bson:"payload"`
}

// NewMongoStore sets up indexes on the entity collections.
func NewMongoStore(ctx context.Context, st storage.Storage) (*MongoStore, error) {
	db := st.MongoDatabase()
	if db == nil {
		return nil, fmt.Errorf("mongodb database is required")
	}

	for _, coll := range []string{"message_records", "run_records"} {
		_, err := db.Collection(coll).Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys: bson.D{{Key: "thread_id", Value: 1}, {Key: "created_at", Value: 1}},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create index on %s: %w", coll, err)
		}
	}

	return &MongoStore{db: db, storage: st}, nil
}

func (s *MongoStore) insert(ctx context.Context, coll, id, threadID string, createdAt int64, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	_, err = s.db.Collection(coll).InsertOne(ctx, mongoRecord{
		ID:        id,
		ThreadID:  threadID,
		CreatedAt: createdAt,
		Payload:   string(payload),
	})
	if err != nil {
		return fmt.Errorf("insert into %s: %w", coll, err)
	}
	return nil
}

func (s *MongoStore) update(ctx context.Context, coll, id, threadID string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	filter := bson.M{"_id": id}
	if threadID != "" {
		filter["thread_id"] = threadID
	}
	res, err := s.db.Collection(coll).UpdateOne(ctx, filter,
		bson.M{"$set": bson.M{"payload": string(payload)}})
	if err != nil {
		return fmt.Errorf("update %s: %w", coll, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) get(ctx context.Context, coll, id, threadID string, out any) error {
	filter := bson.M{"_id": id}
	if threadID != "" {
		filter["thread_id"] = threadID
	}

	var rec mongoRecord
	err := s.db.Collection(coll).FindOne(ctx, filter).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrNotFound
		}
		return fmt.Errorf("query %s: %w", coll, err)
	}
	return json.Unmarshal([]byte(rec.Payload), out)
}

func (s *MongoStore) anchor(ctx context.Context, coll, id string) (int64, error) {
	var rec mongoRecord
	err := s.db.Collection(coll).FindOne(ctx, bson.M{"_id": id}).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("resolve cursor: %w", err)
	}
	return rec.CreatedAt, nil
}

func (s *MongoStore) list(ctx context.Context, coll, threadID string, page Page) ([]string, bool, error) {
	page = page.normalized()

	filter := bson.M{}
	if threadID != "" {
		filter["thread_id"] = threadID
	}

	gt, lt := "$gt", "$lt"
	if page.Order == "desc" {
		gt, lt = "$lt", "$gt"
	}

	var and []bson.M
	if page.After != "" {
		at, err := s.anchor(ctx, coll, page.After)
		if err != nil {
			return nil, false, err
		}
		and = append(and, bson.M{"$or": []bson.M{
			{"created_at": bson.M{gt: at}},
			{"created_at": at, "_id": bson.M{gt: page.After}},
		}})
	}
	if page.Before != "" {
		at, err := s.anchor(ctx, coll, page.Before)
		if err != nil {
			return nil, false, err
		}
		and = append(and, bson.M{"$or": []bson.M{
			{"created_at": bson.M{lt: at}},
			{"created_at": at, "_id": bson.M{lt: page.Before}},
		}})
	}
	if len(and) > 0 {
		filter["$and"] = and
	}

	dir := 1
	if page.Order == "desc" {
		dir = -1
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: dir}, {Key: "_id", Value: dir}}).
		SetLimit(int64(page.Limit + 1))

	cursor, err := s.db.Collection(coll).Find(ctx, filter, opts)
	if err != nil {
		return nil, false, fmt.Errorf("list %s: %w", coll, err)
	}
	defer cursor.Close(ctx)

	var payloads []string
	for cursor.Next(ctx) {
		var rec mongoRecord
		if err := cursor.Decode(&rec); err != nil {
			return nil, false, fmt.Errorf("decode %s document: %w", coll, err)
		}
		payloads = append(payloads, rec.Payload)
	}
	if err := cursor.Err(); err != nil {
		return nil, false, err
	}

	hasMore := len(payloads) > page.Limit
	if hasMore {
		payloads = payloads[:page.Limit]
	}
	return payloads, hasMore, nil
}

func (s *MongoStore) delete(ctx context.Context, coll, id string) error {
	res, err := s.db.Collection(coll).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete from %s: %w", coll, err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) CreateAssistant(ctx context.Context, a Assistant) error {
	return s.insert(ctx, "assistant_records", a.ID, "", a.CreatedAt, a)
}

func (s *MongoStore) GetAssistant(ctx context.Context, id string) (*Assistant, error) {
	var a Assistant
	if err := s.get(ctx, "assistant_records", id, "", &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *MongoStore) ListAssistants(ctx context.Context, page Page) ([]Assistant, bool, error) {
	payloads, hasMore, err := s.list(ctx, "assistant_records", "", page)
	if err != nil {
		return nil, false, err
	}
	out := make([]Assistant, 0, len(payloads))
	for _, p := range payloads {
		var a Assistant
		if err := json.Unmarshal([]byte(p), &a); err != nil {
			return nil, false, err
		}
		out = append(out, a)
	}
	return out, hasMore, nil
}

func (s *MongoStore) UpdateAssistant(ctx context.Context, a Assistant) error {
	return s.update(ctx, "assistant_records", a.ID, "", a)
}

func (s *MongoStore) DeleteAssistant(ctx context.Context, id string) error {
	return s.delete(ctx, "assistant_records", id)
}

func (s *MongoStore) CreateThread(ctx context.Context, th Thread) error {
	return s.insert(ctx, "thread_records", th.ID, "", th.CreatedAt, th)
}

func (s *MongoStore) GetThread(ctx context.Context, id string) (*Thread, error) {
	var th Thread
	if err := s.get(ctx, "thread_records", id, "", &th); err != nil {
		return nil, err
	}
	return &th, nil
}

func (s *MongoStore) ListThreads(ctx context.Context, page Page) ([]Thread, bool, error) {
	payloads, hasMore, err := s.list(ctx, "thread_records", "", page)
	if err != nil {
		return nil, false, err
	}
	out := make([]Thread, 0, len(payloads))
	for _, p := range payloads {
		var th Thread
		if err := json.Unmarshal([]byte(p), &th); err != nil {
			return nil, false, err
		}
		out = append(out, th)
	}
	return out, hasMore, nil
}

func (s *MongoStore) UpdateThread(ctx context.Context, th Thread) error {
	return s.update(ctx, "thread_records", th.ID, "", th)
}

func (s *MongoStore) DeleteThread(ctx context.Context, id string) error {
	if err := s.delete(ctx, "thread_records", id); err != nil {
		return err
	}
	if _, err := s.db.Collection("message_records").DeleteMany(ctx, bson.M{"thread_id": id}); err != nil {
		return fmt.Errorf("cascade delete messages: %w", err)
	}
	if _, err := s.db.Collection("run_records").DeleteMany(ctx, bson.M{"thread_id": id}); err != nil {
		return fmt.Errorf("cascade delete runs: %w", err)
	}
	return nil
}

func (s *MongoStore) CreateMessage(ctx context.Context, m Message) error {
	return s.insert(ctx, "message_records", m.ID, m.ThreadID, m.CreatedAt, m)
}

func (s *MongoStore) GetMessage(ctx context.Context, threadID, id string) (*Message, error) {
	var m Message
	if err := s.get(ctx, "message_records", id, threadID, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *MongoStore) ListMessages(ctx context.Context, threadID string, page Page) ([]Message, bool, error) {
	payloads, hasMore, err := s.list(ctx, "message_records", threadID, page)
	if err != nil {
		return nil, false, err
	}
	out := make([]Message, 0, len(payloads))
	for _, p := range payloads {
		var m Message
		if err := json.Unmarshal([]byte(p), &m); err != nil {
			return nil, false, err
		}
		out = append(out, m)
	}
	return out, hasMore, nil
}

func (s *MongoStore) UpdateMessage(ctx context.Context, m Message) error {
	return s.update(ctx, "message_records", m.ID, m.ThreadID, m)
}

func (s *MongoStore) CreateRun(ctx context.Context, r Run) error {
	return s.insert(ctx, "run_records", r.ID, r.ThreadID, r.CreatedAt, r)
}

func (s *MongoStore) GetRun(ctx context.Context, threadID, id string) (*Run, error) {
	var r Run
	if err := s.get(ctx, "run_records", id, threadID, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *MongoStore) ListRuns(ctx context.Context, threadID string, page Page) ([]Run, bool, error) {
	payloads, hasMore, err := s.list(ctx, "run_records", threadID, page)
	if err != nil {
		return nil, false, err
	}
	out := make([]Run, 0, len(payloads))
	for _, p := range payloads {
		var r Run
		if err := json.Unmarshal([]byte(p), &r); err != nil {
			return nil, false, err
		}
		out = append(out, r)
	}
	return out, hasMore, nil
}

func (s *MongoStore) UpdateRun(ctx context.Context, r Run) error {
	return s.update(ctx, "run_records", r.ID, r.ThreadID, r)
}

// Close releases the underlying storage connection.
func (s *MongoStore) Close() error {
	if s.storage != nil {
		return s.storage.Close()
	}
	return nil
}
