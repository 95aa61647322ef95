package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const mongoValueField = "v"

// MongoStore хранит документы второго уровня как документы коллекций
// MongoDB: rooms/{id} -> коллекция rooms, _id = id, значение в поле v.
// Запись внутри одного документа атомарна ($set/$unset), запись сразу
// в несколько документов отклоняется. Уведомления рассылаются только
// подписчикам этого процесса.
type MongoStore struct {
	db   *mongo.Database
	opts storeOptions
	subs *notifier
}

var _ Store = (*MongoStore)(nil)

func NewMongoStore(db *mongo.Database, opts ...Option) *MongoStore {
	return &MongoStore{db: db, opts: buildOptions(opts), subs: newNotifier()}
}

type mongoDoc struct {
	ID    string `bson:"_id"`
	Value any    `bson:"v"`
}

func (s *MongoStore) Get(ctx context.Context, path string) (Snapshot, error) {
	segs, err := splitPath(path)
	if err != nil {
		return Snapshot{}, err
	}
	coll := s.db.Collection(segs[0])

	if len(segs) == 1 {
		cursor, err := coll.Find(ctx, bson.M{})
		if err != nil {
			return Snapshot{}, fmt.Errorf("find %s: %w", segs[0], err)
		}
		var docs []mongoDoc
		if err := cursor.All(ctx, &docs); err != nil {
			return Snapshot{}, fmt.Errorf("read %s: %w", segs[0], err)
		}
		out := make(map[string]any, len(docs))
		for _, d := range docs {
			if v := prune(fromBSON(d.Value)); v != nil {
				out[d.ID] = v
			}
		}
		return NewSnapshot(path, prune(out)), nil
	}

	var doc mongoDoc
	err = coll.FindOne(ctx, bson.M{"_id": segs[1]}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return NewSnapshot(path, nil), nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("find %s/%s: %w", segs[0], segs[1], err)
	}
	value, _ := getAt(prune(fromBSON(doc.Value)), segs[2:])
	return NewSnapshot(path, value), nil
}

// fromBSON приводит декодированные значения драйвера к тому же виду,
// что и encoding/json.
func fromBSON(v any) any {
	switch t := v.(type) {
	case primitive.M:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = fromBSON(child)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = fromBSON(child)
		}
		return out
	case primitive.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = fromBSON(e.Value)
		}
		return out
	case primitive.A:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = fromBSON(child)
		}
		return out
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	default:
		return v
	}
}

func (s *MongoStore) Set(ctx context.Context, path string, value any) error {
	return s.Update(ctx, map[string]any{path: value})
}

func (s *MongoStore) Update(ctx context.Context, updates map[string]any) error {
	writes, err := prepareUpdates(updates, s.opts.now().UnixMilli())
	if err != nil {
		return err
	}
	if len(writes) == 0 {
		return nil
	}
	collection, id := writes[0].segs[0], writes[0].segs[1]
	for _, w := range writes[1:] {
		if w.segs[0] != collection || w.segs[1] != id {
			return fmt.Errorf("%w: %s/%s and %s", ErrCrossDocument, collection, id, w.path)
		}
	}
	coll := s.db.Collection(collection)
	filter := bson.M{"_id": id}

	set := bson.M{}
	unset := bson.M{}
	for _, w := range writes {
		if len(w.segs) == 2 {
			// Запись документа целиком.
			if w.value == nil {
				if _, err := coll.DeleteOne(ctx, filter); err != nil {
					return fmt.Errorf("delete %s: %w", w.path, err)
				}
			} else {
				set[mongoValueField] = w.value
			}
			continue
		}
		field := mongoField(w.segs[2:])
		if w.value == nil {
			unset[field] = ""
		} else {
			set[field] = w.value
		}
	}

	update := bson.M{}
	if len(set) > 0 {
		update["$set"] = set
	}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	if len(update) > 0 {
		opts := options.Update().SetUpsert(len(set) > 0)
		if _, err := coll.UpdateOne(ctx, filter, update, opts); err != nil {
			return fmt.Errorf("update %s/%s: %w", collection, id, err)
		}
	}

	s.subs.notify(ctx, changedPaths(writes), s.Get)
	return nil
}

// UpdateIfExists кладет проверку parent в фильтр UpdateOne без upsert,
// так что проверка и запись выполняются сервером атомарно.
func (s *MongoStore) UpdateIfExists(ctx context.Context, parent string, updates map[string]any) error {
	parentSegs, writes, err := prepareScopedUpdates(parent, updates, s.opts.now().UnixMilli())
	if err != nil {
		return err
	}
	if len(writes) == 0 {
		return nil
	}

	filter := bson.M{"_id": parentSegs[1]}
	if len(parentSegs) > 2 {
		filter[mongoField(parentSegs[2:])] = bson.M{"$exists": true}
	}
	set := bson.M{}
	unset := bson.M{}
	for _, w := range writes {
		if w.value == nil {
			unset[mongoField(w.segs[2:])] = ""
		} else {
			set[mongoField(w.segs[2:])] = w.value
		}
	}
	update := bson.M{}
	if len(set) > 0 {
		update["$set"] = set
	}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	res, err := s.db.Collection(parentSegs[0]).UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("update %s: %w", parent, err)
	}
	if res.MatchedCount == 0 {
		return nil
	}
	s.subs.notify(ctx, changedPaths(writes), s.Get)
	return nil
}

func mongoField(segs []string) string {
	return mongoValueField + "." + strings.Join(segs, ".")
}

func (s *MongoStore) Push(ctx context.Context, parent string, value any) (string, error) {
	segs, err := splitPath(parent)
	if err != nil {
		return "", err
	}
	key := s.opts.keys()
	if err := s.Set(ctx, joinPath(append(segs, key)), value); err != nil {
		return "", err
	}
	return key, nil
}

func (s *MongoStore) Subscribe(ctx context.Context, path string, fn func(Snapshot)) (Unsubscribe, error) {
	return s.subs.subscribe(ctx, path, fn, s.Get)
}

// Close снимает подписки. Клиент MongoDB отключает вызывающий.
func (s *MongoStore) Close() error {
	s.subs.clear()
	return nil
}
