package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Dzmitry-Rybak/natours/models"
	"github.com/Dzmitry-Rybak/natours/utils"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrNotFound = errors.New("document not found")

// Collection is the CRUD core shared by all repositories. PT is the pointer
// type of T so model methods with pointer receivers are reachable.
type Collection[T any, PT interface {
	*T
	models.Document
}] struct {
	coll *mongo.Collection
	base bson.M
}

// NewCollection wraps coll. base is merged into every read and write filter.
func NewCollection[T any, PT interface {
	*T
	models.Document
}](coll *mongo.Collection, base bson.M) *Collection[T, PT] {
	return &Collection[T, PT]{coll: coll, base: base}
}

func (c *Collection[T, PT]) Mongo() *mongo.Collection {
	return c.coll
}

// Scoped combines filter with the base filter. The base filter always wins.
func (c *Collection[T, PT]) Scoped(filter bson.M) bson.M {
	if len(c.base) == 0 {
		if filter == nil {
			return bson.M{}
		}
		return filter
	}
	if len(filter) == 0 {
		return c.base
	}
	return bson.M{"$and": bson.A{c.base, filter}}
}

func (c *Collection[T, PT]) FindByID(ctx context.Context, id primitive.ObjectID) (*T, error) {
	return c.FindOne(ctx, bson.M{"_id": id})
}

func (c *Collection[T, PT]) FindOne(ctx context.Context, filter bson.M) (*T, error) {
	var doc T
	err := c.coll.FindOne(ctx, c.Scoped(filter)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find one in %s: %w", c.coll.Name(), err)
	}
	return &doc, nil
}

// Find runs the query described by the request features.
func (c *Collection[T, PT]) Find(ctx context.Context, f *utils.APIFeatures) ([]T, error) {
	if err := f.Err(); err != nil {
		return nil, err
	}
	return c.FindAll(ctx, f.FilterDoc(), f.FindOptions())
}

func (c *Collection[T, PT]) FindAll(ctx context.Context, filter bson.M, opts ...*options.FindOptions) ([]T, error) {
	cur, err := c.coll.Find(ctx, c.Scoped(filter), opts...)
	if err != nil {
		return nil, fmt.Errorf("find in %s: %w", c.coll.Name(), err)
	}
	docs := []T{}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode %s: %w", c.coll.Name(), err)
	}
	return docs, nil
}

func (c *Collection[T, PT]) Count(ctx context.Context, filter bson.M) (int64, error) {
	return c.coll.CountDocuments(ctx, c.Scoped(filter))
}

// Create runs the save hook and validation, then inserts doc.
func (c *Collection[T, PT]) Create(ctx context.Context, doc *T) error {
	p := PT(doc)
	if err := beforeSave(p, true); err != nil {
		return err
	}
	if err := models.Validate(p); err != nil {
		return err
	}
	if p.DocID().IsZero() {
		p.SetDocID(primitive.NewObjectID())
	}
	if _, err := c.coll.InsertOne(ctx, p); err != nil {
		return fmt.Errorf("insert into %s: %w", c.coll.Name(), err)
	}
	return nil
}

// Update merges a JSON patch into the stored document and saves it with
// hooks and validation.
func (c *Collection[T, PT]) Update(ctx context.Context, id primitive.ObjectID, patch []byte) (*T, error) {
	doc, err := c.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	p := PT(doc)
	if len(patch) > 0 {
		if err := json.Unmarshal(patch, p); err != nil {
			return nil, utils.WrapAppError(400, "Invalid request body", err)
		}
	}
	p.SetDocID(id)
	if err := c.Save(ctx, doc, true); err != nil {
		return nil, err
	}
	return doc, nil
}

// Save replaces the stored document. validate=false mirrors saving with
// validation switched off, the hook still runs.
func (c *Collection[T, PT]) Save(ctx context.Context, doc *T, validate bool) error {
	p := PT(doc)
	if err := beforeSave(p, false); err != nil {
		return err
	}
	if validate {
		if err := models.Validate(p); err != nil {
			return err
		}
	}
	res, err := c.coll.ReplaceOne(ctx, c.Scoped(bson.M{"_id": p.DocID()}), p)
	if err != nil {
		return fmt.Errorf("replace in %s: %w", c.coll.Name(), err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the document and returns it.
func (c *Collection[T, PT]) Delete(ctx context.Context, id primitive.ObjectID) (*T, error) {
	var doc T
	err := c.coll.FindOneAndDelete(ctx, c.Scoped(bson.M{"_id": id})).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("delete from %s: %w", c.coll.Name(), err)
	}
	return &doc, nil
}

func (c *Collection[T, PT]) Aggregate(ctx context.Context, pipeline mongo.Pipeline, out any) error {
	cur, err := c.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return fmt.Errorf("aggregate %s: %w", c.coll.Name(), err)
	}
	return cur.All(ctx, out)
}

func beforeSave(doc any, isNew bool) error {
	if h, ok := doc.(models.BeforeSaver); ok {
		return h.BeforeSave(isNew)
	}
	return nil
}

// lookup loads referenced documents by id for population.
func lookup[S any](ctx context.Context, coll *mongo.Collection, ids []primitive.ObjectID, base bson.M, projection bson.M, key func(*S) primitive.ObjectID) (map[primitive.ObjectID]*S, error) {
	out := make(map[primitive.ObjectID]*S, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	filter := bson.M{"_id": bson.M{"$in": uniqueIDs(ids)}}
	if len(base) > 0 {
		filter = bson.M{"$and": bson.A{base, filter}}
	}
	cur, err := coll.Find(ctx, filter, options.Find().SetProjection(projection))
	if err != nil {
		return nil, fmt.Errorf("populate from %s: %w", coll.Name(), err)
	}
	var refs []S
	if err := cur.All(ctx, &refs); err != nil {
		return nil, fmt.Errorf("populate from %s: %w", coll.Name(), err)
	}
	for i := range refs {
		out[key(&refs[i])] = &refs[i]
	}
	return out, nil
}

func uniqueIDs(ids []primitive.ObjectID) []primitive.ObjectID {
	seen := make(map[primitive.ObjectID]struct{}, len(ids))
	out := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id.IsZero() {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
