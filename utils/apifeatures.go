package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// Keys that control the query itself rather than filter documents.
var reservedParams = map[string]bool{"page": true, "sort": true, "limit": true, "fields": true}

// Repeating these keys means "any of", other keys keep the last value.
var pollutionWhitelist = map[string]bool{
	"duration":        true,
	"ratingsQuantity": true,
	"ratingsAverage":  true,
	"maxGroupSize":    true,
	"difficulty":      true,
	"price":           true,
}

var filterKey = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_.]*)(?:\[(gte|gt|lte|lt)\])?$`)

// APIFeatures turns a request query string into a mongo filter, sort,
// projection and page window.
type APIFeatures struct {
	query      url.Values
	filter     bson.M
	sort       bson.D
	projection bson.M
	include    bool
	skip       int64
	limit      int64
	page       int64
	err        error
}

func NewAPIFeatures(query url.Values) *APIFeatures {
	if query == nil {
		query = url.Values{}
	}
	return &APIFeatures{query: query, filter: bson.M{}}
}

func (f *APIFeatures) Filter() *APIFeatures {
	for key, values := range f.query {
		if reservedParams[key] || len(values) == 0 {
			continue
		}
		m := filterKey.FindStringSubmatch(key)
		if m == nil {
			continue
		}
		field, op := m[1], m[2]

		if op == "" && len(values) > 1 && pollutionWhitelist[field] {
			in := make(bson.A, 0, len(values))
			for _, v := range values {
				in = append(in, coerce(v))
			}
			f.filter[field] = bson.M{"$in": in}
			continue
		}

		value := coerce(values[len(values)-1])
		if op == "" {
			f.filter[field] = value
			continue
		}
		cond, ok := f.filter[field].(bson.M)
		if !ok {
			cond = bson.M{}
		}
		cond["$"+op] = value
		f.filter[field] = cond
	}
	return f
}

func (f *APIFeatures) Sort() *APIFeatures {
	raw := f.last("sort")
	if raw == "" {
		f.sort = bson.D{{Key: "createdAt", Value: -1}}
		return f
	}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		dir := 1
		if strings.HasPrefix(part, "-") {
			dir = -1
			part = part[1:]
		}
		if part == "" || strings.HasPrefix(part, "$") {
			continue
		}
		f.sort = append(f.sort, bson.E{Key: mongoField(part), Value: dir})
	}
	return f
}

func (f *APIFeatures) LimitFields() *APIFeatures {
	raw := f.last("fields")
	if raw == "" {
		return f
	}
	proj := bson.M{}
	var inc, exc int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.HasPrefix(part, "-") {
			proj[mongoField(part[1:])] = 0
			exc++
			continue
		}
		proj[mongoField(part)] = 1
		inc++
	}
	if inc > 0 && exc > 0 {
		f.setErr(errors.New("cannot mix included and excluded fields"))
		return f
	}
	if len(proj) > 0 {
		f.projection = proj
		f.include = inc > 0
	}
	return f
}

func (f *APIFeatures) Paginate() *APIFeatures {
	page := parsePositive(f.last("page"), 1)
	limit := parsePositive(f.last("limit"), DefaultLimit)
	if limit > MaxLimit {
		limit = MaxLimit
	}
	f.page = page
	f.limit = limit
	f.skip = (page - 1) * limit
	return f
}

// Where adds an equality condition that the query string cannot override.
func (f *APIFeatures) Where(field string, value any) *APIFeatures {
	f.filter[field] = value
	return f
}

func (f *APIFeatures) Err() error { return f.err }
func (f *APIFeatures) FilterDoc() bson.M { return f.filter }
func (f *APIFeatures) SortDoc() bson.D { return f.sort }
func (f *APIFeatures) Projection() bson.M { return f.projection }
func (f *APIFeatures) Window() (skip, limit int64) { return f.skip, f.limit }

func (f *APIFeatures) FindOptions() *options.FindOptions {
	opts := options.Find()
	if len(f.sort) > 0 {
		opts.SetSort(f.sort)
	}
	if f.projection != nil {
		opts.SetProjection(f.projection)
	}
	if f.limit > 0 {
		opts.SetSkip(f.skip).SetLimit(f.limit)
	}
	return opts
}

// Select trims already decoded documents to the requested fields so that
// zero values of unselected struct fields are not rendered.
func (f *APIFeatures) Select(docs any) (any, error) {
	if f.projection == nil {
		return docs, nil
	}
	raw, err := json.Marshal(docs)
	if err != nil {
		return nil, err
	}
	var rows []map[string]any
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("select fields: %w", err)
	}
	for _, row := range rows {
		for key := range row {
			listed := f.listed(key)
			if key == "id" {
				if v, ok := f.projection["_id"]; ok && v == 0 {
					delete(row, key)
				}
				continue
			}
			if f.include != listed {
				delete(row, key)
			}
		}
	}
	return rows, nil
}

// AliasTopTours rewrites the query for the five best rated cheap tours.
func AliasTopTours(q url.Values) {
	q.Set("limit", "5")
	q.Set("sort", "-ratingsAverage,price")
	q.Set("fields", "name,price,ratingsAverage,summary,difficulty")
}

func (f *APIFeatures) last(key string) string {
	values := f.query[key]
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[len(values)-1])
}

func (f *APIFeatures) setErr(err error) {
	if f.err == nil {
		f.err = err
	}
}

func (f *APIFeatures) listed(key string) bool {
	field := mongoField(key)
	for p := range f.projection {
		if p == field || strings.HasPrefix(p, field+".") {
			return true
		}
	}
	return false
}

func mongoField(name string) string {
	if name == "id" {
		return "_id"
	}
	return name
}

func parsePositive(s string, def int64) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 1 {
		return def
	}
	return n
}

func coerce(s string) any {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if strings.ContainsAny(s, "0123456789") {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	return s
}
