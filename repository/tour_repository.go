package repository

import (
	"context"
	"time"

	"github.com/Dzmitry-Rybak/natours/models"
	"github.com/Dzmitry-Rybak/natours/utils"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

var notSecret = bson.M{"secretTour": bson.M{"$ne": true}}

// Projection used whenever a user is embedded in another document.
var guideProjection = bson.M{"name": 1, "email": 1, "photo": 1, "role": 1}

type TourStats struct {
	Difficulty string  `bson:"_id" json:"_id"`
	NumTours   int     `bson:"numTours" json:"numTours"`
	NumRatings int     `bson:"numRatings" json:"numRatings"`
	AvgRating  float64 `bson:"avgRating" json:"avgRating"`
	AvgPrice   float64 `bson:"avgPrice" json:"avgPrice"`
	MinPrice   float64 `bson:"minPrice" json:"minPrice"`
	MaxPrice   float64 `bson:"maxPrice" json:"maxPrice"`
}

type MonthlyPlan struct {
	Month         int      `bson:"month" json:"month"`
	NumTourStarts int      `bson:"numTourStarts" json:"numTourStarts"`
	Tours         []string `bson:"tours" json:"tours"`
}

type TourDistance struct {
	ID       primitive.ObjectID `bson:"_id" json:"id"`
	Name     string             `bson:"name" json:"name"`
	Distance float64            `bson:"distance" json:"distance"`
}

type TourRepository struct {
	*Collection[models.Tour, *models.Tour]
	users   *mongo.Collection
	reviews *ReviewRepository
}

func NewTourRepository(database *mongo.Database, reviews *ReviewRepository) *TourRepository {
	return &TourRepository{
		Collection: NewCollection[models.Tour](database.Collection("tours"), notSecret),
		users:      database.Collection("users"),
		reviews:    reviews,
	}
}

func (r *TourRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Tour, error) {
	tour, err := r.Collection.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := r.populateGuides(ctx, []*models.Tour{tour}); err != nil {
		return nil, err
	}
	return tour, nil
}

func (r *TourRepository) Find(ctx context.Context, f *utils.APIFeatures) ([]models.Tour, error) {
	tours, err := r.Collection.Find(ctx, f)
	if err != nil {
		return nil, err
	}
	return tours, r.populateGuides(ctx, pointers(tours))
}

// FindWithReviews loads one tour with its guides and reviews.
func (r *TourRepository) FindWithReviews(ctx context.Context, id primitive.ObjectID) (*models.Tour, error) {
	tour, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	reviews, err := r.reviews.FindByTour(ctx, id)
	if err != nil {
		return nil, err
	}
	tour.Reviews = reviews
	return tour, nil
}

// Stats groups highly rated tours by difficulty.
func (r *TourRepository) Stats(ctx context.Context) ([]TourStats, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: notSecret}},
		{{Key: "$match", Value: bson.M{"ratingsAverage": bson.M{"$gte": 4.5}}}},
		{{Key: "$group", Value: bson.M{
			"_id":        bson.M{"$toUpper": "$difficulty"},
			"numTours":   bson.M{"$sum": 1},
			"numRatings": bson.M{"$sum": "$ratingsQuantity"},
			"avgRating":  bson.M{"$avg": "$ratingsAverage"},
			"avgPrice":   bson.M{"$avg": "$price"},
			"minPrice":   bson.M{"$min": "$price"},
			"maxPrice":   bson.M{"$max": "$price"},
		}}},
		{{Key: "$sort", Value: bson.M{"avgPrice": 1}}},
	}
	stats := []TourStats{}
	if err := r.Aggregate(ctx, pipeline, &stats); err != nil {
		return nil, err
	}
	return stats, nil
}

// MonthlyPlan counts tour starts per month of the given year, busiest first.
func (r *TourRepository) MonthlyPlan(ctx context.Context, year int) ([]MonthlyPlan, error) {
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(1, 0, 0)
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: notSecret}},
		{{Key: "$unwind", Value: "$startDates"}},
		{{Key: "$match", Value: bson.M{"startDates": bson.M{"$gte": from, "$lt": to}}}},
		{{Key: "$group", Value: bson.M{
			"_id":           bson.M{"$month": "$startDates"},
			"numTourStarts": bson.M{"$sum": 1},
			"tours":         bson.M{"$push": "$name"},
		}}},
		{{Key: "$addFields", Value: bson.M{"month": "$_id"}}},
		{{Key: "$project", Value: bson.M{"_id": 0}}},
		{{Key: "$sort", Value: bson.M{"numTourStarts": -1}}},
		{{Key: "$limit", Value: 12}},
	}
	plan := []MonthlyPlan{}
	if err := r.Aggregate(ctx, pipeline, &plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// Within finds tours whose start location lies inside a sphere around
// [lng, lat]. radius is in radians.
func (r *TourRepository) Within(ctx context.Context, lng, lat, radius float64) ([]models.Tour, error) {
	filter := bson.M{"startLocation": bson.M{
		"$geoWithin": bson.M{"$centerSphere": bson.A{bson.A{lng, lat}, radius}},
	}}
	tours, err := r.FindAll(ctx, filter)
	if err != nil {
		return nil, err
	}
	return tours, r.populateGuides(ctx, pointers(tours))
}

// Distances lists every tour with its distance from [lng, lat] in meters
// scaled by multiplier. $geoNear has to be the first stage, so secret
// tours are excluded through its query option.
func (r *TourRepository) Distances(ctx context.Context, lng, lat, multiplier float64) ([]TourDistance, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$geoNear", Value: bson.M{
			"near":               bson.M{"type": "Point", "coordinates": bson.A{lng, lat}},
			"distanceField":      "distance",
			"distanceMultiplier": multiplier,
			"query":              notSecret,
		}}},
		{{Key: "$project", Value: bson.M{"distance": 1, "name": 1}}},
	}
	out := []TourDistance{}
	if err := r.Aggregate(ctx, pipeline, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *TourRepository) populateGuides(ctx context.Context, tours []*models.Tour) error {
	var ids []primitive.ObjectID
	for _, t := range tours {
		ids = append(ids, t.Guides...)
	}
	users, err := lookup(ctx, r.users, ids, activeUser, guideProjection,
		func(u *models.UserSummary) primitive.ObjectID { return u.ID })
	if err != nil {
		return err
	}
	for _, t := range tours {
		t.GuideUsers = make([]models.UserSummary, 0, len(t.Guides))
		for _, id := range t.Guides {
			if u, ok := users[id]; ok {
				t.GuideUsers = append(t.GuideUsers, *u)
			}
		}
	}
	return nil
}

func pointers[T any](docs []T) []*T {
	out := make([]*T, len(docs))
	for i := range docs {
		out[i] = &docs[i]
	}
	return out
}
