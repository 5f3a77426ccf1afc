package repository

import (
	"context"
	"fmt"

	"github.com/Dzmitry-Rybak/natours/models"
	"github.com/Dzmitry-Rybak/natours/utils"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

var (
	reviewerProjection = bson.M{"name": 1, "photo": 1}
	tourRefProjection  = bson.M{"name": 1, "slug": 1, "price": 1, "imageCover": 1}
)

// ReviewRepository keeps the tour rating summary in step with every write.
type ReviewRepository struct {
	*Collection[models.Review, *models.Review]
	tours *mongo.Collection
	users *mongo.Collection
}

func NewReviewRepository(database *mongo.Database) *ReviewRepository {
	return &ReviewRepository{
		Collection: NewCollection[models.Review](database.Collection("reviews"), nil),
		tours:      database.Collection("tours"),
		users:      database.Collection("users"),
	}
}

func (r *ReviewRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Review, error) {
	review, err := r.Collection.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return review, r.populate(ctx, []*models.Review{review}, true)
}

func (r *ReviewRepository) Find(ctx context.Context, f *utils.APIFeatures) ([]models.Review, error) {
	reviews, err := r.Collection.Find(ctx, f)
	if err != nil {
		return nil, err
	}
	return reviews, r.populate(ctx, pointers(reviews), true)
}

// FindByTour returns a tour's reviews with their authors.
func (r *ReviewRepository) FindByTour(ctx context.Context, tourID primitive.ObjectID) ([]models.Review, error) {
	reviews, err := r.FindAll(ctx, bson.M{"tour": tourID})
	if err != nil {
		return nil, err
	}
	return reviews, r.populate(ctx, pointers(reviews), false)
}

func (r *ReviewRepository) Create(ctx context.Context, review *models.Review) error {
	if err := r.Collection.Create(ctx, review); err != nil {
		return err
	}
	return r.CalcAverageRatings(ctx, review.Tour)
}

func (r *ReviewRepository) Update(ctx context.Context, id primitive.ObjectID, patch []byte) (*models.Review, error) {
	review, err := r.Collection.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	if err := r.CalcAverageRatings(ctx, review.Tour); err != nil {
		return nil, err
	}
	return review, nil
}

func (r *ReviewRepository) Delete(ctx context.Context, id primitive.ObjectID) (*models.Review, error) {
	review, err := r.Collection.Delete(ctx, id)
	if err != nil {
		return nil, err
	}
	return review, r.CalcAverageRatings(ctx, review.Tour)
}

// CalcAverageRatings recomputes ratingsQuantity and ratingsAverage of a tour
// from its reviews. A tour without reviews goes back to the defaults.
func (r *ReviewRepository) CalcAverageRatings(ctx context.Context, tourID primitive.ObjectID) error {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"tour": tourID}}},
		{{Key: "$group", Value: bson.M{
			"_id":       "$tour",
			"nRating":   bson.M{"$sum": 1},
			"avgRating": bson.M{"$avg": "$rating"},
		}}},
	}
	var stats []struct {
		NRating   int     `bson:"nRating"`
		AvgRating float64 `bson:"avgRating"`
	}
	if err := r.Aggregate(ctx, pipeline, &stats); err != nil {
		return err
	}

	quantity, average := 0, models.DefaultRatingsAverage
	if len(stats) > 0 {
		quantity = stats[0].NRating
		average = models.RoundRating(stats[0].AvgRating)
	}
	_, err := r.tours.UpdateOne(ctx, bson.M{"_id": tourID}, bson.M{"$set": bson.M{
		"ratingsQuantity": quantity,
		"ratingsAverage":  average,
	}})
	if err != nil {
		return fmt.Errorf("update tour ratings: %w", err)
	}
	return nil
}

func (r *ReviewRepository) populate(ctx context.Context, reviews []*models.Review, withTour bool) error {
	var userIDs, tourIDs []primitive.ObjectID
	for _, rv := range reviews {
		userIDs = append(userIDs, rv.User)
		tourIDs = append(tourIDs, rv.Tour)
	}
	users, err := lookup(ctx, r.users, userIDs, activeUser, reviewerProjection,
		func(u *models.UserSummary) primitive.ObjectID { return u.ID })
	if err != nil {
		return err
	}
	tours := map[primitive.ObjectID]*models.TourSummary{}
	if withTour {
		tours, err = lookup(ctx, r.tours, tourIDs, notSecret, tourRefProjection,
			func(t *models.TourSummary) primitive.ObjectID { return t.ID })
		if err != nil {
			return err
		}
	}
	for _, rv := range reviews {
		rv.UserRef = users[rv.User]
		rv.TourRef = tours[rv.Tour]
	}
	return nil
}
