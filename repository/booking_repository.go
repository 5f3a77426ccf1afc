package repository

import (
	"context"

	"github.com/Dzmitry-Rybak/natours/models"
	"github.com/Dzmitry-Rybak/natours/utils"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var bookerProjection = bson.M{"name": 1, "email": 1}

type BookingRepository struct {
	*Collection[models.Booking, *models.Booking]
	tours *mongo.Collection
	users *mongo.Collection
}

func NewBookingRepository(database *mongo.Database) *BookingRepository {
	return &BookingRepository{
		Collection: NewCollection[models.Booking](database.Collection("bookings"), nil),
		tours:      database.Collection("tours"),
		users:      database.Collection("users"),
	}
}

func (r *BookingRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Booking, error) {
	booking, err := r.Collection.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return booking, r.populate(ctx, []*models.Booking{booking})
}

func (r *BookingRepository) Find(ctx context.Context, f *utils.APIFeatures) ([]models.Booking, error) {
	bookings, err := r.Collection.Find(ctx, f)
	if err != nil {
		return nil, err
	}
	return bookings, r.populate(ctx, pointers(bookings))
}

// FindByUser returns the user's bookings, newest first.
func (r *BookingRepository) FindByUser(ctx context.Context, userID primitive.ObjectID) ([]models.Booking, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	bookings, err := r.FindAll(ctx, bson.M{"user": userID}, opts)
	if err != nil {
		return nil, err
	}
	return bookings, r.populate(ctx, pointers(bookings))
}

func (r *BookingRepository) populate(ctx context.Context, bookings []*models.Booking) error {
	var userIDs, tourIDs []primitive.ObjectID
	for _, b := range bookings {
		userIDs = append(userIDs, b.User)
		tourIDs = append(tourIDs, b.Tour)
	}
	// Booked tours stay visible even when later marked secret.
	tours, err := lookup(ctx, r.tours, tourIDs, nil, tourRefProjection,
		func(t *models.TourSummary) primitive.ObjectID { return t.ID })
	if err != nil {
		return err
	}
	users, err := lookup(ctx, r.users, userIDs, nil, bookerProjection,
		func(u *models.UserSummary) primitive.ObjectID { return u.ID })
	if err != nil {
		return err
	}
	for _, b := range bookings {
		b.TourRef = tours[b.Tour]
		b.UserRef = users[b.User]
	}
	return nil
}
