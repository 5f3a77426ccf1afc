package repository

import (
	"context"
	"strings"
	"time"

	"github.com/Dzmitry-Rybak/natours/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

var activeUser = bson.M{"active": bson.M{"$ne": false}}

type UserRepository struct {
	*Collection[models.User, *models.User]
}

func NewUserRepository(database *mongo.Database) *UserRepository {
	return &UserRepository{
		Collection: NewCollection[models.User](database.Collection("users"), activeUser),
	}
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.FindOne(ctx, bson.M{"email": strings.ToLower(strings.TrimSpace(email))})
}

// FindByResetToken looks up the user owning an unexpired reset token. token
// is the plain value from the emailed link.
func (r *UserRepository) FindByResetToken(ctx context.Context, token string) (*models.User, error) {
	return r.FindOne(ctx, bson.M{
		"passwordResetToken":   models.HashToken(token),
		"passwordResetExpires": bson.M{"$gt": time.Now().UTC()},
	})
}

// Deactivate hides the user from every later read.
func (r *UserRepository) Deactivate(ctx context.Context, id primitive.ObjectID) error {
	res, err := r.Mongo().UpdateOne(ctx, r.Scoped(bson.M{"_id": id}), bson.M{"$set": bson.M{"active": false}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
