package models

import (
	"encoding/json"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Review struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Review    string             `bson:"review" json:"review" validate:"required,min=4,max=500"`
	Rating    float64            `bson:"rating" json:"rating" validate:"required,gte=1,lte=5"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	Tour      primitive.ObjectID `bson:"tour" json:"tour" validate:"required"`
	User      primitive.ObjectID `bson:"user" json:"user" validate:"required"`

	TourRef *TourSummary `bson:"-" json:"-"`
	UserRef *UserSummary `bson:"-" json:"-"`
}

func (r *Review) BeforeSave(isNew bool) error {
	r.Review = strings.TrimSpace(r.Review)
	if isNew && r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	return nil
}

func (r Review) MarshalJSON() ([]byte, error) {
	type review Review
	out := struct {
		review
		Tour any `json:"tour"`
		User any `json:"user"`
	}{review: review(r), Tour: r.Tour, User: r.User}
	if r.TourRef != nil {
		out.Tour = r.TourRef
	}
	if r.UserRef != nil {
		out.User = r.UserRef
	}
	return json.Marshal(out)
}
