package models

import (
	"encoding/json"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Booking struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Tour      primitive.ObjectID `bson:"tour" json:"tour" validate:"required"`
	User      primitive.ObjectID `bson:"user" json:"user" validate:"required"`
	Price     float64            `bson:"price" json:"price" validate:"required,gt=0"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	Paid      *bool              `bson:"paid" json:"paid"`

	TourRef *TourSummary `bson:"-" json:"-"`
	UserRef *UserSummary `bson:"-" json:"-"`
}

func (b *Booking) BeforeSave(isNew bool) error {
	if isNew && b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	if b.Paid == nil {
		paid := true
		b.Paid = &paid
	}
	return nil
}

func (b Booking) MarshalJSON() ([]byte, error) {
	type booking Booking
	out := struct {
		booking
		Tour any `json:"tour"`
		User any `json:"user"`
	}{booking: booking(b), Tour: b.Tour, User: b.User}
	if b.TourRef != nil {
		out.Tour = b.TourRef
	}
	if b.UserRef != nil {
		out.User = b.UserRef
	}
	return json.Marshal(out)
}
