package models

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type TourDifficulty string

const (
	Easy      TourDifficulty = "easy"
	Medium    TourDifficulty = "medium"
	Difficult TourDifficulty = "difficult"
)

const DefaultRatingsAverage = 4.5

type Tour struct {
	ID              primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	Name            string               `bson:"name" json:"name" validate:"required,min=10,max=40"`
	Slug            string               `bson:"slug" json:"slug"`
	Duration        int                  `bson:"duration" json:"duration" validate:"required,gt=0"`
	MaxGroupSize    int                  `bson:"maxGroupSize" json:"maxGroupSize" validate:"required,gt=0"`
	Difficulty      TourDifficulty       `bson:"difficulty" json:"difficulty" validate:"required,oneof=easy medium difficult"`
	RatingsAverage  float64              `bson:"ratingsAverage" json:"ratingsAverage" validate:"gte=1,lte=5"`
	RatingsQuantity int                  `bson:"ratingsQuantity" json:"ratingsQuantity" validate:"gte=0"`
	Price           float64              `bson:"price" json:"price" validate:"required,gt=0"`
	PriceDiscount   float64              `bson:"priceDiscount,omitempty" json:"priceDiscount,omitempty" validate:"omitempty,gte=0,ltfield=Price"`
	Summary         string               `bson:"summary" json:"summary" validate:"required"`
	Description     string               `bson:"description,omitempty" json:"description,omitempty"`
	ImageCover      string               `bson:"imageCover" json:"imageCover" validate:"required"`
	Images          []string             `bson:"images" json:"images"`
	CreatedAt       time.Time            `bson:"createdAt" json:"-"`
	StartDates      []time.Time          `bson:"startDates" json:"startDates"`
	SecretTour      bool                 `bson:"secretTour" json:"secretTour"`
	StartLocation   *Location            `bson:"startLocation,omitempty" json:"startLocation,omitempty"`
	Locations       []Location           `bson:"locations" json:"locations" validate:"dive"`
	Guides          []primitive.ObjectID `bson:"guides" json:"guides"`

	// Filled by the repository, never stored.
	GuideUsers []UserSummary `bson:"-" json:"-"`
	Reviews    []Review      `bson:"-" json:"-"`
}

func (t *Tour) DurationWeeks() float64 {
	return float64(t.Duration) / 7
}

func (t *Tour) BeforeSave(isNew bool) error {
	t.Name = strings.TrimSpace(t.Name)
	t.Summary = strings.TrimSpace(t.Summary)
	t.Description = strings.TrimSpace(t.Description)
	t.Slug = slug.Make(t.Name)

	if isNew {
		if t.CreatedAt.IsZero() {
			t.CreatedAt = time.Now().UTC()
		}
		if t.RatingsAverage == 0 {
			t.RatingsAverage = DefaultRatingsAverage
		}
	}
	t.RatingsAverage = RoundRating(t.RatingsAverage)

	if t.Images == nil {
		t.Images = []string{}
	}
	if t.StartDates == nil {
		t.StartDates = []time.Time{}
	}
	if t.Locations == nil {
		t.Locations = []Location{}
	}
	if t.Guides == nil {
		t.Guides = []primitive.ObjectID{}
	}
	if t.StartLocation != nil {
		t.StartLocation.normalize()
	}
	for i := range t.Locations {
		t.Locations[i].normalize()
	}
	return nil
}

// RoundRating keeps one decimal, 4.666 becomes 4.7.
func RoundRating(v float64) float64 {
	return math.Round(v*10) / 10
}

func (t Tour) MarshalJSON() ([]byte, error) {
	type tour Tour
	out := struct {
		tour
		Guides        any      `json:"guides"`
		DurationWeeks float64  `json:"durationWeeks"`
		Reviews       []Review `json:"reviews,omitempty"`
	}{
		tour:          tour(t),
		Guides:        t.Guides,
		DurationWeeks: t.DurationWeeks(),
		Reviews:       t.Reviews,
	}
	if t.GuideUsers != nil {
		out.Guides = t.GuideUsers
	}
	return json.Marshal(out)
}

// TourSummary is the populated form of a tour reference.
type TourSummary struct {
	ID         primitive.ObjectID `bson:"_id" json:"id"`
	Name       string             `bson:"name" json:"name"`
	Slug       string             `bson:"slug,omitempty" json:"slug,omitempty"`
	Price      float64            `bson:"price,omitempty" json:"price,omitempty"`
	ImageCover string             `bson:"imageCover,omitempty" json:"imageCover,omitempty"`
}
