package models

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// BeforeSaver is implemented by documents that normalise themselves before
// they are validated and written.
type BeforeSaver interface {
	BeforeSave(isNew bool) error
}

// ValidationError carries one human readable message per failed rule.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Messages, ". ")
}

func newValidationError(msgs ...string) *ValidationError {
	return &ValidationError{Messages: msgs}
}

// messages keyed by "<StructNamespace>.<tag>".
var messages = map[string]string{
	"Tour.Name.required":         "A tour must have a name",
	"Tour.Name.min":              "A tour name must have more or equal then 10 characters",
	"Tour.Name.max":              "A tour name must have less or equal then 40 characters",
	"Tour.Duration.required":     "A tour must have a duration",
	"Tour.MaxGroupSize.required": "A tour must have a group size",
	"Tour.Difficulty.required":   "A tour must have a difficulty",
	"Tour.Difficulty.oneof":      "Difficulty is either: easy, medium, difficult",
	"Tour.RatingsAverage.gte":    "Rating must be above 1.0",
	"Tour.RatingsAverage.lte":    "Rating must be below 5.0",
	"Tour.Price.required":        "A tour must have a price",
	"Tour.PriceDiscount.ltfield": "Discount price should be below regular price",
	"Tour.Summary.required":      "A tour must have a description",
	"Tour.ImageCover.required":   "A tour must have a cover image",

	"User.Name.required":     "Please tell us your name!",
	"User.Name.min":          "A user name must have at least 3 characters",
	"User.Email.required":    "Please provide your email",
	"User.Email.email":       "Please provide a valid email",
	"User.Role.oneof":        "Role is either: user, guide, lead-guide, admin",
	"User.Password.required": "Please provide a password",

	"Review.Review.required": "Review can not be empty!",
	"Review.Review.min":      "Review text must contain at least 4 characters",
	"Review.Review.max":      "Review text must contain at most 500 characters",
	"Review.Rating.required": "Review must have a rating",
	"Review.Rating.gte":      "Rating must be above 1.0",
	"Review.Rating.lte":      "Rating must be below 5.0",
	"Review.Tour.required":   "Review must belong to a tour.",
	"Review.User.required":   "Review must belong to a user",

	"Booking.Tour.required":  "Booking must belong to a Tour!",
	"Booking.User.required":  "Booking must belong to a User!",
	"Booking.Price.required": "Booking must have a price.",
}

// Validate runs the struct rules and returns a *ValidationError listing every
// failed field.
func Validate(doc any) error {
	err := validate.Struct(doc)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, messageFor(fe))
	}
	return newValidationError(msgs...)
}

func messageFor(fe validator.FieldError) string {
	ns := fe.StructNamespace()
	// Nested fields (Tour.Locations[0].Type) fall through to the generic text.
	if msg, ok := messages[ns+"."+fe.Tag()]; ok {
		return msg
	}
	if fe.Param() != "" {
		return fmt.Sprintf("%s failed on %s=%s", fe.Field(), fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("%s failed on %s", fe.Field(), fe.Tag())
}
