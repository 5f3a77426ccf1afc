package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/Dzmitry-Rybak/natours/models"
	"github.com/Dzmitry-Rybak/natours/repository"
	"github.com/Dzmitry-Rybak/natours/services"
	"github.com/Dzmitry-Rybak/natours/utils"
	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type TourStore interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Tour, error)
	FindWithReviews(ctx context.Context, id primitive.ObjectID) (*models.Tour, error)
	Find(ctx context.Context, f *utils.APIFeatures) ([]models.Tour, error)
	Create(ctx context.Context, tour *models.Tour) error
	Update(ctx context.Context, id primitive.ObjectID, patch []byte) (*models.Tour, error)
	Delete(ctx context.Context, id primitive.ObjectID) (*models.Tour, error)
	Stats(ctx context.Context) ([]repository.TourStats, error)
	MonthlyPlan(ctx context.Context, year int) ([]repository.MonthlyPlan, error)
	Within(ctx context.Context, lng, lat, radius float64) ([]models.Tour, error)
	Distances(ctx context.Context, lng, lat, multiplier float64) ([]repository.TourDistance, error)
}

type UserStore interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	Find(ctx context.Context, f *utils.APIFeatures) ([]models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, id primitive.ObjectID, patch []byte) (*models.User, error)
	Delete(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	Save(ctx context.Context, user *models.User, validate bool) error
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByResetToken(ctx context.Context, token string) (*models.User, error)
	Deactivate(ctx context.Context, id primitive.ObjectID) error
}

type ReviewStore interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Review, error)
	Find(ctx context.Context, f *utils.APIFeatures) ([]models.Review, error)
	Create(ctx context.Context, review *models.Review) error
	Update(ctx context.Context, id primitive.ObjectID, patch []byte) (*models.Review, error)
	Delete(ctx context.Context, id primitive.ObjectID) (*models.Review, error)
}

type BookingStore interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Booking, error)
	Find(ctx context.Context, f *utils.APIFeatures) ([]models.Booking, error)
	Create(ctx context.Context, booking *models.Booking) error
	Update(ctx context.Context, id primitive.ObjectID, patch []byte) (*models.Booking, error)
	Delete(ctx context.Context, id primitive.ObjectID) (*models.Booking, error)
	FindByUser(ctx context.Context, userID primitive.ObjectID) ([]models.Booking, error)
}

// Deps groups everything the handlers need.
type Deps struct {
	Tours    TourStore
	Users    UserStore
	Reviews  ReviewStore
	Bookings BookingStore

	Tokens   *utils.TokenManager
	Mailer   services.Mailer
	Payments services.Payments
	Events   services.EventBus
	Images   *services.ImageStore
	Log      *zap.Logger

	CookieTTL  time.Duration
	Production bool
}

type Handler struct {
	tours    TourStore
	users    UserStore
	reviews  ReviewStore
	bookings BookingStore

	tokens   *utils.TokenManager
	mailer   services.Mailer
	payments services.Payments
	events   services.EventBus
	images   *services.ImageStore
	log      *zap.Logger

	cookieTTL  time.Duration
	production bool
	now        func() time.Time
}

func New(d Deps) *Handler {
	h := &Handler{
		tours:      d.Tours,
		users:      d.Users,
		reviews:    d.Reviews,
		bookings:   d.Bookings,
		tokens:     d.Tokens,
		mailer:     d.Mailer,
		payments:   d.Payments,
		events:     d.Events,
		images:     d.Images,
		log:        d.Log,
		cookieTTL:  d.CookieTTL,
		production: d.Production,
		now:        time.Now,
	}
	if h.log == nil {
		h.log = zap.NewNop()
	}
	if h.payments == nil {
		h.payments = services.NoPayments{}
	}
	return h
}

const userKey = "user"

func currentUser(c *gin.Context) *models.User {
	v, ok := c.Get(userKey)
	if !ok {
		return nil
	}
	u, _ := v.(*models.User)
	return u
}

// baseURL is the scheme and host the client used to reach us.
func baseURL(c *gin.Context) string {
	return requestProto(c) + "://" + c.Request.Host
}

func requestProto(c *gin.Context) string {
	if c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https" {
		return "https"
	}
	return "http"
}

func paramID(c *gin.Context, name string) (primitive.ObjectID, error) {
	raw := c.Param(name)
	id, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		return primitive.NilObjectID, utils.BadRequest("Invalid _id: " + raw)
	}
	return id, nil
}

func success(c *gin.Context, status int, body gin.H) {
	out := gin.H{"status": "success"}
	for k, v := range body {
		out[k] = v
	}
	c.JSON(status, out)
}

func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
	c.Writer.WriteHeaderNow()
}
