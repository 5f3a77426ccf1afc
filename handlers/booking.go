package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/Dzmitry-Rybak/natours/models"
	"github.com/Dzmitry-Rybak/natours/services"
	"github.com/Dzmitry-Rybak/natours/telemetry"
	"github.com/Dzmitry-Rybak/natours/utils"
	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const stripeSignatureHeader = "Stripe-Signature"

func (h *Handler) GetAllBookings() gin.HandlerFunc {
	return GetAll("bookings", h.bookings.Find)
}

func (h *Handler) GetBooking() gin.HandlerFunc {
	return GetOne("bookings", h.bookings.FindByID)
}

func (h *Handler) CreateBooking() gin.HandlerFunc {
	return CreateOne("bookings", h.bookings.Create)
}

func (h *Handler) UpdateBooking() gin.HandlerFunc {
	return UpdateOne("bookings", h.bookings.Update)
}

func (h *Handler) DeleteBooking() gin.HandlerFunc {
	return DeleteOne("bookings", h.bookings.Delete)
}

// GetCheckoutSession opens a Stripe Checkout session for the tour.
func (h *Handler) GetCheckoutSession(c *gin.Context) {
	ctx, span := telemetry.Tracer().Start(c.Request.Context(), "bookings-checkout-session")
	defer span.End()

	tourID, err := paramID(c, "tourId")
	if err != nil {
		fail(c, err)
		return
	}
	tour, err := h.tours.FindByID(ctx, tourID)
	if err != nil {
		fail(c, notFound(err))
		return
	}
	user := currentUser(c)
	span.SetAttributes(attribute.String("tour.id", tourID.Hex()), attribute.String("user.id", user.ID.Hex()))

	base := baseURL(c)
	q := url.Values{}
	q.Set("tour", tour.ID.Hex())
	q.Set("user", user.ID.Hex())
	q.Set("price", strconv.FormatFloat(tour.Price, 'f', -1, 64))

	session, err := h.payments.CreateCheckoutSession(ctx, services.CheckoutRequest{
		Tour:       tour,
		User:       user,
		SuccessURL: base + "/?" + q.Encode(),
		CancelURL:  base + "/tour/" + tour.Slug,
		ImageURL:   base + "/img/tours/" + tour.ImageCover,
	})
	if errors.Is(err, services.ErrPaymentsDisabled) {
		fail(c, utils.WrapAppError(http.StatusServiceUnavailable, "Payments are not available right now", err))
		return
	}
	if err != nil {
		fail(c, err)
		return
	}
	success(c, http.StatusOK, gin.H{"session": session})
}

// WebhookCheckout receives Stripe events. The raw body is needed for the
// signature check, so this route sits outside the body rewriting middleware.
func (h *Handler) WebhookCheckout(c *gin.Context) {
	ctx, span := telemetry.Tracer().Start(c.Request.Context(), "bookings-webhook")
	defer span.End()

	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.String(http.StatusBadRequest, "Webhook error: %v", err)
		return
	}
	ev, err := h.payments.ParseWebhook(payload, c.GetHeader(stripeSignatureHeader))
	if err != nil {
		h.log.Warn("rejected stripe webhook", zap.Error(err))
		c.String(http.StatusBadRequest, "Webhook error: %v", err)
		return
	}

	if ev != nil {
		span.SetAttributes(attribute.String("session.id", ev.SessionID))
		if err := h.dispatchCheckout(ctx, *ev); err != nil {
			h.log.Error("checkout event not processed",
				zap.String("session", ev.SessionID), zap.Error(err))
			c.String(http.StatusInternalServerError, "Webhook error: %v", err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

func (h *Handler) dispatchCheckout(ctx context.Context, ev services.CheckoutCompleted) error {
	if h.events == nil {
		_, err := h.CreateBookingCheckout(ctx, ev)
		return err
	}
	return h.events.PublishCheckoutCompleted(ctx, ev)
}

// CreateBookingCheckout records the booking for a paid checkout. It is the
// subscriber of checkout-completed events.
func (h *Handler) CreateBookingCheckout(ctx context.Context, ev services.CheckoutCompleted) (*models.Booking, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "bookings-create-from-checkout")
	defer span.End()

	tourID, err := primitive.ObjectIDFromHex(ev.TourID)
	if err != nil {
		return nil, fmt.Errorf("checkout %s: invalid tour id %q", ev.SessionID, ev.TourID)
	}
	user, err := h.users.FindByEmail(ctx, ev.Email)
	if err != nil {
		return nil, fmt.Errorf("checkout %s: find user %s: %w", ev.SessionID, ev.Email, err)
	}
	booking := &models.Booking{Tour: tourID, User: user.ID, Price: ev.Price}
	if err := h.bookings.Create(ctx, booking); err != nil {
		return nil, fmt.Errorf("checkout %s: %w", ev.SessionID, err)
	}
	h.log.Info("booking created",
		zap.String("booking", booking.ID.Hex()),
		zap.String("tour", ev.TourID),
		zap.String("user", user.ID.Hex()))
	return booking, nil
}

// GetMyBookings lists the current user's bookings with their tours.
func (h *Handler) GetMyBookings(c *gin.Context) {
	ctx, span := telemetry.Tracer().Start(c.Request.Context(), "bookings-mine")
	defer span.End()

	bookings, err := h.bookings.FindByUser(ctx, currentUser(c).ID)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, http.StatusOK, gin.H{
		"results": len(bookings),
		"data":    gin.H{"bookings": bookings},
	})
}
