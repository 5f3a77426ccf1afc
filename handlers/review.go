package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/Dzmitry-Rybak/natours/models"
	"github.com/Dzmitry-Rybak/natours/telemetry"
	"github.com/Dzmitry-Rybak/natours/utils"
	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.opentelemetry.io/otel/attribute"
)

func (h *Handler) GetAllReviews() gin.HandlerFunc {
	return GetAll("reviews", h.reviews.Find)
}

func (h *Handler) GetReview() gin.HandlerFunc {
	return GetOne("reviews", h.reviews.FindByID)
}

// UpdateReview only changes the text and rating of a review.
func (h *Handler) UpdateReview() gin.HandlerFunc {
	return UpdateOne("reviews", func(ctx context.Context, id primitive.ObjectID, patch []byte) (*models.Review, error) {
		var body map[string]any
		if err := json.Unmarshal(patch, &body); err != nil {
			return nil, err
		}
		filtered, err := json.Marshal(utils.FilterBody(body, "review", "rating"))
		if err != nil {
			return nil, err
		}
		return h.reviews.Update(ctx, id, filtered)
	})
}

func (h *Handler) DeleteReview() gin.HandlerFunc {
	return DeleteOne("reviews", h.reviews.Delete)
}

// CreateReview stores a review by the current user. On the nested route the
// tour comes from the path, otherwise from the body.
func (h *Handler) CreateReview(c *gin.Context) {
	ctx, span := telemetry.Tracer().Start(c.Request.Context(), "reviews-create")
	defer span.End()

	var review models.Review
	if err := c.ShouldBindJSON(&review); err != nil {
		fail(c, err)
		return
	}
	if c.Param("tourId") != "" {
		tourID, err := paramID(c, "tourId")
		if err != nil {
			fail(c, err)
			return
		}
		review.Tour = tourID
	}
	review.ID = primitive.NilObjectID
	review.User = currentUser(c).ID
	span.SetAttributes(attribute.String("tour.id", review.Tour.Hex()))

	if err := h.reviews.Create(ctx, &review); err != nil {
		fail(c, err)
		return
	}
	success(c, http.StatusCreated, gin.H{"data": gin.H{"data": review}})
}

// ReviewOwner keeps users with the plain user role to their own reviews.
// Admins pass through.
func (h *Handler) ReviewOwner(c *gin.Context) {
	me := currentUser(c)
	if !requireSelf(me) {
		c.Next()
		return
	}
	id, err := paramID(c, "id")
	if err != nil {
		fail(c, err)
		return
	}
	review, err := h.reviews.FindByID(c.Request.Context(), id)
	if err != nil {
		fail(c, notFound(err))
		return
	}
	if review.User != me.ID {
		fail(c, utils.Forbidden("You can only change your own reviews"))
		return
	}
	c.Next()
}
