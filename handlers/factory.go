package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/Dzmitry-Rybak/natours/repository"
	"github.com/Dzmitry-Rybak/natours/telemetry"
	"github.com/Dzmitry-Rybak/natours/utils"
	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.opentelemetry.io/otel/attribute"
)

const notFoundMessage = "No document found with that ID"

func notFound(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return utils.NotFound(notFoundMessage)
	}
	return err
}

func GetOne[T any](name string, find func(context.Context, primitive.ObjectID) (*T, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := telemetry.Tracer().Start(c.Request.Context(), name+"-get-one")
		defer span.End()

		id, err := paramID(c, "id")
		if err != nil {
			fail(c, err)
			return
		}
		span.SetAttributes(attribute.String("id", id.Hex()))

		doc, err := find(ctx, id)
		if err != nil {
			fail(c, notFound(err))
			return
		}
		success(c, http.StatusOK, gin.H{"data": doc})
	}
}

// GetAll lists documents. Under /tours/:tourId the list is scoped to that
// tour.
func GetAll[T any](name string, find func(context.Context, *utils.APIFeatures) ([]T, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := telemetry.Tracer().Start(c.Request.Context(), name+"-get-all")
		defer span.End()

		features := utils.NewAPIFeatures(c.Request.URL.Query()).
			Filter().
			Sort().
			LimitFields().
			Paginate()
		if c.Param("tourId") != "" {
			tourID, err := paramID(c, "tourId")
			if err != nil {
				fail(c, err)
				return
			}
			features.Where("tour", tourID)
		}
		if err := features.Err(); err != nil {
			fail(c, utils.WrapAppError(http.StatusBadRequest, err.Error(), err))
			return
		}

		docs, err := find(ctx, features)
		if err != nil {
			fail(c, utils.WrapAppError(http.StatusBadRequest, "Invalid query", err))
			return
		}
		span.SetAttributes(attribute.Int("results", len(docs)))

		out, err := features.Select(docs)
		if err != nil {
			fail(c, err)
			return
		}
		success(c, http.StatusOK, gin.H{
			"results": len(docs),
			"data":    gin.H{"document": out},
		})
	}
}

func CreateOne[T any](name string, create func(context.Context, *T) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := telemetry.Tracer().Start(c.Request.Context(), name+"-create")
		defer span.End()

		doc := new(T)
		if err := c.ShouldBindJSON(doc); err != nil {
			fail(c, err)
			return
		}
		if err := create(ctx, doc); err != nil {
			fail(c, err)
			return
		}
		success(c, http.StatusCreated, gin.H{"data": gin.H{"data": doc}})
	}
}

func UpdateOne[T any](name string, update func(context.Context, primitive.ObjectID, []byte) (*T, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := telemetry.Tracer().Start(c.Request.Context(), name+"-update")
		defer span.End()

		id, err := paramID(c, "id")
		if err != nil {
			fail(c, err)
			return
		}
		patch, err := io.ReadAll(c.Request.Body)
		if err != nil {
			fail(c, err)
			return
		}
		doc, err := update(ctx, id, patch)
		if err != nil {
			fail(c, notFound(err))
			return
		}
		success(c, http.StatusOK, gin.H{"data": gin.H{"data": doc}})
	}
}

func DeleteOne[T any](name string, remove func(context.Context, primitive.ObjectID) (*T, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := telemetry.Tracer().Start(c.Request.Context(), name+"-delete")
		defer span.End()

		id, err := paramID(c, "id")
		if err != nil {
			fail(c, err)
			return
		}
		if _, err := remove(ctx, id); err != nil {
			fail(c, notFound(err))
			return
		}
		noContent(c)
	}
}
