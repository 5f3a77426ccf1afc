package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/Dzmitry-Rybak/natours/models"
	"github.com/Dzmitry-Rybak/natours/repository"
	"github.com/Dzmitry-Rybak/natours/services"
	"github.com/Dzmitry-Rybak/natours/utils"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const genericErrorMessage = "Something went very wrong!"

var dupKeyValue = regexp.MustCompile(`dup key: \{[^:]*: "?([^"}]*)"?\s*\}`)

var invalidTokenErrors = []error{
	jwt.ErrTokenMalformed,
	jwt.ErrTokenUnverifiable,
	jwt.ErrTokenSignatureInvalid,
	jwt.ErrTokenInvalidClaims,
	jwt.ErrTokenNotValidYet,
	jwt.ErrTokenUsedBeforeIssued,
}

// ErrorHandler renders the last error attached to the context.
func ErrorHandler(log *zap.Logger, production bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err
		appErr := toAppError(err)

		span := trace.SpanFromContext(c.Request.Context())
		span.RecordError(err)
		span.SetStatus(codes.Error, appErr.Message)

		if !appErr.IsOperational || appErr.StatusCode >= 500 {
			log.Error("request failed",
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.Int("status", appErr.StatusCode),
				zap.Error(err))
		}

		body := gin.H{"status": appErr.Status, "message": appErr.Message}
		if production {
			if !appErr.IsOperational {
				body = gin.H{"status": "error", "message": genericErrorMessage}
			}
		} else {
			body["error"] = err.Error()
		}
		c.AbortWithStatusJSON(appErr.StatusCode, body)
	}
}

func toAppError(err error) *utils.AppError {
	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var verr *models.ValidationError
	if errors.As(err, &verr) {
		return utils.BadRequest("Invalid input data. " + strings.Join(verr.Messages, ". "))
	}
	if errors.Is(err, repository.ErrNotFound) {
		return utils.NotFound("No document found with that ID")
	}
	if mongo.IsDuplicateKeyError(err) {
		value := "value"
		if m := dupKeyValue.FindStringSubmatch(err.Error()); m != nil {
			value = m[1]
		}
		return utils.BadRequest(fmt.Sprintf("Duplicate field value: %s. Please use another value!", value))
	}
	if errors.Is(err, primitive.ErrInvalidHex) {
		return utils.BadRequest("Invalid _id: " + err.Error())
	}
	if errors.Is(err, jwt.ErrTokenExpired) {
		return utils.Unauthorized("Your token has expired! Please log in again.")
	}
	for _, target := range invalidTokenErrors {
		if errors.Is(err, target) {
			return utils.Unauthorized("Invalid token. Please log in again!")
		}
	}
	if errors.Is(err, services.ErrNotAnImage) {
		return utils.BadRequest(services.ErrNotAnImage.Error())
	}
	if errors.Is(err, services.ErrInvalidLatLng) {
		return utils.BadRequest(services.ErrInvalidLatLng.Error())
	}

	if errors.Is(err, io.EOF) {
		return utils.BadRequest("Request body is empty")
	}
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return utils.NewAppError(http.StatusRequestEntityTooLarge, "Request body too large")
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return utils.BadRequest("Invalid request body: " + err.Error())
	}

	return &utils.AppError{
		StatusCode: http.StatusInternalServerError,
		Status:     "error",
		Message:    genericErrorMessage,
		Err:        err,
	}
}

// fail attaches err for ErrorHandler and stops the chain.
func fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}
