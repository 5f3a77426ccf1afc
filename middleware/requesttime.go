package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	RequestTimeKey  = "requestTime"
	RequestIDKey    = "requestID"
	requestIDHeader = "X-Request-ID"
)

// RequestTime stamps the request and makes sure it carries an id.
func RequestTime() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(RequestTimeKey, time.Now().UTC().Format(time.RFC3339))

		id := c.GetHeader(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set(RequestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}
