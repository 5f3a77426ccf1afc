package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/microcosm-cc/bluemonday"
)

// Sanitize rewrites JSON bodies: keys that could act as mongo operators are
// dropped and markup is stripped from string values.
func Sanitize() gin.HandlerFunc {
	policy := bluemonday.StrictPolicy()
	return func(c *gin.Context) {
		if c.Request.Body == nil || !strings.HasPrefix(c.ContentType(), "application/json") {
			c.Next()
			return
		}
		raw, err := io.ReadAll(c.Request.Body)
		if err != nil {
			abortWithMessage(c, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		if len(bytes.TrimSpace(raw)) == 0 {
			c.Request.Body = io.NopCloser(bytes.NewReader(raw))
			c.Next()
			return
		}

		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var body any
		if err := dec.Decode(&body); err != nil {
			abortWithMessage(c, http.StatusBadRequest, "Invalid JSON body")
			return
		}
		clean, err := json.Marshal(CleanValue(policy, body))
		if err != nil {
			abortWithMessage(c, http.StatusBadRequest, "Invalid JSON body")
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(clean))
		c.Request.ContentLength = int64(len(clean))
		c.Next()
	}
}

// CleanValue walks a decoded JSON value. Strings without markup are left
// untouched so plain text keeps its ampersands and quotes.
func CleanValue(policy *bluemonday.Policy, v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if strings.HasPrefix(k, "$") || strings.Contains(k, ".") {
				continue
			}
			out[k] = CleanValue(policy, val)
		}
		return out
	case []any:
		for i := range t {
			t[i] = CleanValue(policy, t[i])
		}
		return t
	case string:
		if !strings.ContainsAny(t, "<>") {
			return t
		}
		return policy.Sanitize(t)
	default:
		return v
	}
}
