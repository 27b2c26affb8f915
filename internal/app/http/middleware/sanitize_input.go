package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"html"
	"io"
	"net/http"

	"codegen-app/internal/api/respond"
	"codegen-app/internal/domain/apperr"

	"github.com/gin-gonic/gin"
	"github.com/microcosm-cc/bluemonday"
)

const maxSanitizeBytes = 1 << 20

var strictPolicy = bluemonday.StrictPolicy()

// stripMarkup removes tags but keeps the text as typed. The policy encodes
// entities, so the result is unescaped and sanitized again until stable to
// catch markup smuggled in as entities.
func stripMarkup(s string) string {
	for i := 0; i < 3; i++ {
		out := html.UnescapeString(strictPolicy.Sanitize(s))
		if out == s {
			break
		}
		s = out
	}
	return s
}

// SanitizeFields strips markup from the named top-level string fields of a
// JSON body. Other fields pass through untouched so code content survives.
func SanitizeFields(fields ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost &&
			c.Request.Method != http.MethodPut &&
			c.Request.Method != http.MethodPatch {
			c.Next()
			return
		}

		buf, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxSanitizeBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Request body too large"})
				return
			}
			respond.Error(c, apperr.New(apperr.KindInvalidInput, "Invalid body"))
			return
		}
		if len(bytes.TrimSpace(buf)) == 0 {
			c.Request.Body = io.NopCloser(bytes.NewReader(buf))
			c.Next()
			return
		}

		var body map[string]interface{}
		if err := json.Unmarshal(buf, &body); err != nil {
			respond.Error(c, apperr.New(apperr.KindInvalidInput, "Malformed JSON"))
			return
		}

		for _, k := range fields {
			if str, ok := body[k].(string); ok {
				body[k] = stripMarkup(str)
			}
		}

		newBody, err := json.Marshal(body)
		if err != nil {
			respond.Error(c, apperr.Wrap(apperr.KindInvalidInput, "Invalid body", err))
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(newBody))
		c.Request.ContentLength = int64(len(newBody))

		c.Next()
	}
}
