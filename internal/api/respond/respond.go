// Package respond writes the JSON envelopes shared by every API handler and
// maps apperr kinds to HTTP statuses.
package respond

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"codegen-app/internal/domain/apperr"

	"github.com/gin-gonic/gin"
)

const loggerKey = "logger"

// SetLogger stores a request-scoped logger on the gin context.
func SetLogger(c *gin.Context, l *slog.Logger) { c.Set(loggerKey, l) }

// Logger returns the request-scoped logger, or the default one.
func Logger(c *gin.Context) *slog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if l, ok := v.(*slog.Logger); ok {
			return l
		}
	}
	return slog.Default()
}

func StatusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindInvalidInput:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict, apperr.KindQuotaExceeded:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// OK merges body into a success envelope.
func OK(c *gin.Context, body gin.H) {
	if body == nil {
		body = gin.H{}
	}
	body["success"] = true
	c.JSON(http.StatusOK, body)
}

// Error aborts with the envelope for err. Causes are logged, never sent.
func Error(c *gin.Context, err error) {
	e, ok := apperr.As(err)
	if !ok {
		e = apperr.Wrap(apperr.KindUpstream, "Internal server error", err)
	}
	status := StatusFor(e.Kind)

	log := Logger(c).With("path", c.FullPath(), "kind", e.Kind.String(), "status", status)
	if status >= http.StatusInternalServerError {
		log.ErrorContext(c.Request.Context(), e.Message, "error", e.Cause)
	} else {
		log.DebugContext(c.Request.Context(), e.Message)
	}

	body := gin.H{"success": false, "error": e.Message}
	if e.Kind == apperr.KindConflict {
		wait := int(math.Ceil(e.RetryAfter.Seconds()))
		if wait < 1 {
			wait = 1
		}
		c.Header("Retry-After", strconv.Itoa(wait))
		body["waitTime"] = wait
	}
	c.AbortWithStatusJSON(status, body)
}

// Unauthorized is the single message every auth failure gets.
func Unauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Unauthorized"})
}
