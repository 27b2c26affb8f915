package billing

import (
	"strconv"

	"codegen-app/internal/api/respond"
	"codegen-app/internal/app/http/middleware"
	"codegen-app/internal/domain/billing"

	"github.com/gin-gonic/gin"
)

func queryInt(c *gin.Context, key string, fallback, lo, hi int) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil || n < lo {
		return fallback
	}
	if hi > 0 && n > hi {
		return hi
	}
	return n
}

func (h *Handler) History(c *gin.Context) {
	page := queryInt(c, "page", 1, 1, 0)
	size := queryInt(c, "pageSize", billing.DefaultPageSize, 1, billing.MaxPageSize)

	records, total, err := billing.PaymentHistory(c.Request.Context(), h.db, middleware.UserID(c), page, size)
	if err != nil {
		respond.Error(c, err)
		return
	}

	respond.OK(c, gin.H{
		"records":  records,
		"total":    total,
		"page":     page,
		"pageSize": size,
	})
}
