package admin

import (
	"net/http"
	"strconv"
	"time"

	"codegen-app/internal/api/respond"
	"codegen-app/internal/domain/apperr"
	"codegen-app/internal/domain/billing"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type AdminPayment struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	Amount        int64      `json:"amount"`
	Currency      string     `json:"currency"`
	Status        string     `json:"status"`
	PaymentMethod string     `json:"payment_method"`
	TransactionID *string    `json:"transaction_id,omitempty"`
	PlanType      string     `json:"plan_type"`
	BillingCycle  string     `json:"billing_cycle"`
	CreatedAt     string     `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

type AdminStats struct {
	TotalRevenue      map[string]int64 `json:"total_revenue"`
	RecentRevenue     map[string]int64 `json:"recent_revenue"`
	PaymentsPerStatus map[string]int64 `json:"payments_per_status"`
	ActivePerTier     map[string]int64 `json:"active_subscriptions_per_tier"`
}

type Handler struct {
	db        *gorm.DB
	processor *billing.Processor
	now       func() time.Time
}

func NewHandler(db *gorm.DB, processor *billing.Processor) *Handler {
	return &Handler{db: db, processor: processor, now: func() time.Time { return time.Now().UTC() }}
}

func toAdminPayment(p billing.Payment) AdminPayment {
	return AdminPayment{
		ID:            p.ID,
		UserID:        p.UserID,
		Amount:        p.Amount,
		Currency:      p.Currency,
		Status:        p.Status,
		PaymentMethod: p.PaymentMethod,
		TransactionID: p.TransactionID,
		PlanType:      p.PlanType,
		BillingCycle:  p.BillingCycle,
		CreatedAt:     p.CreatedAt.Format("2006-01-02 15:04"),
		CompletedAt:   p.CompletedAt,
	}
}

// GET /api/admin/payments?status=&page=&pageSize=
func (h *Handler) ListAllPayments(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("pageSize", strconv.Itoa(billing.DefaultPageSize)))
	if page < 1 {
		page = 1
	}
	if size < 1 || size > billing.MaxPageSize {
		size = billing.DefaultPageSize
	}

	scoped := func() *gorm.DB {
		q := h.db.WithContext(c.Request.Context()).Model(&billing.Payment{})
		if status := c.Query("status"); status != "" {
			q = q.Where("status = ?", status)
		}
		return q
	}

	var total int64
	if err := scoped().Count(&total).Error; err != nil {
		respond.Error(c, apperr.Wrap(apperr.KindUpstream, "Failed to load payments", err))
		return
	}

	var payments []billing.Payment
	if err := scoped().Order("created_at DESC").Offset((page - 1) * size).Limit(size).Find(&payments).Error; err != nil {
		respond.Error(c, apperr.Wrap(apperr.KindUpstream, "Failed to load payments", err))
		return
	}

	result := make([]AdminPayment, 0, len(payments))
	for _, p := range payments {
		result = append(result, toAdminPayment(p))
	}
	respond.OK(c, gin.H{"payments": result, "total": total, "page": page, "pageSize": size})
}

// POST /api/admin/payments/:id/refund records a refund issued in the
// provider dashboard. The subscription keeps its current period.
func (h *Handler) RefundPayment(c *gin.Context) {
	p, err := h.processor.Refund(c.Request.Context(), c.Param("id"))
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.Logger(c).Info("payment refunded", "payment_id", p.ID, "user_id", p.UserID)
	respond.OK(c, gin.H{"payment": toAdminPayment(*p)})
}

type sumRow struct {
	Bucket string
	Total  int64
}

func sums(q *gorm.DB, keyCol, valExpr string) (map[string]int64, error) {
	var rows []sumRow
	err := q.Select(keyCol + " AS bucket, " + valExpr + " AS total").Group(keyCol).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Bucket] = r.Total
	}
	return out, nil
}

// GET /api/admin/stats
func (h *Handler) GetAdminStats(c *gin.Context) {
	db := h.db.WithContext(c.Request.Context())
	now := h.now()
	var stats AdminStats
	var err error

	completed := func() *gorm.DB {
		return db.Model(&billing.Payment{}).Where("status = ?", billing.StatusCompleted)
	}

	if stats.TotalRevenue, err = sums(completed(), "currency", "COALESCE(SUM(amount), 0)"); err != nil {
		respond.Error(c, apperr.Wrap(apperr.KindUpstream, "Failed to load stats", err))
		return
	}
	if stats.RecentRevenue, err = sums(completed().Where("completed_at >= ?", now.AddDate(0, 0, -30)), "currency", "COALESCE(SUM(amount), 0)"); err != nil {
		respond.Error(c, apperr.Wrap(apperr.KindUpstream, "Failed to load stats", err))
		return
	}
	if stats.PaymentsPerStatus, err = sums(db.Model(&billing.Payment{}), "status", "COUNT(*)"); err != nil {
		respond.Error(c, apperr.Wrap(apperr.KindUpstream, "Failed to load stats", err))
		return
	}
	active := db.Model(&billing.Subscription{}).Where("status = ? AND period_end > ?", billing.SubscriptionActive, now)
	if stats.ActivePerTier, err = sums(active, "tier", "COUNT(*)"); err != nil {
		respond.Error(c, apperr.Wrap(apperr.KindUpstream, "Failed to load stats", err))
		return
	}

	c.JSON(http.StatusOK, stats)
}

// GET /api/admin/users/:id
func (h *Handler) GetUserDetails(c *gin.Context) {
	userID := c.Param("id")

	sub, err := billing.CurrentSubscription(c.Request.Context(), h.db, userID)
	if err != nil {
		respond.Error(c, err)
		return
	}

	var payments []billing.Payment
	if err := h.db.WithContext(c.Request.Context()).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&payments).Error; err != nil {
		respond.Error(c, apperr.Wrap(apperr.KindUpstream, "Failed to fetch payments", err))
		return
	}

	result := make([]AdminPayment, 0, len(payments))
	for _, p := range payments {
		result = append(result, toAdminPayment(p))
	}
	respond.OK(c, gin.H{
		"user_id":      userID,
		"subscription": sub,
		"payments":     result,
	})
}
