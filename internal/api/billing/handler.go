package billing

import (
	"codegen-app/internal/domain/billing"

	"gorm.io/gorm"
)

type Handler struct {
	db        *gorm.DB
	orders    *billing.OrderService
	processor *billing.Processor
}

func NewHandler(db *gorm.DB, orders *billing.OrderService, processor *billing.Processor) *Handler {
	return &Handler{db: db, orders: orders, processor: processor}
}
