package webhook

import (
	"io"
	"net/http"

	"codegen-app/internal/api/respond"
	"codegen-app/internal/domain/apperr"
	"codegen-app/internal/domain/billing"

	"github.com/gin-gonic/gin"
)

const maxBodyBytes = 65536

type Handler struct {
	providers *billing.Providers
	processor *billing.Processor
}

func NewHandler(providers *billing.Providers, processor *billing.Processor) *Handler {
	return &Handler{providers: providers, processor: processor}
}

// Handle verifies and applies one provider notification. Bad signatures are
// 401 and never reach the processor; processing failures are 500 so the
// provider retries.
func (h *Handler) Handle(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := respond.Logger(c).With("provider", name)
		ctx := c.Request.Context()

		provider, err := h.providers.Get(name)
		if err != nil {
			respond.Error(c, err)
			return
		}
		if err := provider.Usable(); err != nil {
			respond.Error(c, err)
			return
		}
		if err := provider.WebhookConfigured(); err != nil {
			respond.Error(c, err)
			return
		}

		payload, err := readBody(c, maxBodyBytes)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Error reading request body"})
			return
		}

		if !provider.VerifyWebhookSignature(ctx, payload, c.Request.Header) {
			log.Warn("webhook signature rejected")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
			return
		}

		evt, err := provider.ParseWebhook(ctx, payload, c.Request.Header)
		if err != nil {
			switch apperr.KindOf(err) {
			case apperr.KindUnauthorized:
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
			case apperr.KindNotConfigured:
				respond.Error(c, err)
			default:
				log.Warn("webhook payload rejected", "error", err)
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payload"})
			}
			return
		}

		log = log.With("event_type", evt.Type, "event_id", evt.EventID)

		if h.processor.IsFailure(name, evt.Type) {
			if err := h.processor.MarkFailed(ctx, name, evt.TransactionID); err != nil {
				log.Error("failed to mark payment failed", "transaction_id", evt.TransactionID, "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"status": "error"})
				return
			}
			log.Info("payment marked failed", "transaction_id", evt.TransactionID)
			c.JSON(http.StatusOK, gin.H{"status": "success"})
			return
		}

		if !h.processor.Recognizes(name, evt.Type, evt) {
			log.Debug("webhook event ignored")
			c.JSON(http.StatusOK, gin.H{"status": "ignored"})
			return
		}

		if !h.processor.ProcessWebhook(ctx, name, evt.Type, evt) {
			c.JSON(http.StatusInternalServerError, gin.H{"status": "error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "success"})
	}
}

func readBody(c *gin.Context, maxBytes int64) ([]byte, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
	return io.ReadAll(c.Request.Body)
}
