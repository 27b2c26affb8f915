package generate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"codegen-app/internal/api/respond"
	"codegen-app/internal/app/http/middleware"
	"codegen-app/internal/domain/access"
	"codegen-app/internal/domain/apperr"
	"codegen-app/internal/domain/conversations"
	"codegen-app/internal/infra/llm"
	"codegen-app/internal/telemetry"

	"github.com/gin-gonic/gin"
)

type UsageRecorder interface {
	Record(ctx context.Context, userID, kind, model string, tokens int) error
}

type Handler struct {
	llm   llm.Completer
	usage UsageRecorder
	convs *conversations.Store
}

func NewHandler(completer llm.Completer, usage UsageRecorder, convs *conversations.Store) *Handler {
	return &Handler{llm: completer, usage: usage, convs: convs}
}

type generateRequest struct {
	Prompt         string `json:"prompt" binding:"required,max=20000"`
	Model          string `json:"model"`
	ConversationID string `json:"conversationId"`
}

type modifyRequest struct {
	Code        string `json:"code" binding:"required,max=200000"`
	Instruction string `json:"instruction" binding:"required,max=20000"`
	Model       string `json:"model"`
}

type previewRequest struct {
	Code string `json:"code" binding:"required,max=200000"`
}

func pickModel(p access.Policy, requested string) (string, error) {
	model, ok := p.ModelFor(requested)
	if !ok {
		return "", apperr.New(apperr.KindInvalidInput, fmt.Sprintf("Model %s is not available on the %s plan", requested, p.Tier))
	}
	return model, nil
}

func (h *Handler) record(c *gin.Context, kind, model string, tokens int) {
	userID := middleware.UserID(c)
	if userID == "" || h.usage == nil {
		return
	}
	if err := h.usage.Record(c.Request.Context(), userID, kind, model, tokens); err != nil {
		respond.Logger(c).Error("failed to record usage", "kind", kind, "error", err)
	}
}

// POST /api/generate
func (h *Handler) Generate(c *gin.Context) {
	var req generateRequest
	if err := respond.Bind(c, &req); err != nil {
		respond.Error(c, err)
		return
	}
	ctx := c.Request.Context()
	userID := middleware.UserID(c)
	policy := middleware.Policy(c)

	model, err := pickModel(policy, req.Model)
	if err != nil {
		respond.Error(c, err)
		return
	}

	var history []llm.Message
	if req.ConversationID != "" {
		if userID == "" {
			respond.Error(c, apperr.New(apperr.KindUnauthorized, "Unauthorized"))
			return
		}
		d, err := h.convs.Detail(ctx, userID, req.ConversationID)
		if err != nil {
			respond.Error(c, err)
			return
		}
		for _, m := range d.Messages {
			history = append(history, llm.Message{Role: m.Role, Content: m.Content})
		}
	}

	res, err := h.llm.Complete(ctx, llm.Request{
		Model:     model,
		Messages:  llm.GenerateMessages(req.Prompt, history),
		MaxTokens: policy.MaxTokens(0),
	})
	if err != nil {
		telemetry.RecordLLM(ctx, access.KindGenerate, model, "failed", 0)
		respond.Error(c, err)
		return
	}
	telemetry.RecordLLM(ctx, access.KindGenerate, res.Model, "ok", res.Tokens)
	h.record(c, access.KindGenerate, res.Model, res.Tokens)

	files := llm.ExtractFiles(res.Content)
	if req.ConversationID != "" {
		h.saveTurn(c, req.ConversationID, req.Prompt, res.Content, files)
	}

	respond.OK(c, gin.H{
		"code":   llm.MainCode(res.Content),
		"files":  files,
		"model":  res.Model,
		"tokens": res.Tokens,
	})
}

// saveTurn appends the exchange to the conversation. Failures are logged;
// the generated code is still returned.
func (h *Handler) saveTurn(c *gin.Context, conversationID, prompt, answer string, files []llm.File) {
	ctx := c.Request.Context()
	userID := middleware.UserID(c)
	log := respond.Logger(c).With("conversation_id", conversationID)

	if _, err := h.convs.AddMessage(ctx, userID, conversationID, conversations.RoleUser, prompt); err != nil {
		log.Error("failed to save prompt", "error", err)
		return
	}
	if _, err := h.convs.AddMessage(ctx, userID, conversationID, conversations.RoleAssistant, answer); err != nil {
		log.Error("failed to save answer", "error", err)
		return
	}
	if len(files) == 0 {
		return
	}
	in := make([]conversations.FileInput, 0, len(files))
	for _, f := range files {
		in = append(in, conversations.FileInput{FilePath: f.Path, FileContent: f.Content})
	}
	if _, err := h.convs.UpsertFiles(ctx, userID, conversationID, in); err != nil {
		log.Error("failed to save files", "error", err)
	}
}

type frame struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
	Model   string `json:"model,omitempty"`
}

func writeFrame(c *gin.Context, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", b); err != nil {
		return err
	}
	c.Writer.Flush()
	return nil
}

func writeDone(c *gin.Context) {
	_, _ = c.Writer.WriteString("data: [DONE]\n\n")
	c.Writer.Flush()
}

// POST /api/modify-code streams the rewritten code as server-sent events.
// Validation errors are plain JSON; once streaming starts, errors arrive as
// typed error frames followed by [DONE].
func (h *Handler) ModifyCode(c *gin.Context) {
	var req modifyRequest
	if err := respond.Bind(c, &req); err != nil {
		respond.Error(c, err)
		return
	}
	ctx := c.Request.Context()
	policy := middleware.Policy(c)

	model, err := pickModel(policy, req.Model)
	if err != nil {
		respond.Error(c, err)
		return
	}

	h.startStream(c)

	res, err := h.llm.Stream(ctx, llm.Request{
		Model:     model,
		Messages:  llm.ModifyMessages(req.Code, req.Instruction),
		MaxTokens: policy.MaxTokens(0),
	}, func(delta string) error {
		return writeFrame(c, frame{Type: "content", Content: delta})
	})

	if err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			respond.Logger(c).Info("modify stream cancelled by client")
			telemetry.RecordLLM(context.WithoutCancel(ctx), access.KindModify, model, "cancelled", res.Tokens)
			return
		}
		msg := "Code modification failed"
		if e, ok := apperr.As(err); ok {
			msg = e.Message
		}
		respond.Logger(c).Error("modify stream failed", "error", err)
		telemetry.RecordLLM(ctx, access.KindModify, model, "failed", res.Tokens)
		_ = writeFrame(c, frame{Type: "error", Error: msg})
		writeDone(c)
		return
	}

	telemetry.RecordLLM(ctx, access.KindModify, res.Model, "ok", res.Tokens)
	h.record(c, access.KindModify, res.Model, res.Tokens)
	_ = writeFrame(c, frame{Type: "done", Model: res.Model})
	writeDone(c)
}

func (h *Handler) startStream(c *gin.Context) {
	header := c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()
}

// POST /api/preview
func (h *Handler) Preview(c *gin.Context) {
	var req previewRequest
	if err := respond.Bind(c, &req); err != nil {
		respond.Error(c, err)
		return
	}
	html, err := RenderPreview(req.Code)
	if err != nil {
		respond.Error(c, apperr.Wrap(apperr.KindUpstream, "Failed to render preview", err))
		return
	}
	respond.OK(c, gin.H{"html": html})
}
