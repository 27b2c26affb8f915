package conversations

import (
	"errors"
	"io"

	"codegen-app/internal/api/respond"
	"codegen-app/internal/app/http/middleware"
	"codegen-app/internal/domain/conversations"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	store *conversations.Store
}

func NewHandler(store *conversations.Store) *Handler {
	return &Handler{store: store}
}

func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respond.Error(c, respond.BindError(err))
		return
	}
	conv, err := h.store.Create(c.Request.Context(), middleware.UserID(c), req.Title)
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, gin.H{"conversation": conv})
}

func (h *Handler) List(c *gin.Context) {
	list, err := h.store.List(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, gin.H{"conversations": list})
}

func (h *Handler) Get(c *gin.Context) {
	d, err := h.store.Detail(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, gin.H{
		"conversation": d.Conversation,
		"messages":     d.Messages,
		"files":        d.Files,
	})
}

func (h *Handler) Rename(c *gin.Context) {
	var req RenameRequest
	if err := respond.Bind(c, &req); err != nil {
		respond.Error(c, err)
		return
	}
	conv, err := h.store.Rename(c.Request.Context(), middleware.UserID(c), c.Param("id"), req.Title)
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, gin.H{"conversation": conv})
}

func (h *Handler) Delete(c *gin.Context) {
	if err := h.store.Delete(c.Request.Context(), middleware.UserID(c), c.Param("id")); err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, nil)
}

func (h *Handler) AddMessage(c *gin.Context) {
	var req MessageRequest
	if err := respond.Bind(c, &req); err != nil {
		respond.Error(c, err)
		return
	}
	msg, err := h.store.AddMessage(c.Request.Context(), middleware.UserID(c), c.Param("id"), req.Role, req.Content)
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, gin.H{"message": msg})
}

func (h *Handler) SaveFiles(c *gin.Context) {
	var req FilesRequest
	if err := respond.Bind(c, &req); err != nil {
		respond.Error(c, err)
		return
	}
	in := make([]conversations.FileInput, 0, len(req.Files))
	for _, f := range req.Files {
		in = append(in, conversations.FileInput{FilePath: f.FilePath, FileContent: f.FileContent})
	}
	files, err := h.store.UpsertFiles(c.Request.Context(), middleware.UserID(c), c.Param("id"), in)
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, gin.H{"files": files})
}
