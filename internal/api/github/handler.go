package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"codegen-app/internal/api/respond"
	"codegen-app/internal/app/http/middleware"
	"codegen-app/internal/domain/apperr"
	"codegen-app/internal/domain/github"

	"github.com/gin-gonic/gin"
	"golang.org/x/oauth2"
	githuboauth "golang.org/x/oauth2/github"
)

const defaultAPIBase = "https://api.github.com"

type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AppURL       string
	// Endpoint and APIBase default to github.com.
	Endpoint oauth2.Endpoint
	APIBase  string
}

type StateStore interface {
	Issue(ctx context.Context, userID string) (string, error)
	Consume(ctx context.Context, state string) (string, error)
}

type Sealer interface {
	Seal(plaintext, aad string) (string, error)
}

type Handler struct {
	oauth   *oauth2.Config
	appURL  string
	apiBase string
	states  StateStore
	box     Sealer
	store   *github.Store
}

func NewHandler(cfg Config, states StateStore, box Sealer, store *github.Store) *Handler {
	endpoint := cfg.Endpoint
	if endpoint.AuthURL == "" {
		endpoint = githuboauth.Endpoint
	}
	apiBase := cfg.APIBase
	if apiBase == "" {
		apiBase = defaultAPIBase
	}
	return &Handler{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"repo", "read:user"},
			Endpoint:     endpoint,
		},
		appURL:  strings.TrimRight(cfg.AppURL, "/"),
		apiBase: strings.TrimRight(apiBase, "/"),
		states:  states,
		box:     box,
		store:   store,
	}
}

func (h *Handler) usable() error {
	if h.oauth.ClientID == "" || h.oauth.ClientSecret == "" {
		return apperr.New(apperr.KindNotConfigured, "GitHub integration is not configured")
	}
	if h.box == nil || h.states == nil {
		return apperr.New(apperr.KindNotConfigured, "GitHub integration is not configured")
	}
	return nil
}

// GET /api/github/auth
func (h *Handler) Auth(c *gin.Context) {
	if err := h.usable(); err != nil {
		respond.Error(c, err)
		return
	}
	state, err := h.states.Issue(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, gin.H{"authUrl": h.oauth.AuthCodeURL(state, oauth2.AccessTypeOnline)})
}

// GET /api/github/callback. Always ends in a redirect back to the app.
func (h *Handler) Callback(c *gin.Context) {
	log := respond.Logger(c)
	ctx := c.Request.Context()

	fail := func(reason string, err error) {
		log.Warn("github link failed", "reason", reason, "error", err)
		c.Redirect(http.StatusFound, h.settingsURL("error"))
	}

	if err := h.usable(); err != nil {
		fail("not configured", err)
		return
	}
	if e := c.Query("error"); e != "" {
		fail("denied", errors.New(e))
		return
	}
	code := c.Query("code")
	if code == "" {
		fail("missing code", nil)
		return
	}
	userID, err := h.states.Consume(ctx, c.Query("state"))
	if err != nil {
		fail("invalid state", err)
		return
	}

	tok, err := h.oauth.Exchange(ctx, code)
	if err != nil {
		fail("exchange", err)
		return
	}

	username, err := h.fetchLogin(ctx, tok)
	if err != nil {
		fail("fetch user", err)
		return
	}

	sealed, err := h.box.Seal(tok.AccessToken, userID)
	if err != nil {
		fail("seal", err)
		return
	}

	scope, _ := tok.Extra("scope").(string)
	if err := h.store.Link(ctx, &github.Token{
		UserID:            userID,
		AccessTokenSealed: sealed,
		TokenType:         tok.TokenType,
		Scope:             scope,
		Username:          username,
	}); err != nil {
		fail("store", err)
		return
	}

	log.Info("github account linked", "user_id", userID, "username", username)
	c.Redirect(http.StatusFound, h.settingsURL("connected"))
}

func (h *Handler) fetchLogin(ctx context.Context, tok *oauth2.Token) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.apiBase+"/user", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := h.oauth.Client(ctx, tok).Do(req)
	if err != nil {
		return "", fmt.Errorf("get user: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("get user: status %d", resp.StatusCode)
	}

	var u struct {
		Login string `json:"login"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return "", fmt.Errorf("decode user: %w", err)
	}
	if u.Login == "" {
		return "", errors.New("user has no login")
	}
	return u.Login, nil
}

func (h *Handler) settingsURL(result string) string {
	return h.appURL + "/settings?github=" + url.QueryEscape(result)
}

// GET /api/github/status
func (h *Handler) Status(c *gin.Context) {
	t, err := h.store.Get(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respond.Error(c, err)
		return
	}
	if t == nil {
		respond.OK(c, gin.H{"connected": false})
		return
	}
	respond.OK(c, gin.H{
		"connected":   true,
		"username":    t.Username,
		"scope":       t.Scope,
		"connectedAt": t.CreatedAt,
	})
}

// DELETE /api/github/unbind
func (h *Handler) Unbind(c *gin.Context) {
	if err := h.store.Unlink(c.Request.Context(), middleware.UserID(c)); err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, nil)
}
