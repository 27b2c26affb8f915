package github

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"codegen-app/internal/app/http/middleware"
	"codegen-app/internal/domain/apperr"
	"codegen-app/internal/domain/github"
	"codegen-app/internal/infra/secretbox"
	"codegen-app/internal/testutil"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func init() { gin.SetMode(gin.TestMode) }

type memStates map[string]string

func (m memStates) Issue(_ context.Context, userID string) (string, error) {
	state := "state-" + userID
	m[state] = userID
	return state, nil
}

func (m memStates) Consume(_ context.Context, state string) (string, error) {
	userID, ok := m[state]
	if !ok {
		return "", apperr.New(apperr.KindUnauthorized, "Invalid state")
	}
	delete(m, state)
	return userID, nil
}

func fakeGitHub(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		if r.Form.Get("code") != "good-code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"bad_verification_code"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"gho_secret","token_type":"bearer","scope":"repo,read:user"}`))
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer gho_secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"login": "octocat"})
	})
	return httptest.NewServer(mux)
}

type fixture struct {
	r      *gin.Engine
	store  *github.Store
	box    *secretbox.Box
	states memStates
}

func newFixture(t *testing.T, gh *httptest.Server) *fixture {
	t.Helper()
	db := testutil.NewDB(t, &github.Token{})
	box, err := secretbox.New("test-encryption-secret")
	require.NoError(t, err)

	f := &fixture{store: github.NewStore(db), box: box, states: memStates{}}
	h := NewHandler(Config{
		ClientID:     "cid",
		ClientSecret: "csecret",
		RedirectURL:  "http://localhost:8080/api/github/callback",
		AppURL:       "http://localhost:3000/",
		Endpoint: oauth2.Endpoint{
			AuthURL:  gh.URL + "/login/oauth/authorize",
			TokenURL: gh.URL + "/login/oauth/access_token",
		},
		APIBase: gh.URL,
	}, f.states, box, f.store)

	r := gin.New()
	user := func(c *gin.Context) { c.Set(middleware.CtxUserID, c.GetHeader("X-Test-User")) }
	r.GET("/api/github/auth", user, h.Auth)
	r.GET("/api/github/callback", h.Callback)
	r.GET("/api/github/status", user, h.Status)
	r.DELETE("/api/github/unbind", user, h.Unbind)
	f.r = r
	return f
}

func (f *fixture) do(method, target, user string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	req.Header.Set("X-Test-User", user)
	rec := httptest.NewRecorder()
	f.r.ServeHTTP(rec, req)
	return rec
}

func TestLinkFlow(t *testing.T) {
	gh := fakeGitHub(t)
	defer gh.Close()
	f := newFixture(t, gh)

	rec := f.do(http.MethodGet, "/api/github/auth", "u1")
	require.Equal(t, http.StatusOK, rec.Code)
	var auth map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &auth))
	authURL, err := url.Parse(auth["authUrl"].(string))
	require.NoError(t, err)
	state := authURL.Query().Get("state")
	assert.Equal(t, "cid", authURL.Query().Get("client_id"))
	assert.NotEmpty(t, state)

	rec = f.do(http.MethodGet, "/api/github/callback?code=good-code&state="+state, "")
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "http://localhost:3000/settings?github=connected", rec.Header().Get("Location"))

	tok, err := f.store.Get(context.Background(), "u1")
	require.NoError(t, err)
	require.NotNil(t, tok)
	assert.Equal(t, "octocat", tok.Username)
	assert.NotContains(t, tok.AccessTokenSealed, "gho_secret")
	plain, err := f.box.Open(tok.AccessTokenSealed, "u1")
	require.NoError(t, err)
	assert.Equal(t, "gho_secret", plain)

	rec = f.do(http.MethodGet, "/api/github/status", "u1")
	var status map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, true, status["connected"])
	assert.Equal(t, "octocat", status["username"])

	rec = f.do(http.MethodDelete, "/api/github/unbind", "u1")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, "/api/github/status", "u1")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, false, status["connected"])
}

func TestCallbackFailuresRedirectWithError(t *testing.T) {
	gh := fakeGitHub(t)
	defer gh.Close()
	f := newFixture(t, gh)

	cases := []string{
		"/api/github/callback?code=good-code&state=unknown",
		"/api/github/callback?state=state-u1",
		"/api/github/callback?error=access_denied",
	}
	for _, target := range cases {
		rec := f.do(http.MethodGet, target, "")
		assert.Equal(t, http.StatusFound, rec.Code, target)
		assert.Equal(t, "http://localhost:3000/settings?github=error", rec.Header().Get("Location"), target)
	}

	state, _ := f.states.Issue(context.Background(), "u1")
	rec := f.do(http.MethodGet, "/api/github/callback?code=bad-code&state="+state, "")
	assert.Equal(t, "http://localhost:3000/settings?github=error", rec.Header().Get("Location"))

	// the state was spent by the failed attempt
	rec = f.do(http.MethodGet, "/api/github/callback?code=good-code&state="+state, "")
	assert.Equal(t, "http://localhost:3000/settings?github=error", rec.Header().Get("Location"))

	tok, err := f.store.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Nil(t, tok)
}

func TestNotConfigured(t *testing.T) {
	h := NewHandler(Config{AppURL: "http://app"}, memStates{}, nil, nil)
	r := gin.New()
	r.GET("/api/github/auth", h.Auth)
	r.GET("/api/github/callback", h.Callback)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/github/auth", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/github/callback?code=x&state=y", nil))
	assert.Equal(t, "http://app/settings?github=error", rec.Header().Get("Location"))
}
