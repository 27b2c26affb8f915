package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"codegen-app/internal/domain/apperr"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "super-secret-jwt-token-with-at-least-32-characters"

func signHS256(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub":   "3f1c2a9e-0000-4000-8000-000000000001",
		"email": "dev@example.com",
		"aud":   "authenticated",
		"role":  "authenticated",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
}

func TestVerifyHMAC(t *testing.T) {
	v := NewVerifier(context.Background(), Config{JWTSecret: testSecret, Audience: "authenticated"})

	claims, err := v.Verify(context.Background(), signHS256(t, testSecret, validClaims()))
	require.NoError(t, err)
	assert.Equal(t, "3f1c2a9e-0000-4000-8000-000000000001", claims.UserID)
	assert.Equal(t, "dev@example.com", claims.Email)
	assert.Equal(t, "authenticated", claims.Role)
}

func TestVerifyPrefersAppMetadataRole(t *testing.T) {
	v := NewVerifier(context.Background(), Config{JWTSecret: testSecret})
	c := validClaims()
	c["app_metadata"] = map[string]interface{}{"role": "admin"}

	claims, err := v.Verify(context.Background(), signHS256(t, testSecret, c))
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Role)
}

func TestVerifyRejectsWithGenericError(t *testing.T) {
	v := NewVerifier(context.Background(), Config{JWTSecret: testSecret, Audience: "authenticated"})
	ctx := context.Background()

	expired := validClaims()
	expired["exp"] = time.Now().Add(-time.Hour).Unix()

	noExp := validClaims()
	delete(noExp, "exp")

	wrongAud := validClaims()
	wrongAud["aud"] = "anon"

	noSub := validClaims()
	delete(noSub, "sub")

	tokens := map[string]string{
		"expired":      signHS256(t, testSecret, expired),
		"no exp":       signHS256(t, testSecret, noExp),
		"wrong secret": signHS256(t, "another-secret", validClaims()),
		"wrong aud":    signHS256(t, testSecret, wrongAud),
		"no sub":       signHS256(t, testSecret, noSub),
		"garbage":      "not.a.jwt",
		"empty":        "",
	}
	for name, tok := range tokens {
		_, err := v.Verify(ctx, tok)
		e, ok := apperr.As(err)
		require.True(t, ok, name)
		assert.Equal(t, apperr.KindUnauthorized, e.Kind, name)
		assert.Equal(t, "Unauthorized", e.Message, name)
	}
}

func TestVerifyNotConfigured(t *testing.T) {
	v := NewVerifier(context.Background(), Config{})
	assert.False(t, v.Configured())

	_, err := v.Verify(context.Background(), "x")
	assert.True(t, apperr.Is(err, apperr.KindNotConfigured))
}

func b64(b []byte) string { return base64.RawURLEncoding.EncodeToString(b) }

func TestVerifyJWKS(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	jwks := map[string]interface{}{
		"keys": []map[string]string{{
			"kty": "RSA",
			"kid": "test-key",
			"use": "sig",
			"alg": "RS256",
			"n":   b64(key.N.Bytes()),
			"e":   b64(big.NewInt(int64(key.E)).Bytes()),
		}},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(jwks)
	}))
	defer srv.Close()

	issuer := srv.URL + "/auth/v1"
	v := NewVerifier(context.Background(), Config{Issuer: issuer, JWKSURL: srv.URL + "/jwks", Audience: "authenticated"})

	c := validClaims()
	c["iss"] = issuer
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, c)
	tok.Header["kid"] = "test-key"
	raw, err := tok.SignedString(key)
	require.NoError(t, err)

	claims, err := v.Verify(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "3f1c2a9e-0000-4000-8000-000000000001", claims.UserID)

	c["iss"] = "https://evil.example"
	forged := jwt.NewWithClaims(jwt.SigningMethodRS256, c)
	forged.Header["kid"] = "test-key"
	raw, err = forged.SignedString(key)
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), raw)
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
}
