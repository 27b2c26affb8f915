// Package auth verifies bearer tokens issued by the external identity
// provider. Tokens are either HS256 with a shared secret or asymmetric and
// checked against the provider's JWKS.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"codegen-app/internal/domain/apperr"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
)

// Claims is the identity the rest of the service sees.
type Claims struct {
	UserID string
	Email  string
	Role   string
}

type Config struct {
	// Issuer is the provider base URL; its JWKS lives under /.well-known/jwks.json.
	Issuer    string
	JWKSURL   string
	Audience  string
	JWTSecret string
	Leeway    time.Duration
}

var errInvalidToken = apperr.New(apperr.KindUnauthorized, "Unauthorized")

type tokenClaims struct {
	jwt.RegisteredClaims
	Email       string `json:"email"`
	Role        string `json:"role"`
	AppMetadata struct {
		Role string `json:"role"`
	} `json:"app_metadata"`
}

func (c *tokenClaims) toClaims() *Claims {
	role := c.AppMetadata.Role
	if role == "" {
		role = c.Role
	}
	return &Claims{UserID: c.Subject, Email: c.Email, Role: role}
}

type Verifier struct {
	cfg    Config
	hmac   *jwt.Parser
	remote *oidc.IDTokenVerifier
}

// NewVerifier never dials the provider; the JWKS is fetched lazily on the
// first asymmetric token.
func NewVerifier(ctx context.Context, cfg Config) *Verifier {
	v := &Verifier{cfg: cfg}

	if cfg.JWTSecret != "" {
		opts := []jwt.ParserOption{
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(cfg.Leeway),
		}
		if cfg.Audience != "" {
			opts = append(opts, jwt.WithAudience(cfg.Audience))
		}
		if cfg.Issuer != "" {
			opts = append(opts, jwt.WithIssuer(cfg.Issuer))
		}
		v.hmac = jwt.NewParser(opts...)
	}

	jwksURL := cfg.JWKSURL
	if jwksURL == "" && cfg.Issuer != "" {
		jwksURL = strings.TrimRight(cfg.Issuer, "/") + "/.well-known/jwks.json"
	}
	if jwksURL != "" && cfg.Issuer != "" {
		keySet := oidc.NewRemoteKeySet(ctx, jwksURL)
		v.remote = oidc.NewVerifier(cfg.Issuer, keySet, &oidc.Config{
			ClientID:             cfg.Audience,
			SkipClientIDCheck:    cfg.Audience == "",
			SupportedSigningAlgs: []string{oidc.RS256, oidc.ES256},
		})
	}
	return v
}

// Configured reports whether any verification path is available.
func (v *Verifier) Configured() bool {
	return v.hmac != nil || v.remote != nil
}

// Verify returns the caller's identity. Every failure is the same
// Unauthorized error so clients cannot tell expired from malformed.
func (v *Verifier) Verify(ctx context.Context, raw string) (*Claims, error) {
	if !v.Configured() {
		return nil, apperr.New(apperr.KindNotConfigured, "Authentication is not configured")
	}
	if raw == "" {
		return nil, errInvalidToken
	}

	alg, err := headerAlg(raw)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnauthorized, "Unauthorized", err)
	}

	var claims *Claims
	switch {
	case strings.HasPrefix(alg, "HS") && v.hmac != nil:
		claims, err = v.verifyHMAC(raw)
	case !strings.HasPrefix(alg, "HS") && v.remote != nil:
		claims, err = v.verifyRemote(ctx, raw)
	default:
		err = fmt.Errorf("no verifier for alg %q", alg)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnauthorized, "Unauthorized", err)
	}
	if claims.UserID == "" {
		return nil, errInvalidToken
	}
	return claims, nil
}

func headerAlg(raw string) (string, error) {
	tok, _, err := jwt.NewParser().ParseUnverified(raw, &jwt.RegisteredClaims{})
	if err != nil {
		return "", err
	}
	alg, _ := tok.Header["alg"].(string)
	if alg == "" {
		return "", errors.New("token header has no alg")
	}
	return alg, nil
}

func (v *Verifier) verifyHMAC(raw string) (*Claims, error) {
	var c tokenClaims
	_, err := v.hmac.ParseWithClaims(raw, &c, func(*jwt.Token) (interface{}, error) {
		return []byte(v.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}
	return c.toClaims(), nil
}

func (v *Verifier) verifyRemote(ctx context.Context, raw string) (*Claims, error) {
	tok, err := v.remote.Verify(ctx, raw)
	if err != nil {
		return nil, err
	}
	var c tokenClaims
	if err := tok.Claims(&c); err != nil {
		return nil, err
	}
	c.Subject = tok.Subject
	return c.toClaims(), nil
}
