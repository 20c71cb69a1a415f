// Package auth guards the administrative endpoints (catalog reindex, ingest
// run inspection) with bearer tokens signed by the operations tooling.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/stitchline/backend-quote/internal/common"
)

// Admin validates bearer tokens carrying the admin role claim.
type Admin struct {
	Secret    []byte
	Issuer    string
	Audience  string
	ClockSkew time.Duration
	Algorithm jwa.SignatureAlgorithm

	now func() time.Time
}

// NewAdmin constructs an Admin validator with HS256 as the expected algorithm.
func NewAdmin(secret, issuer, audience string) *Admin {
	return &Admin{
		Secret:    []byte(secret),
		Issuer:    issuer,
		Audience:  audience,
		ClockSkew: 30 * time.Second,
		Algorithm: jwa.HS256,
		now:       time.Now,
	}
}

// ParseToken verifies the signature and claims of an admin token and returns
// its subject.
func (a *Admin) ParseToken(token string) (string, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return "", unauthorized("missing token", nil)
	}
	algorithm, err := extractAlgorithm(trimmed)
	if err != nil {
		return "", unauthorized("invalid token", err)
	}
	if a.Algorithm != "" && algorithm != a.Algorithm {
		return "", unauthorized("invalid token", fmt.Errorf("unexpected token algorithm %s", algorithm))
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(algorithm, a.Secret))
	if err != nil {
		return "", unauthorized("invalid token", err)
	}
	if err := a.validate(parsed); err != nil {
		return "", unauthorized("invalid token", err)
	}
	role, _ := parsed.Get("role")
	if role != "admin" {
		return "", &common.AppError{Code: "FORBIDDEN", Message: "admin role required", HTTPStatus: http.StatusForbidden}
	}
	return parsed.Subject(), nil
}

func (a *Admin) validate(tok jwt.Token) error {
	if tok == nil {
		return errors.New("auth: token is nil")
	}
	nowFn := a.now
	if nowFn == nil {
		nowFn = time.Now
	}
	options := []jwt.ValidateOption{
		jwt.WithClock(jwt.ClockFunc(nowFn)),
	}
	if a.ClockSkew > 0 {
		options = append(options, jwt.WithAcceptableSkew(a.ClockSkew))
	}
	if a.Issuer != "" {
		options = append(options, jwt.WithIssuer(a.Issuer))
	}
	if a.Audience != "" {
		options = append(options, jwt.WithAudience(a.Audience))
	}
	return jwt.Validate(tok, options...)
}

func extractAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	message, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	signatures := message.Signatures()
	if len(signatures) == 0 {
		return "", errors.New("auth: token contains no signatures")
	}
	headers := signatures[0].ProtectedHeaders()
	if headers == nil {
		return "", errors.New("auth: token missing protected headers")
	}
	alg := headers.Algorithm()
	if alg == "" {
		return "", errors.New("auth: token missing algorithm")
	}
	return alg, nil
}

// RequireAdmin rejects requests that do not carry a valid admin bearer token.
func (a *Admin) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearer(r)
		if token == "" {
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
			return
		}
		if _, err := a.ParseToken(token); err != nil {
			common.WriteError(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func extractBearer(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

func unauthorized(message string, err error) *common.AppError {
	return &common.AppError{Code: "UNAUTHORIZED", Message: message, HTTPStatus: http.StatusUnauthorized, Err: err}
}
