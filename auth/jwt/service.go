// Package jwt issues and verifies HMAC-signed tokens for a caller-defined
// claims type.
//
//	type Claims struct {
//	    jwt.RegisteredClaims
//	    Role string `json:"role"`
//	}
//
//	svc, err := jwt.NewService(cfg, func() *Claims { return &Claims{} })
//	token, err := svc.Issue(&Claims{Role: "operator"})
//	claims, err := svc.Parse(token)
package jwt

import (
	"errors"
	"fmt"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
)

// Defaulter is implemented by claims types that accept standard time claims.
type Defaulter interface {
	SetDefaults(now time.Time, ttl time.Duration, issuer, audience string)
}

// Service issues and parses tokens with claims of type T.
type Service[T gojwt.Claims] struct {
	cfg      Config
	newEmpty func() T
	now      func() time.Time
}

// NewService creates a token service. newEmpty returns a fresh T for parsing.
func NewService[T gojwt.Claims](cfg Config, newEmpty func() T) (*Service[T], error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("jwt: %w", err)
	}
	return &Service[T]{cfg: cfg, newEmpty: newEmpty, now: time.Now}, nil
}

// Issue fills the standard time claims when T implements Defaulter, then signs.
func (s *Service[T]) Issue(claims T) (string, error) {
	if d, ok := any(claims).(Defaulter); ok {
		d.SetDefaults(s.now(), s.cfg.ttl(), s.cfg.Issuer, s.cfg.Audience)
	}
	token := gojwt.NewWithClaims(s.cfg.signingMethod(), claims)
	signed, err := token.SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("jwt: sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies the signature, expiry, and configured issuer and audience.
func (s *Service[T]) Parse(tokenString string) (T, error) {
	var zero T
	claims := s.newEmpty()
	token, err := gojwt.ParseWithClaims(tokenString, claims, s.keyFunc, s.parserOptions()...)
	if err != nil {
		return zero, fmt.Errorf("jwt: parse token: %w", err)
	}
	if !token.Valid {
		return zero, errors.New("jwt: invalid token")
	}
	parsed, ok := token.Claims.(T)
	if !ok {
		return zero, errors.New("jwt: unexpected claims type")
	}
	return parsed, nil
}

func (s *Service[T]) keyFunc(token *gojwt.Token) (interface{}, error) {
	if token.Method.Alg() != s.cfg.signingMethod().Alg() {
		return nil, fmt.Errorf("jwt: unexpected signing method: %s", token.Method.Alg())
	}
	return []byte(s.cfg.Secret), nil
}

func (s *Service[T]) parserOptions() []gojwt.ParserOption {
	opts := []gojwt.ParserOption{
		gojwt.WithValidMethods([]string{s.cfg.signingMethod().Alg()}),
		gojwt.WithExpirationRequired(),
		gojwt.WithTimeFunc(s.now),
	}
	if s.cfg.Issuer != "" {
		opts = append(opts, gojwt.WithIssuer(s.cfg.Issuer))
	}
	if s.cfg.Audience != "" {
		opts = append(opts, gojwt.WithAudience(s.cfg.Audience))
	}
	return opts
}
