package auth

import (
	"errors"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"

	"github.com/kbukum/resilience-core/auth/jwt"
)

// RoleOperator is the role required by the admin API.
const RoleOperator = "operator"

// ErrNotOperator is returned for a valid token without the operator role.
var ErrNotOperator = errors.New("auth: operator role required")

// OperatorClaims are the claims carried by admin API tokens.
type OperatorClaims struct {
	gojwt.RegisteredClaims
	Role string `json:"role"`
}

// SetDefaults fills issued-at, expiry, issuer and audience when unset.
func (c *OperatorClaims) SetDefaults(now time.Time, ttl time.Duration, issuer, audience string) {
	if c.IssuedAt == nil {
		c.IssuedAt = gojwt.NewNumericDate(now)
	}
	if c.ExpiresAt == nil {
		c.ExpiresAt = gojwt.NewNumericDate(now.Add(ttl))
	}
	if c.Issuer == "" {
		c.Issuer = issuer
	}
	if len(c.Audience) == 0 && audience != "" {
		c.Audience = gojwt.ClaimStrings{audience}
	}
}

// Operators issues and verifies operator tokens.
type Operators struct {
	svc *jwt.Service[*OperatorClaims]
}

// NewOperators creates an operator token service from cfg.
func NewOperators(cfg Config) (*Operators, error) {
	svc, err := jwt.NewService(cfg.JWT, func() *OperatorClaims { return &OperatorClaims{} })
	if err != nil {
		return nil, err
	}
	return &Operators{svc: svc}, nil
}

// Issue returns a signed operator token for subject.
func (o *Operators) Issue(subject string) (string, error) {
	return o.svc.Issue(&OperatorClaims{
		RegisteredClaims: gojwt.RegisteredClaims{Subject: subject},
		Role:             RoleOperator,
	})
}

// Verify parses token and requires the operator role.
func (o *Operators) Verify(token string) (*OperatorClaims, error) {
	claims, err := o.svc.Parse(token)
	if err != nil {
		return nil, err
	}
	if claims.Role != RoleOperator {
		return nil, ErrNotOperator
	}
	return claims, nil
}
