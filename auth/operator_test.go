package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"

	"github.com/kbukum/resilience-core/auth/jwt"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newOperators(t *testing.T, cfg jwt.Config) *Operators {
	t.Helper()
	if cfg.Secret == "" {
		cfg.Secret = testSecret
	}
	ops, err := NewOperators(Config{Enabled: true, JWT: cfg})
	if err != nil {
		t.Fatalf("NewOperators: %v", err)
	}
	return ops
}

func TestIssueAndVerify(t *testing.T) {
	ops := newOperators(t, jwt.Config{Issuer: "resilienced", Audience: "admin"})

	token, err := ops.Issue("alice")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err := ops.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Subject != "alice" || claims.Role != RoleOperator {
		t.Errorf("unexpected claims: %+v", claims)
	}
	if claims.ExpiresAt == nil || claims.ExpiresAt.Sub(claims.IssuedAt.Time) != time.Hour {
		t.Errorf("expected a 1h token, got iat=%v exp=%v", claims.IssuedAt, claims.ExpiresAt)
	}
}

func TestVerifyRejectsOtherRoles(t *testing.T) {
	ops := newOperators(t, jwt.Config{})
	token, err := ops.svc.Issue(&OperatorClaims{Role: "viewer"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := ops.Verify(token); !errors.Is(err, ErrNotOperator) {
		t.Errorf("expected ErrNotOperator, got %v", err)
	}
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	ops := newOperators(t, jwt.Config{Issuer: "resilienced"})
	other := newOperators(t, jwt.Config{Secret: strings.Repeat("x", 32), Issuer: "resilienced"})
	wrongIssuer := newOperators(t, jwt.Config{Issuer: "someone-else"})

	forged, _ := other.Issue("mallory")
	foreign, _ := wrongIssuer.Issue("bob")
	expired, _ := ops.svc.Issue(&OperatorClaims{
		RegisteredClaims: gojwt.RegisteredClaims{
			Subject:   "carol",
			ExpiresAt: gojwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
		Role: RoleOperator,
	})
	none := gojwt.NewWithClaims(gojwt.SigningMethodNone, &OperatorClaims{Role: RoleOperator})
	unsigned, _ := none.SignedString(gojwt.UnsafeAllowNoneSignatureType)

	tests := map[string]string{
		"garbage":      "not-a-token",
		"wrong secret": forged,
		"wrong issuer": foreign,
		"expired":      expired,
		"alg none":     unsigned,
		"empty":        "",
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ops.Verify(token); err == nil {
				t.Error("expected verification to fail")
			}
		})
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"disabled skips checks", Config{}, false},
		{"valid", Config{Enabled: true, JWT: jwt.Config{Secret: testSecret}}, false},
		{"missing secret", Config{Enabled: true}, true},
		{"short secret", Config{Enabled: true, JWT: jwt.Config{Secret: "short"}}, true},
		{"bad method", Config{Enabled: true, JWT: jwt.Config{Secret: testSecret, Method: "RS256"}}, true},
		{"bad ttl", Config{Enabled: true, JWT: jwt.Config{Secret: testSecret, TokenTTL: "soon"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.ApplyDefaults()
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
