package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func testConfig() *JWTConfig {
	return &JWTConfig{Secret: []byte("secret"), Issuer: "groupsync", Audience: "web", TTL: time.Hour}
}

func TestGenerateAndValidate(t *testing.T) {
	cfg := testConfig()

	token, err := GenerateToken(cfg, "u1", "alice", "alice@example.com")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	claims, err := ValidateToken(cfg, token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.UserID != "u1" || claims.Username != "alice" || claims.Email != "alice@example.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestValidateFallsBackToSubject(t *testing.T) {
	cfg := &JWTConfig{Secret: []byte("secret")}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u2",
		"exp": time.Now().Add(time.Minute).Unix(),
	}).SignedString(cfg.Secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	claims, err := ValidateToken(cfg, token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.UserID != "u2" {
		t.Fatalf("expected user id from sub, got %q", claims.UserID)
	}
}

func TestValidateRejects(t *testing.T) {
	cfg := testConfig()

	expired, err := GenerateToken(&JWTConfig{Secret: cfg.Secret, Issuer: cfg.Issuer, Audience: cfg.Audience, TTL: -time.Minute}, "u1", "alice", "")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	wrongAudience, err := GenerateToken(&JWTConfig{Secret: cfg.Secret, Issuer: cfg.Issuer, Audience: "mobile", TTL: time.Hour}, "u1", "alice", "")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	wrongSecret, err := GenerateToken(&JWTConfig{Secret: []byte("other"), Issuer: cfg.Issuer, Audience: cfg.Audience, TTL: time.Hour}, "u1", "alice", "")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	noSubject, err := GenerateToken(cfg, "", "alice", "")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{"expired", expired},
		{"wrong audience", wrongAudience},
		{"wrong secret", wrongSecret},
		{"garbage", "not-a-token"},
		{"no subject", noSubject},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ValidateToken(cfg, tt.token); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}

	if _, err := ValidateToken(cfg, noSubject); !errors.Is(err, ErrMissingSubject) {
		t.Fatalf("expected ErrMissingSubject, got %v", err)
	}
}
