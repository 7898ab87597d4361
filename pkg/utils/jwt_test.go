//go:build !integration

package utils

import (
	"testing"
	"time"
)

func TestGenerateAndParseJWT(t *testing.T) {
	SetJWTConfig("test-secret", "reply-bandit")

	tok, err := GenerateJWT("42", "ADMIN", time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}
	claims, err := ParseJWT(tok)
	if err != nil {
		t.Fatalf("ParseJWT: %v", err)
	}
	if claims.UserID != "42" || claims.Role != "ADMIN" {
		t.Fatalf("claims=%+v", claims)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil || !exp.After(time.Now()) {
		t.Fatalf("expiration=%v err=%v", exp, err)
	}
}

func TestParseJWT_Rejects(t *testing.T) {
	SetJWTConfig("test-secret", "reply-bandit")
	expired, err := GenerateJWT("1", "USER", -time.Minute)
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}

	SetJWTConfig("other-secret", "reply-bandit")
	foreign, err := GenerateJWT("1", "USER", time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}

	SetJWTConfig("test-secret", "reply-bandit")
	for name, tok := range map[string]string{
		"expired":      expired,
		"wrong secret": foreign,
		"garbage":      "not-a-token",
	} {
		if _, err := ParseJWT(tok); err == nil {
			t.Errorf("%s: expected parse error", name)
		}
	}
}
