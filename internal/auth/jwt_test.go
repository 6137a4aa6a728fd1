package auth

import (
	"testing"
	"time"
)

func TestGenerateAndValidateToken(t *testing.T) {
	issuer, err := NewTokenIssuer("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenIssuer failed: %v", err)
	}

	token, err := issuer.GenerateToken("client-1")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	claims, err := issuer.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims.ClientID != "client-1" {
		t.Errorf("Expected client ID %q, got %q", "client-1", claims.ClientID)
	}
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	issuer, _ := NewTokenIssuer("test-secret", time.Hour)
	other, _ := NewTokenIssuer("other-secret", time.Hour)

	token, err := issuer.GenerateToken("client-1")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	if _, err := other.ValidateToken(token); err == nil {
		t.Error("Expected validation failure for token signed with another secret")
	}
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	issuer, _ := NewTokenIssuer("test-secret", -time.Minute)

	token, err := issuer.GenerateToken("client-1")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	if _, err := issuer.ValidateToken(token); err == nil {
		t.Error("Expected validation failure for expired token")
	}
}

func TestValidateRejectsGarbage(t *testing.T) {
	issuer, _ := NewTokenIssuer("test-secret", time.Hour)

	if _, err := issuer.ValidateToken("not-a-token"); err == nil {
		t.Error("Expected validation failure for malformed token")
	}
}

func TestEmptySecretRejected(t *testing.T) {
	if _, err := NewTokenIssuer("", time.Hour); err == nil {
		t.Error("Expected error for empty secret")
	}
}
