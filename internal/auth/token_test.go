package auth

import (
	"errors"
	"testing"
	"time"
)

func setTestSecret(t *testing.T) {
	t.Helper()
	t.Setenv(secretEnvVariable, "test-secret")
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)
}

func TestGenerateAndParseToken(t *testing.T) {
	setTestSecret(t)

	token, err := GenerateToken("user-42", "SGT Jane Doe", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := ParseAndValidate(token)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if claims.Subject != "user-42" {
		t.Fatalf("unexpected subject: %s", claims.Subject)
	}
	if claims.Name != "SGT Jane Doe" {
		t.Fatalf("display name not carried: %s", claims.Name)
	}
	if claims.Issuer != issuer {
		t.Fatalf("unexpected issuer: %s", claims.Issuer)
	}
	if claims.ID == "" {
		t.Fatal("token id missing")
	}
}

func TestGenerateTokenValidation(t *testing.T) {
	setTestSecret(t)

	if _, err := GenerateToken("  ", "x", time.Hour); err == nil {
		t.Fatal("expected error for blank user id")
	}
	if _, err := GenerateToken("u1", "x", 0); err == nil {
		t.Fatal("expected error for zero ttl")
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	setTestSecret(t)

	for _, token := range []string{"", "   ", "not.a.jwt", "a.b"} {
		if _, err := ParseAndValidate(token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("expected ErrInvalidToken for %q, got %v", token, err)
		}
	}
}

func TestParseRejectsExpired(t *testing.T) {
	setTestSecret(t)

	token, err := GenerateToken("u1", "x", time.Nanosecond)
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(10 * time.Millisecond)
	if _, err := ParseAndValidate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestParseRejectsForeignSignature(t *testing.T) {
	t.Setenv(secretEnvVariable, "secret-one")
	ResetSecretForTests()
	token, err := GenerateToken("u1", "x", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	t.Setenv(secretEnvVariable, "secret-two")
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)
	if _, err := ParseAndValidate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for foreign signature, got %v", err)
	}
}

func TestMissingSecret(t *testing.T) {
	t.Setenv(secretEnvVariable, "")
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)

	if _, err := GenerateToken("u1", "x", time.Hour); !errors.Is(err, errMissingSecret) {
		t.Fatalf("expected errMissingSecret, got %v", err)
	}
}
