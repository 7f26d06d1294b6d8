package auth

import (
	"strings"
	"testing"
)

func TestHashAndVerifySecret(t *testing.T) {
	hash, err := HashSecret("correct horse battery staple")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$") {
		t.Fatalf("unexpected hash format: %s", hash)
	}
	if !VerifySecret(hash, "correct horse battery staple") {
		t.Fatal("valid secret did not verify")
	}
	if VerifySecret(hash, "wrong") {
		t.Fatal("wrong secret verified")
	}
}

func TestHashSecretSalted(t *testing.T) {
	a, err := HashSecret("1234")
	if err != nil {
		t.Fatal(err)
	}
	b, err := HashSecret("1234")
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatal("two hashes of the same secret must differ by salt")
	}
	if !VerifySecret(a, "1234") || !VerifySecret(b, "1234") {
		t.Fatal("both hashes must verify")
	}
}

func TestVerifySecretMalformed(t *testing.T) {
	for _, stored := range []string{
		"",
		"plaintext",
		"$bcrypt$v=19$m=65536,t=2,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$not-params$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=65536,t=2,p=1$!!!$aGFzaA",
		"$argon2id$v=19$m=65536,t=2,p=1$c2FsdA$!!!",
	} {
		if VerifySecret(stored, "1234") {
			t.Fatalf("malformed hash verified: %q", stored)
		}
	}
}
