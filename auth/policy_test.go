package auth

import (
	"context"
	"testing"
)

func withStubHIBP(t *testing.T, found bool) {
	t.Helper()
	orig := hibpLookupFn
	hibpLookupFn = func(ctx context.Context, pw string) (HIBPResult, error) {
		return HIBPResult{Found: found}, nil
	}
	t.Cleanup(func() { hibpLookupFn = orig })
}

func TestValidateMasterPasswordRejectsShort(t *testing.T) {
	withStubHIBP(t, false)
	if err := ValidateMasterPassword("Sh0rt!"); err == nil {
		t.Fatalf("expected a short password to be rejected")
	}
}

func TestValidateMasterPasswordRejectsMissingComposition(t *testing.T) {
	withStubHIBP(t, false)
	if err := ValidateMasterPassword("alllowercaseandlong12345"); err == nil {
		t.Fatalf("expected a password with no uppercase/special char to be rejected")
	}
}

func TestValidateMasterPasswordAcceptsStrongPassphrase(t *testing.T) {
	withStubHIBP(t, false)
	if err := ValidateMasterPassword("Tr0ub4dor&Xyphoid!9"); err != nil {
		t.Fatalf("expected a strong passphrase to pass, got %v", err)
	}
}

func TestValidateMasterPasswordRejectsKnownBreach(t *testing.T) {
	withStubHIBP(t, true)
	if err := ValidateMasterPassword("Tr0ub4dor&Xyphoid!9"); err == nil {
		t.Fatalf("expected a breached password to be rejected")
	}
}
