//go:build !darwin

package biogate_test

import (
	"testing"

	"github.com/kosh-project/kosh/internal/biogate"
)

func TestStubStatusReportsDisabled(t *testing.T) {
	state, err := biogate.Status("/tmp/whatever")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if state.Enabled {
		t.Fatalf("expected Enabled=false on an unsupported platform")
	}
}

func TestStubEnableAndAuthenticateAreUnsupported(t *testing.T) {
	if err := biogate.Enable("/tmp/whatever"); err != biogate.ErrUnsupported {
		t.Fatalf("expected ErrUnsupported from Enable, got %v", err)
	}
	if err := biogate.Authenticate("/tmp/whatever", "test"); err != biogate.ErrUnsupported {
		t.Fatalf("expected ErrUnsupported from Authenticate, got %v", err)
	}
}
