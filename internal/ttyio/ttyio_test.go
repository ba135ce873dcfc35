package ttyio_test

import (
	"strings"
	"testing"

	"github.com/kosh-project/kosh/internal/ttyio"
)

func TestReadLineReturnsTrimmedLine(t *testing.T) {
	r := ttyio.NewReaderFrom(strings.NewReader("site-name\n"))
	line, err := r.ReadLine("name: ")
	if err != nil {
		t.Fatalf("ReadLine: %v", err)
	}
	if line != "site-name" {
		t.Fatalf("expected %q, got %q", "site-name", line)
	}
}

func TestReadLineAtEOFReturnsCancelled(t *testing.T) {
	r := ttyio.NewReaderFrom(strings.NewReader(""))
	_, err := r.ReadLine("name: ")
	if err != ttyio.ErrCancelled {
		t.Fatalf("expected ErrCancelled at EOF, got %v", err)
	}
}

func TestZeroOverwritesBuffer(t *testing.T) {
	b := []byte("secret")
	ttyio.Zero(b)
	for _, c := range b {
		if c != 0 {
			t.Fatalf("expected all bytes zeroed, got %v", b)
		}
	}
}
