package krypto_test

import (
	"bytes"
	"testing"

	"github.com/kosh-project/kosh/krypto"
)

func TestModernMasterKeyRoundTrip(t *testing.T) {
	params := krypto.DefaultArgon2Params()
	mk, err := krypto.NewMasterKeyV1(params)
	if err != nil {
		t.Fatalf("NewMasterKeyV1: %v", err)
	}

	wrapped, err := mk.Wrap([]byte("a modern passphrase"))
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}

	loaded, err := krypto.LoadMasterKey(krypto.EnvelopeModern, wrapped, []byte("a modern passphrase"))
	if err != nil {
		t.Fatalf("LoadMasterKey: %v", err)
	}
	if loaded.Envelope() != krypto.EnvelopeModern {
		t.Fatalf("expected modern envelope, got %v", loaded.Envelope())
	}
}

func TestModernMasterKeyWrongPassphrase(t *testing.T) {
	mk, err := krypto.NewMasterKeyV1(krypto.DefaultArgon2Params())
	if err != nil {
		t.Fatalf("NewMasterKeyV1: %v", err)
	}
	wrapped, err := mk.Wrap([]byte("right"))
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}

	if _, err := krypto.LoadMasterKey(krypto.EnvelopeModern, wrapped, []byte("wrong")); err != krypto.ErrChecksumFailure {
		t.Fatalf("expected ErrChecksumFailure, got %v", err)
	}
}

func TestModernRecordBodyRoundTrip(t *testing.T) {
	mk, err := krypto.NewMasterKeyV1(krypto.DefaultArgon2Params())
	if err != nil {
		t.Fatalf("NewMasterKeyV1: %v", err)
	}

	plaintext := []byte(`["example.com", null, {"Username":"alice","Password":"hunter2"}, {}]`)
	ciphertext, err := mk.EncryptBody(plaintext)
	if err != nil {
		t.Fatalf("EncryptBody: %v", err)
	}

	decrypted, err := mk.DecryptBody(ciphertext)
	if err != nil {
		t.Fatalf("DecryptBody: %v", err)
	}
	if !bytes.Equal(plaintext, decrypted) {
		t.Fatalf("round trip mismatch: got %q, want %q", decrypted, plaintext)
	}
}

func TestModernRecordBodyTamperedCiphertextFails(t *testing.T) {
	mk, err := krypto.NewMasterKeyV1(krypto.DefaultArgon2Params())
	if err != nil {
		t.Fatalf("NewMasterKeyV1: %v", err)
	}

	ciphertext, err := mk.EncryptBody([]byte("secret"))
	if err != nil {
		t.Fatalf("EncryptBody: %v", err)
	}
	tampered := append([]byte{}, ciphertext...)
	tampered[len(tampered)-1] ^= 0xFF

	if _, err := mk.DecryptBody(tampered); err != krypto.ErrChecksumFailure {
		t.Fatalf("expected ErrChecksumFailure for tampered ciphertext, got %v", err)
	}
}

func TestTwoEnvelopesAreNotInterchangeable(t *testing.T) {
	mk, err := krypto.NewMasterKey()
	if err != nil {
		t.Fatalf("NewMasterKey: %v", err)
	}
	wrapped, err := mk.Wrap([]byte("pw"))
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}

	if _, err := krypto.LoadMasterKey(krypto.EnvelopeModern, wrapped, []byte("pw")); err == nil {
		t.Fatalf("expected loading a legacy blob under the modern envelope to fail")
	}
}
