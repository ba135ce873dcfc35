package krypto_test

import (
	"bytes"
	"testing"

	"github.com/kosh-project/kosh/krypto"
)

func TestLegacyMasterKeyRoundTrip(t *testing.T) {
	mk, err := krypto.NewMasterKey()
	if err != nil {
		t.Fatalf("NewMasterKey: %v", err)
	}

	wrapped, err := mk.Wrap([]byte("correct horse battery staple"))
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}

	loaded, err := krypto.LoadMasterKey(krypto.EnvelopeLegacy, wrapped, []byte("correct horse battery staple"))
	if err != nil {
		t.Fatalf("LoadMasterKey: %v", err)
	}
	if loaded.Envelope() != krypto.EnvelopeLegacy {
		t.Fatalf("expected legacy envelope, got %v", loaded.Envelope())
	}
}

func TestLegacyMasterKeyWrongPassphrase(t *testing.T) {
	mk, err := krypto.NewMasterKey()
	if err != nil {
		t.Fatalf("NewMasterKey: %v", err)
	}
	wrapped, err := mk.Wrap([]byte("right passphrase"))
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}

	_, err = krypto.LoadMasterKey(krypto.EnvelopeLegacy, wrapped, []byte("wrong passphrase"))
	if err != krypto.ErrChecksumFailure {
		t.Fatalf("expected ErrChecksumFailure, got %v", err)
	}
}

func TestLegacyRecordBodyRoundTrip(t *testing.T) {
	mk, err := krypto.NewMasterKey()
	if err != nil {
		t.Fatalf("NewMasterKey: %v", err)
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

func TestLegacyRecordBodyWrongKeyFails(t *testing.T) {
	mk1, err := krypto.NewMasterKey()
	if err != nil {
		t.Fatalf("NewMasterKey: %v", err)
	}
	mk2, err := krypto.NewMasterKey()
	if err != nil {
		t.Fatalf("NewMasterKey: %v", err)
	}

	ciphertext, err := mk1.EncryptBody([]byte("secret"))
	if err != nil {
		t.Fatalf("EncryptBody: %v", err)
	}

	if _, err := mk2.DecryptBody(ciphertext); err != krypto.ErrChecksumFailure {
		t.Fatalf("expected ErrChecksumFailure when decrypting under the wrong key, got %v", err)
	}
}

func TestLegacyRecordBodyVariousLengths(t *testing.T) {
	mk, err := krypto.NewMasterKey()
	if err != nil {
		t.Fatalf("NewMasterKey: %v", err)
	}

	// Exercise the pad/unpad boundary around multiples of the AES block size.
	for n := 0; n < 40; n++ {
		plaintext := bytes.Repeat([]byte{'x'}, n)
		ciphertext, err := mk.EncryptBody(plaintext)
		if err != nil {
			t.Fatalf("EncryptBody(len=%d): %v", n, err)
		}
		decrypted, err := mk.DecryptBody(ciphertext)
		if err != nil {
			t.Fatalf("DecryptBody(len=%d): %v", n, err)
		}
		if !bytes.Equal(plaintext, decrypted) {
			t.Fatalf("len=%d: round trip mismatch", n)
		}
	}
}

func TestMasterKeyExpire(t *testing.T) {
	mk, err := krypto.NewMasterKey()
	if err != nil {
		t.Fatalf("NewMasterKey: %v", err)
	}
	mk.Expire()

	if !mk.Expired() {
		t.Fatalf("expected Expired() to be true after Expire()")
	}
	if _, err := mk.EncryptBody([]byte("x")); err != krypto.ErrKeyExpired {
		t.Fatalf("expected ErrKeyExpired, got %v", err)
	}
	if _, err := mk.Wrap([]byte("pw")); err != krypto.ErrKeyExpired {
		t.Fatalf("expected ErrKeyExpired from Wrap, got %v", err)
	}
}
