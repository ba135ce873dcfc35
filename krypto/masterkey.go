// Package krypto implements the on-disk cryptographic envelopes kosh uses to wrap its
// record key and encrypt individual record bodies. Two envelopes are supported: the
// legacy K05Hv0 envelope (AES-ECB, XOR whitening, SHA-1 inner MAC — see legacy.go, kept
// for compatibility with existing stores) and the K05Hv1 envelope (Argon2id, AES-GCM,
// HKDF — see modern.go, used for newly created stores).
package krypto

import (
	"crypto/hmac"
	"crypto/rand"
	"errors"
	"sync"
)

var randRead = rand.Read

func hmacEqual(a, b []byte) bool {
	return hmac.Equal(a, b)
}

// ErrChecksumFailure is returned when an envelope fails to authenticate a decrypted
// payload, whether because the passphrase was wrong or the bytes were corrupted. Both
// envelopes collapse every integrity failure into this single sentinel, matching
// koshdb's ChecksumFailure: a caller has no way (and no need) to distinguish "bad
// password" from "bad data" before re-prompting.
var ErrChecksumFailure = errors.New("krypto: checksum failure")

// ErrKeyExpired is returned by Wrap/EncryptBody/DecryptBody once a MasterKey's Expire method
// has been called. The zeroed key material is gone; the caller must unlock again.
var ErrKeyExpired = errors.New("krypto: master key expired")

// Envelope selects which on-disk format a MasterKey or record body is wrapped in.
type Envelope int

const (
	// EnvelopeLegacy is the K05Hv0 format: AES-ECB + XOR whitening + SHA-1/SHA-256.
	EnvelopeLegacy Envelope = iota
	// EnvelopeModern is the K05Hv1 format: Argon2id + AES-GCM + HKDF.
	EnvelopeModern
)

// MasterKey holds an unwrapped 256-bit record key K in memory, together with enough
// state to re-wrap it for persistence and to encrypt/decrypt record bodies under it.
// It is the in-memory counterpart of a `k:` store line.
//
// A MasterKey is safe to use from one goroutine at a time; Expire may be called
// concurrently with an in-flight Encrypt/Decrypt, in which case the in-flight call may
// either complete or observe ErrKeyExpired, but will never observe partially-zeroed key
// material (key access is serialized by mu).
type MasterKey struct {
	mu       sync.Mutex
	env      Envelope
	key      []byte // nil once expired
	argon    Argon2Params
	argonSet bool
}

// NewMasterKey generates a fresh 256-bit record key under the legacy K05Hv0 envelope.
// Existing stores created before kosh always use this envelope; see NewMasterKeyV1 for
// new stores.
func NewMasterKey() (*MasterKey, error) {
	key := make([]byte, 32)
	if _, err := randRead(key); err != nil {
		return nil, err
	}
	return &MasterKey{env: EnvelopeLegacy, key: key}, nil
}

// NewMasterKeyV1 generates a fresh 256-bit record key under the K05Hv1 envelope, using
// Argon2id parameters p (DefaultArgon2Params if the zero value is passed).
func NewMasterKeyV1(p Argon2Params) (*MasterKey, error) {
	if p.KeyLen == 0 {
		p = DefaultArgon2Params()
	}
	key := make([]byte, 32)
	if _, err := randRead(key); err != nil {
		return nil, err
	}
	return &MasterKey{env: EnvelopeModern, key: key, argon: p, argonSet: true}, nil
}

// LoadMasterKey unwraps a persisted `k:` blob under the given envelope, returning
// ErrChecksumFailure if passphrase does not unlock it. env is determined by the Store
// from the file's magic header, not by inspecting the blob itself: both envelopes reuse
// the same `k:` tag prefix.
func LoadMasterKey(env Envelope, wrapped []byte, passphrase []byte) (*MasterKey, error) {
	switch env {
	case EnvelopeLegacy:
		key, err := legacyUnwrapMasterKey(wrapped, passphrase)
		if err != nil {
			return nil, err
		}
		return &MasterKey{env: env, key: key}, nil
	case EnvelopeModern:
		key, params, err := modernUnwrapMasterKey(wrapped, passphrase)
		if err != nil {
			return nil, err
		}
		return &MasterKey{env: env, key: key, argon: params, argonSet: true}, nil
	default:
		return nil, errors.New("krypto: unknown envelope")
	}
}

// Envelope reports which on-disk format this key was created or loaded under.
func (mk *MasterKey) Envelope() Envelope {
	return mk.env
}

// Wrap re-serializes the MasterKey for persistence as a `k:` line, under the given
// passphrase. Fails with ErrKeyExpired if Expire has already been called.
func (mk *MasterKey) Wrap(passphrase []byte) ([]byte, error) {
	mk.mu.Lock()
	defer mk.mu.Unlock()
	if mk.key == nil {
		return nil, ErrKeyExpired
	}
	switch mk.env {
	case EnvelopeLegacy:
		return legacyWrapMasterKey(mk.key, passphrase)
	case EnvelopeModern:
		params := mk.argon
		if !mk.argonSet {
			params = DefaultArgon2Params()
		}
		return modernWrapMasterKey(mk.key, passphrase, params)
	default:
		return nil, errors.New("krypto: unknown envelope")
	}
}

// EncryptBody encrypts a record body under this MasterKey's record key, for persistence
// as a `p:` line.
func (mk *MasterKey) EncryptBody(plaintext []byte) ([]byte, error) {
	mk.mu.Lock()
	defer mk.mu.Unlock()
	if mk.key == nil {
		return nil, ErrKeyExpired
	}
	switch mk.env {
	case EnvelopeLegacy:
		return legacyEncryptBody(mk.key, plaintext)
	case EnvelopeModern:
		return modernEncryptBody(mk.key, plaintext)
	default:
		return nil, errors.New("krypto: unknown envelope")
	}
}

// DecryptBody attempts to decrypt a `p:` line body under this MasterKey. Returns
// ErrChecksumFailure if this key does not own the record (the Store tries every loaded
// key in turn, per spec §4.3 Open).
func (mk *MasterKey) DecryptBody(ciphertext []byte) ([]byte, error) {
	mk.mu.Lock()
	defer mk.mu.Unlock()
	if mk.key == nil {
		return nil, ErrKeyExpired
	}
	switch mk.env {
	case EnvelopeLegacy:
		return legacyDecryptBody(mk.key, ciphertext)
	case EnvelopeModern:
		return modernDecryptBody(mk.key, ciphertext)
	default:
		return nil, errors.New("krypto: unknown envelope")
	}
}

// Expire zeroes the in-memory record key and marks this MasterKey unusable. Every
// subsequent Wrap/EncryptBody/DecryptBody call returns ErrKeyExpired. This is how a UI
// inactivity timer (see store.WithAutoExpire) forces re-unlock without retaining secret
// material in the process image any longer than necessary.
func (mk *MasterKey) Expire() {
	mk.mu.Lock()
	defer mk.mu.Unlock()
	for i := range mk.key {
		mk.key[i] = 0
	}
	mk.key = nil
}

// Expired reports whether Expire has been called.
func (mk *MasterKey) Expired() bool {
	mk.mu.Lock()
	defer mk.mu.Unlock()
	return mk.key == nil
}
