package krypto

import (
	"encoding/binary"
)

// Modern K05Hv1 crypto, the "versioned alternative" spec §4.1 explicitly invites in
// place of the un-iterated SHA-256 passphrase hash and raw AES-ECB used by K05Hv0.
// Passphrases are stretched with Argon2id (kdf.go) instead of hashed once; both the
// MasterKey wrap and record bodies are sealed with AES-256-GCM (aead.go) instead of
// ECB; record bodies additionally derive a fresh per-record subkey via HKDF (hkdf.go)
// so a single GCM key is never reused across every record in the file.

const modernWrapAAD = "kosh-k05hv1-masterkey"

// modernWrapMasterKey serializes: argon2 params (time, memoryMB, parallelism as
// big-endian uint32) ∥ salt(12) ∥ nonce(12) ∥ AES-GCM(wrappingKey, key).
func modernWrapMasterKey(key, passphrase []byte, params Argon2Params) ([]byte, error) {
	salt, err := NewRandomSalt(SaltLengthBytes)
	if err != nil {
		return nil, err
	}
	wrappingKey, err := DeriveKeyArgon2id(passphrase, salt, params)
	if err != nil {
		return nil, err
	}
	nonce, ciphertext, err := EncryptAESGCM(wrappingKey, key, []byte(modernWrapAAD))
	if err != nil {
		return nil, err
	}

	header := make([]byte, 12)
	binary.BigEndian.PutUint32(header[0:4], params.Time)
	binary.BigEndian.PutUint32(header[4:8], params.MemoryMB)
	binary.BigEndian.PutUint32(header[8:12], uint32(params.Parallelism))

	out := make([]byte, 0, len(header)+len(salt)+len(nonce)+len(ciphertext))
	out = append(out, header...)
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	return out, nil
}

func modernUnwrapMasterKey(wrapped, passphrase []byte) (key []byte, params Argon2Params, err error) {
	if len(wrapped) < 12+SaltLengthBytes+gcmNonceSize {
		return nil, Argon2Params{}, ErrChecksumFailure
	}
	header := wrapped[:12]
	rest := wrapped[12:]
	salt := rest[:SaltLengthBytes]
	rest = rest[SaltLengthBytes:]
	nonce := rest[:gcmNonceSize]
	ciphertext := rest[gcmNonceSize:]

	parallelism := binary.BigEndian.Uint32(header[8:12])
	params = Argon2Params{
		Time:        binary.BigEndian.Uint32(header[0:4]),
		MemoryMB:    binary.BigEndian.Uint32(header[4:8]),
		Parallelism: uint8(parallelism),
		SaltLen:     SaltLengthBytes,
		KeyLen:      32,
	}
	// A blob from another envelope decodes to arbitrary parameters here; values outside
	// these bounds are rejected before Argon2 runs on them.
	if params.Time == 0 || params.Time > 64 || params.MemoryMB == 0 || params.MemoryMB > 4096 ||
		parallelism == 0 || parallelism > 255 {
		return nil, Argon2Params{}, ErrChecksumFailure
	}

	wrappingKey, err := DeriveKeyArgon2id(passphrase, salt, params)
	if err != nil {
		return nil, Argon2Params{}, err
	}
	key, err = DecryptAESGCM(wrappingKey, nonce, ciphertext, []byte(modernWrapAAD))
	if err != nil {
		return nil, Argon2Params{}, err
	}
	return key, params, nil
}

const (
	modernRecordAAD  = "kosh-k05hv1-record"
	modernRecordInfo = "kosh-k05hv1-record-subkey"
	modernSubkeySalt = 16
)

// modernEncryptBody derives a one-off subkey via HKDF(masterKey, salt, info) and seals
// plaintext under it with AES-256-GCM. Output: salt(16) ∥ nonce(12) ∥ ciphertext.
func modernEncryptBody(masterKey, plaintext []byte) ([]byte, error) {
	salt := make([]byte, modernSubkeySalt)
	if _, err := randRead(salt); err != nil {
		return nil, err
	}
	subkey, err := HKDFSHA256(masterKey, salt, []byte(modernRecordInfo), 32)
	if err != nil {
		return nil, err
	}
	nonce, ciphertext, err := EncryptAESGCM(subkey, plaintext, []byte(modernRecordAAD))
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(salt)+len(nonce)+len(ciphertext))
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	return out, nil
}

func modernDecryptBody(masterKey, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < modernSubkeySalt+gcmNonceSize {
		return nil, ErrChecksumFailure
	}
	salt := ciphertext[:modernSubkeySalt]
	rest := ciphertext[modernSubkeySalt:]
	nonce := rest[:gcmNonceSize]
	body := rest[gcmNonceSize:]

	subkey, err := HKDFSHA256(masterKey, salt, []byte(modernRecordInfo), 32)
	if err != nil {
		return nil, err
	}
	return DecryptAESGCM(subkey, nonce, body, []byte(modernRecordAAD))
}
