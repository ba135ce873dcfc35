package krypto

import (
	"crypto/aes"
	"crypto/sha1"
	"crypto/sha256"
	"errors"
)

// Legacy K05Hv0 crypto. This reproduces, byte for byte, the on-disk envelope of the
// original koshdb format: a raw AES block cipher used in ECB mode, XOR pre-whitening
// with a repeating salt, SHA-1 as the inner record-body integrity tag, and a single
// un-iterated SHA-256 hash of the passphrase as the key-wrap material. None of this is
// how a new design would choose to do things; it is kept only so that existing K05Hv0
// stores continue to open. See NewMasterKeyV1 for the envelope a new store should use.

const aesBlockSize = aes.BlockSize // 16

// ecbEncrypt runs AES in ECB mode over data, which must be a whole number of blocks.
// crypto/cipher deliberately has no ECB mode, since it leaks block-level plaintext
// structure; it is implemented here only for on-disk compatibility with K05Hv0.
func ecbEncrypt(key, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(data)%aesBlockSize != 0 {
		return nil, errors.New("ecb: data is not a multiple of the block size")
	}
	out := make([]byte, len(data))
	for off := 0; off < len(data); off += aesBlockSize {
		block.Encrypt(out[off:off+aesBlockSize], data[off:off+aesBlockSize])
	}
	return out, nil
}

func ecbDecrypt(key, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(data)%aesBlockSize != 0 {
		return nil, errors.New("ecb: data is not a multiple of the block size")
	}
	out := make([]byte, len(data))
	for off := 0; off < len(data); off += aesBlockSize {
		block.Decrypt(out[off:off+aesBlockSize], data[off:off+aesBlockSize])
	}
	return out, nil
}

// extendXOR XORs data against salt, cyclically repeating salt as needed, returning a
// new slice the same length as data.
func extendXOR(data, salt []byte) []byte {
	if len(salt) == 0 {
		out := make([]byte, len(data))
		copy(out, data)
		return out
	}
	out := make([]byte, len(data))
	for i := range data {
		out[i] = data[i] ^ salt[i%len(salt)]
	}
	return out
}

// padTail appends the PKCS-like trailer koshdb uses: n zero bytes followed by a single
// byte valued n+1, bringing the total length to the next multiple of aesBlockSize. Unlike
// PKCS#7, the pad value is not repeated across the whole pad run, only the final byte
// carries it; this is still enough to recover n on unpad since every byte before it is
// zero by construction, so it is the tail byte itself that is trusted.
func padTail(data []byte) []byte {
	n := aesBlockSize - (len(data)+1)%aesBlockSize
	if n == aesBlockSize {
		n = 0
	}
	padded := make([]byte, len(data)+n+1)
	copy(padded, data)
	padded[len(padded)-1] = byte(n + 1)
	return padded
}

// unpadTail strips padTail's trailer, returning an error if the tail byte is out of the
// valid 1..255 range or longer than the buffer.
func unpadTail(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("unpad: empty buffer")
	}
	tail := int(data[len(data)-1])
	if tail < 1 || tail > 255 || tail > len(data) {
		return nil, ErrChecksumFailure
	}
	return data[:len(data)-tail], nil
}

// legacyWrapMasterKey implements spec §4.1 "Derivation & wrap (create)": given a fresh
// 256-bit record key K and a passphrase, produces the base64-ready bytes C ∥ S that are
// persisted after the `k:` tag. Grounded on koshdb.py's _masterKey.encMasterKey.
func legacyWrapMasterKey(key, passphrase []byte) (wrapped []byte, err error) {
	salt := make([]byte, 32)
	if _, err := randRead(salt); err != nil {
		return nil, err
	}
	h := sha256.Sum256(passphrase)
	w := extendXOR(h[:], salt) // W = H xor S, both 32 bytes so no cycling occurs
	t := sha256.Sum256(key)
	plain := append(append([]byte{}, key...), t[:]...) // K ∥ T, 64 bytes = 4 AES blocks
	cipherText, err := ecbEncrypt(w, plain)
	if err != nil {
		return nil, err
	}
	return append(cipherText, salt...), nil
}

// legacyUnwrapMasterKey implements spec §4.1 "Unwrap": given the persisted C ∥ S bytes
// and a candidate passphrase, recovers K or fails with ErrChecksumFailure.
func legacyUnwrapMasterKey(wrapped, passphrase []byte) (key []byte, err error) {
	if len(wrapped) != 64+32 {
		return nil, ErrChecksumFailure
	}
	cipherText, salt := wrapped[:64], wrapped[64:]
	h := sha256.Sum256(passphrase)
	w := extendXOR(h[:], salt)
	plain, err := ecbDecrypt(w, cipherText)
	if err != nil {
		return nil, err
	}
	k, t := plain[:32], plain[32:]
	want := sha256.Sum256(k)
	if !hmacEqual(want[:], t) {
		return nil, ErrChecksumFailure
	}
	out := make([]byte, 32)
	copy(out, k)
	return out, nil
}

// legacyEncryptBody implements spec §4.1 "Record-body encryption" under record key K.
// Grounded on koshdb.py's passEntry/_masterKey.encrypt.
func legacyEncryptBody(key, plaintext []byte) ([]byte, error) {
	salt := make([]byte, 32)
	if _, err := randRead(salt); err != nil {
		return nil, err
	}
	sum := sha1.Sum(plaintext)
	pPrime := extendXOR(plaintext, salt)
	payload := append(append(append([]byte{}, pPrime...), salt...), sum[:]...)
	padded := padTail(payload)
	return ecbEncrypt(key, padded)
}

// legacyDecryptBody implements spec §4.1 "Decryption" under record key K.
func legacyDecryptBody(key, ciphertext []byte) ([]byte, error) {
	padded, err := ecbDecrypt(key, ciphertext)
	if err != nil {
		return nil, err
	}
	payload, err := unpadTail(padded)
	if err != nil {
		return nil, err
	}
	if len(payload) < 20+32 {
		return nil, ErrChecksumFailure
	}
	sum := payload[len(payload)-20:]
	salt := payload[len(payload)-20-32 : len(payload)-20]
	pPrime := payload[:len(payload)-20-32]
	plaintext := extendXOR(pPrime, salt)
	want := sha1.Sum(plaintext)
	if !hmacEqual(want[:], sum) {
		return nil, ErrChecksumFailure
	}
	return plaintext, nil
}
