package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
)

// Key material at rest in the secret store can be encrypted with a
// master key so that the store operator never sees raw PEM bytes.
// Format: [12-byte nonce][ciphertext][16-byte auth tag], AES-256-GCM.
//
// The master key is derived from arbitrary key material with SHA-256,
// so operators can supply a passphrase or raw bytes.

// DeriveMasterKey turns arbitrary key material into a 32-byte AES key.
func DeriveMasterKey(material []byte) []byte {
	sum := sha256.Sum256(material)
	return sum[:]
}

// EncryptWithMasterKey encrypts plaintext (typically a PEM-encoded
// private key) using AES-256-GCM with a random nonce per call.
func EncryptWithMasterKey(masterKey, plaintext []byte) ([]byte, error) {
	gcm, err := newGCM(masterKey)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("cryptox: failed to generate nonce: %w", err)
	}

	// Seal appends ciphertext and auth tag to the nonce prefix.
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// DecryptWithMasterKey reverses EncryptWithMasterKey.
func DecryptWithMasterKey(masterKey, encrypted []byte) ([]byte, error) {
	gcm, err := newGCM(masterKey)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(encrypted) < nonceSize {
		return nil, errors.New("cryptox: ciphertext too short")
	}

	nonce, ciphertext := encrypted[:nonceSize], encrypted[nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("cryptox: decryption failed: %w", err)
	}

	return plaintext, nil
}

func newGCM(masterKey []byte) (cipher.AEAD, error) {
	if len(masterKey) != 32 {
		return nil, errors.New("cryptox: master key must be 32 bytes (use DeriveMasterKey)")
	}

	block, err := aes.NewCipher(masterKey)
	if err != nil {
		return nil, fmt.Errorf("cryptox: failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cryptox: failed to create GCM: %w", err)
	}

	return gcm, nil
}
