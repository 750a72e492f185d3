// internal/utils/crypto.go
package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
)

// EncryptedPrefix marks a value produced by SealSecret.
const EncryptedPrefix = "enc:"

// deriveKey stretches an arbitrary passphrase to an AES-256 key.
func deriveKey(passphrase string) []byte {
	sum := sha256.Sum256([]byte(passphrase))
	return sum[:]
}

func newGCM(passphrase string) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveKey(passphrase))
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Encrypt encrypts the plaintext using AES-GCM encryption
func Encrypt(plaintext, passphrase string) (string, error) {
	gcm, err := newGCM(passphrase)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt decrypts the ciphertext using AES-GCM decryption
func Decrypt(ciphertext, passphrase string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", err
	}

	gcm, err := newGCM(passphrase)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(raw) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, body := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, body, nil)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// SealSecret encrypts value for storage on disk. Empty values and an empty
// passphrase leave the value untouched.
func SealSecret(value, passphrase string) (string, error) {
	if value == "" || passphrase == "" {
		return value, nil
	}
	enc, err := Encrypt(value, passphrase)
	if err != nil {
		return "", err
	}
	return EncryptedPrefix + enc, nil
}

// OpenSecret reverses SealSecret. Plain values pass through.
func OpenSecret(value, passphrase string) (string, error) {
	if !strings.HasPrefix(value, EncryptedPrefix) {
		return value, nil
	}
	if passphrase == "" {
		return "", fmt.Errorf("encrypted value but no passphrase configured")
	}
	return Decrypt(strings.TrimPrefix(value, EncryptedPrefix), passphrase)
}
