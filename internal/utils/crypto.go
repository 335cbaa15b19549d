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

// encryptedPrefix marks values produced by EncryptSecret
const encryptedPrefix = "enc:"

func deriveKey(secret string) []byte {
	sum := sha256.Sum256([]byte(secret))
	return sum[:]
}

func newGCM(secret string) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveKey(secret))
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// EncryptSecret encrypts plaintext with AES-GCM; an empty secret leaves the value untouched
func EncryptSecret(plaintext, secret string) (string, error) {
	if secret == "" || plaintext == "" || IsEncrypted(plaintext) {
		return plaintext, nil
	}

	gcm, err := newGCM(secret)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return encryptedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptSecret reverses EncryptSecret; values without the prefix are returned as-is
func DecryptSecret(value, secret string) (string, error) {
	if !IsEncrypted(value) {
		return value, nil
	}
	if secret == "" {
		return "", fmt.Errorf("缺少解密密钥")
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, encryptedPrefix))
	if err != nil {
		return "", err
	}

	gcm, err := newGCM(secret)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(raw) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, sealed := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// IsEncrypted reports whether value carries the encrypted prefix
func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, encryptedPrefix)
}

// MaskSecret keeps the last four characters for display
func MaskSecret(value string) string {
	if value == "" {
		return ""
	}
	r := []rune(value)
	if len(r) <= 4 {
		return "****"
	}
	return strings.Repeat("*", 8) + string(r[len(r)-4:])
}
