package dbmanager

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

// SchemaEncryption seals cached schema payloads with AES-256-GCM.
type SchemaEncryption struct {
	aead cipher.AEAD
}

func NewSchemaEncryption(encryptionKey string) (*SchemaEncryption, error) {
	if len(encryptionKey) != 32 {
		return nil, fmt.Errorf("encryption key must be exactly 32 bytes")
	}

	block, err := aes.NewCipher([]byte(encryptionKey))
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &SchemaEncryption{aead: aead}, nil
}

// Encrypt returns base64(nonce || ciphertext).
func (se *SchemaEncryption) Encrypt(data []byte) (string, error) {
	nonce := make([]byte, se.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := se.aead.Seal(nonce, nonce, data, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (se *SchemaEncryption) Decrypt(encodedData string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(encodedData)
	if err != nil {
		return nil, err
	}

	nonceSize := se.aead.NonceSize()
	if len(data) < nonceSize {
		return nil, fmt.Errorf("data too short")
	}

	return se.aead.Open(nil, data[:nonceSize], data[nonceSize:], nil)
}
