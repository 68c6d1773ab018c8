package credentials

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	blobPrefix = "v1:"
	hkdfInfo   = "flowseed:credential-data:v1"
)

var ErrMalformedBlob = errors.New("malformed credential blob")

// Cipher seals credential field maps into the opaque blob stored on credential rows.
type Cipher struct {
	key []byte
}

// NewCipher derives a 32-byte XChaCha20-Poly1305 key from secret with HKDF-SHA256.
func NewCipher(secret string) (*Cipher, error) {
	if secret == "" {
		return nil, errors.New("credential secret is empty")
	}
	reader := hkdf.New(sha256.New, []byte(secret), nil, []byte(hkdfInfo))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("derive credential key: %w", err)
	}
	return &Cipher{key: key}, nil
}

// Encrypt seals fields with a fresh random nonce.
func (c *Cipher) Encrypt(fields map[string]string) (string, error) {
	plaintext, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("marshal credential fields: %w", err)
	}
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", fmt.Errorf("create aead: %w", err)
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, plaintext, nil)
	return blobPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a blob produced by Encrypt with the same secret.
func (c *Cipher) Decrypt(blob string) (map[string]string, error) {
	if !strings.HasPrefix(blob, blobPrefix) {
		return nil, ErrMalformedBlob
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(blob, blobPrefix))
	if err != nil {
		return nil, fmt.Errorf("decode credential blob: %w", err)
	}
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return nil, fmt.Errorf("create aead: %w", err)
	}
	if len(raw) < aead.NonceSize() {
		return nil, ErrMalformedBlob
	}
	nonce, sealed := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("open credential blob: %w", err)
	}
	fields := make(map[string]string)
	if err := json.Unmarshal(plaintext, &fields); err != nil {
		return nil, fmt.Errorf("unmarshal credential fields: %w", err)
	}
	return fields, nil
}
