// Package cipher seals chat message bodies with AES-256-GCM.
//
// Every client derives the same key from one shared secret, so anyone holding
// a build can read every message. There are no per-user or per-room keys and
// no rotation. Treat this as obfuscation in transit, not as a security boundary.
package cipher

import (
	"crypto/aes"
	stdcipher "crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"unicode/utf8"
)

// SharedSecret is the secret every existing client build derives its key from.
const SharedSecret = "thisappisnotinproductionyet"

const (
	nonceSize = 12
	tagSize   = 16

	// minTokenLen is the encoded length of nonce+tag with an empty plaintext.
	minTokenLen = (nonceSize + tagSize) * 4 / 3
)

var (
	ErrNotCiphertext = errors.New("not a ciphertext token")
	ErrDecrypt       = errors.New("decryption failed")
)

// Cipher encrypts and decrypts message bodies with a key derived from a secret.
type Cipher struct {
	secret string
	random io.Reader

	once sync.Once
	aead stdcipher.AEAD
	err  error
}

// Option customises a Cipher.
type Option func(*Cipher)

// WithRandom replaces the nonce source.
func WithRandom(r io.Reader) Option {
	return func(c *Cipher) { c.random = r }
}

// New returns a cipher keyed by SHA-256(secret). The key is derived on first use.
func New(secret string, opts ...Option) *Cipher {
	c := &Cipher{secret: secret, random: rand.Reader}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var (
	defaultOnce   sync.Once
	defaultCipher *Cipher
)

// Default returns the process-wide cipher keyed from SharedSecret.
func Default() *Cipher {
	defaultOnce.Do(func() {
		defaultCipher = New(SharedSecret)
	})
	return defaultCipher
}

func (c *Cipher) init() (stdcipher.AEAD, error) {
	c.once.Do(func() {
		key := sha256.Sum256([]byte(c.secret))
		block, err := aes.NewCipher(key[:])
		if err != nil {
			c.err = fmt.Errorf("init aes: %w", err)
			return
		}
		c.aead, c.err = stdcipher.NewGCM(block)
	})
	return c.aead, c.err
}

// Encrypt seals plaintext and returns nonce|ciphertext|tag as a URL-safe
// unpadded base64 token.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	aead, err := c.init()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(c.random, nonce); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a token produced by Encrypt. Tokens in standard padded base64,
// as written by older clients, are accepted too.
func (c *Cipher) Decrypt(token string) (string, error) {
	raw, ok := decodeToken(token)
	if !ok || len(raw) < nonceSize+tagSize {
		return "", ErrNotCiphertext
	}

	aead, err := c.init()
	if err != nil {
		return "", err
	}

	plain, err := aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return "", ErrDecrypt
	}
	if !utf8.Valid(plain) {
		return "", ErrDecrypt
	}
	return string(plain), nil
}

// LooksEncrypted reports whether token has the shape of a ciphertext token.
// It checks the alphabet and length only; Decrypt may still fail.
func LooksEncrypted(token string) bool {
	if len(token) < minTokenLen {
		return false
	}
	for _, r := range token {
		if !isTokenRune(r) {
			return false
		}
	}
	raw, ok := decodeToken(token)
	return ok && len(raw) >= nonceSize+tagSize
}

// LooksEncrypted is a convenience wrapper around the package function.
func (c *Cipher) LooksEncrypted(token string) bool {
	return LooksEncrypted(token)
}

func isTokenRune(r rune) bool {
	switch {
	case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		return true
	case r == '-', r == '_', r == '+', r == '/', r == '=':
		return true
	}
	return false
}

var toStd = strings.NewReplacer("-", "+", "_", "/", "=", "")

func decodeToken(token string) ([]byte, bool) {
	raw, err := base64.RawStdEncoding.DecodeString(toStd.Replace(token))
	if err != nil {
		return nil, false
	}
	return raw, true
}
