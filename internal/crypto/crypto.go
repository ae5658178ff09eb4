// Package crypto issues unguessable share tokens and hashes requester
// addresses for access logs.
package crypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"math/big"
)

// MinTokenLength is the shortest token NewToken will issue.
const MinTokenLength = 12

const tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// TokenGenerator draws alphanumeric tokens from a cryptographically secure
// source.
type TokenGenerator struct {
	source io.Reader
	length int
}

// NewTokenGenerator returns a generator of tokens with the given length,
// reading randomness from crypto/rand.
func NewTokenGenerator(length int) (*TokenGenerator, error) {
	if length < MinTokenLength {
		return nil, fmt.Errorf("token length must be at least %d, got %d", MinTokenLength, length)
	}
	return &TokenGenerator{source: rand.Reader, length: length}, nil
}

// NewToken returns a fresh token. Each character is drawn uniformly from the
// 62-symbol alphabet.
func (g *TokenGenerator) NewToken() (string, error) {
	max := big.NewInt(int64(len(tokenAlphabet)))
	out := make([]byte, g.length)
	for i := range out {
		n, err := rand.Int(g.source, max)
		if err != nil {
			return "", fmt.Errorf("failed to read random source: %w", err)
		}
		out[i] = tokenAlphabet[n.Int64()]
	}
	return string(out), nil
}

// AddressHasher produces keyed one-way hashes of network addresses.
type AddressHasher struct {
	key []byte
}

// NewAddressHasher creates an AddressHasher. The key keeps hashes of the
// small IPv4 space from being reversed by enumeration.
func NewAddressHasher(key string) (*AddressHasher, error) {
	if key == "" {
		return nil, fmt.Errorf("address hash key is required")
	}
	return &AddressHasher{key: []byte(key)}, nil
}

// Hash returns the hex HMAC-SHA256 of addr.
func (h *AddressHasher) Hash(addr string) string {
	mac := hmac.New(sha256.New, h.key)
	mac.Write([]byte(addr))
	return hex.EncodeToString(mac.Sum(nil))
}
