package token

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/sha3"
)

const (
	// DefaultSize is the length of the buffer hashed into a code.
	DefaultSize = 256
	// maxSeedPrefix bounds how much of the seed survives unrandomized.
	maxSeedPrefix = 32
)

// Generate derives an opaque 64-character hex code from seed (usually the email)
// and DefaultSize bytes of buffer.
func Generate(seed string) (string, error) {
	return GenerateSize(seed, DefaultSize)
}

// GenerateSize builds a size-byte buffer that starts with the first
// min(len(seed), 32) bytes of seed, fills the rest from crypto/rand, and returns
// the hex-encoded SHA3-256 digest of the buffer. The seed prefix is predictable;
// the random tail and the one-way hash are what make the code unguessable.
func GenerateSize(seed string, size int) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("generate token: invalid size %d", size)
	}
	buf := make([]byte, size)
	copy(buf, seed)

	offset := min(len(seed), maxSeedPrefix, size)
	if _, err := rand.Read(buf[offset:]); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	sum := sha3.Sum256(buf)
	return hex.EncodeToString(sum[:]), nil
}
