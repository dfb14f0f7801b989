// Package password hashes and verifies account passwords with argon2id.
package password

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/go-accounts-nosql/internal/domain"
	"golang.org/x/crypto/argon2"
	"golang.org/x/sync/semaphore"
)

// MaxEncodedLen is the upper bound on the length of an encoded hash.
const MaxEncodedLen = 128

// Params are the argon2id cost parameters embedded in every encoded hash.
type Params struct {
	Time      uint32 // iterations
	MemoryKiB uint32
	Threads   uint8
	SaltLen   uint32
	KeyLen    uint32
}

// Cost profiles matching libsodium's crypto_pwhash presets.
var (
	Interactive = Params{Time: 2, MemoryKiB: 64 * 1024, Threads: 1, SaltLen: 16, KeyLen: 32}
	Moderate    = Params{Time: 3, MemoryKiB: 256 * 1024, Threads: 1, SaltLen: 16, KeyLen: 32}
	Sensitive   = Params{Time: 4, MemoryKiB: 1024 * 1024, Threads: 1, SaltLen: 16, KeyLen: 32}
)

// ProfileParams returns the parameters for a named profile.
func ProfileParams(name string) (Params, error) {
	switch strings.ToLower(name) {
	case "interactive":
		return Interactive, nil
	case "moderate":
		return Moderate, nil
	case "sensitive", "":
		return Sensitive, nil
	default:
		return Params{}, fmt.Errorf("unknown hash profile %q", name)
	}
}

// Hasher produces self-describing argon2id hashes. The total memory held by
// concurrent Hash and Verify calls never exceeds the budget given to NewHasher.
type Hasher struct {
	params    Params
	budget    *semaphore.Weighted
	budgetKiB int64
}

// NewHasher creates a Hasher that hashes with params and may hold at most
// memoryBudgetKiB of argon2 memory at once.
func NewHasher(params Params, memoryBudgetKiB int64) *Hasher {
	return &Hasher{
		params:    params,
		budget:    semaphore.NewWeighted(memoryBudgetKiB),
		budgetKiB: memoryBudgetKiB,
	}
}

// Hash returns the encoded argon2id hash of password:
// $argon2id$v=19$m=<KiB>,t=<iterations>,p=<threads>$<salt>$<key>
func (h *Hasher) Hash(ctx context.Context, password string) (string, error) {
	release, err := h.reserve(ctx, h.params.MemoryKiB)
	if err != nil {
		return "", err
	}
	defer release()

	salt := make([]byte, h.params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, h.params.Time, h.params.MemoryKiB, h.params.Threads, h.params.KeyLen)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.MemoryKiB,
		h.params.Time,
		h.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether password matches encoded. A malformed hash and a wrong
// password are indistinguishable: both yield (false, nil). The only error is
// domain.ErrHashingResource.
func (h *Hasher) Verify(ctx context.Context, encoded, password string) (bool, error) {
	p, salt, expected, ok := decode(encoded)
	if !ok {
		return false, nil
	}
	release, err := h.reserve(ctx, p.MemoryKiB)
	if err != nil {
		return false, err
	}
	defer release()

	computed := argon2.IDKey([]byte(password), salt, p.Time, p.MemoryKiB, p.Threads, p.KeyLen)
	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}

// reserve blocks until memKiB of the budget is available.
func (h *Hasher) reserve(ctx context.Context, memKiB uint32) (func(), error) {
	n := int64(memKiB)
	if n > h.budgetKiB {
		return nil, fmt.Errorf("argon2 needs %d KiB, budget is %d KiB: %w", n, h.budgetKiB, domain.ErrHashingResource)
	}
	if err := h.budget.Acquire(ctx, n); err != nil {
		return nil, fmt.Errorf("wait for hashing memory: %w", domain.ErrHashingResource)
	}
	return func() { h.budget.Release(n) }, nil
}

func decode(encoded string) (Params, []byte, []byte, bool) {
	if len(encoded) > MaxEncodedLen {
		return Params{}, nil, nil, false
	}
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return Params{}, nil, nil, false
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return Params{}, nil, nil, false
	}
	var memory, iterations, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &threads); err != nil {
		return Params{}, nil, nil, false
	}
	if iterations == 0 || threads == 0 || threads > 255 || memory < 8*threads {
		return Params{}, nil, nil, false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return Params{}, nil, nil, false
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return Params{}, nil, nil, false
	}
	p := Params{
		Time:      iterations,
		MemoryKiB: memory,
		Threads:   uint8(threads),
		SaltLen:   uint32(len(salt)),
		KeyLen:    uint32(len(key)),
	}
	return p, salt, key, true
}
