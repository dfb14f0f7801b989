package password

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/go-accounts-nosql/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cheap keeps argon2 fast enough for tests.
var cheap = Params{Time: 1, MemoryKiB: 64, Threads: 1, SaltLen: 16, KeyLen: 32}

func newTestHasher() *Hasher {
	return NewHasher(cheap, 1024)
}

func randomPassword(t *testing.T) string {
	t.Helper()
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789._%+-@#!$&*"
	n, err := rand.Int(rand.Reader, big.NewInt(57))
	require.NoError(t, err)
	b := make([]byte, 8+n.Int64())
	for i := range b {
		idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
		require.NoError(t, err)
		b[i] = alphabet[idx.Int64()]
	}
	return string(b)
}

func TestHash_Format(t *testing.T) {
	h := newTestHasher()
	encoded, err := h.Hash(context.Background(), "Abcdef1!")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "$argon2id$v=19$m=64,t=1,p=1$"))
	assert.LessOrEqual(t, len(encoded), MaxEncodedLen)
}

func TestHash_Salted(t *testing.T) {
	h := newTestHasher()
	a, err := h.Hash(context.Background(), "samepassword")
	require.NoError(t, err)
	b, err := h.Hash(context.Background(), "samepassword")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestHashVerify_RandomPairs(t *testing.T) {
	h := newTestHasher()
	ctx := context.Background()
	for i := 0; i < 25; i++ {
		pw, other := randomPassword(t), randomPassword(t)
		if pw == other {
			continue
		}
		encoded, err := h.Hash(ctx, pw)
		require.NoError(t, err)

		ok, err := h.Verify(ctx, encoded, pw)
		require.NoError(t, err)
		assert.True(t, ok, "original password must verify")

		ok, err = h.Verify(ctx, encoded, other)
		require.NoError(t, err)
		assert.False(t, ok, "different password must not verify")
	}
}

func TestVerify_UsesParamsFromHash(t *testing.T) {
	old := NewHasher(Params{Time: 2, MemoryKiB: 128, Threads: 2, SaltLen: 8, KeyLen: 16}, 1024)
	encoded, err := old.Hash(context.Background(), "Abcdef1!")
	require.NoError(t, err)

	ok, err := newTestHasher().Verify(context.Background(), encoded, "Abcdef1!")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerify_MalformedHashIsFalse(t *testing.T) {
	h := newTestHasher()
	for _, encoded := range []string{
		"",
		"not-a-valid-hash",
		"$argon2i$v=19$m=64,t=1,p=1$c2FsdHNhbHQ$aGFzaGhhc2g",
		"$argon2id$v=18$m=64,t=1,p=1$c2FsdHNhbHQ$aGFzaGhhc2g",
		"$argon2id$v=19$m=64,t=0,p=1$c2FsdHNhbHQ$aGFzaGhhc2g",
		"$argon2id$v=19$m=64,t=1,p=1$!!!$aGFzaGhhc2g",
		"$argon2id$v=19$m=64,t=1,p=1$c2FsdHNhbHQ$",
		"$argon2id$v=19$m=64,t=1,p=1$" + strings.Repeat("A", MaxEncodedLen) + "$aGFzaA",
	} {
		ok, err := h.Verify(context.Background(), encoded, "password")
		assert.NoError(t, err, encoded)
		assert.False(t, ok, encoded)
	}
}

func TestHash_ProfileOverBudget(t *testing.T) {
	h := NewHasher(Sensitive, 512*1024)
	_, err := h.Hash(context.Background(), "Abcdef1!")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrHashingResource))
}

func TestVerify_HashOverBudget(t *testing.T) {
	h := newTestHasher()
	_, err := h.Verify(context.Background(), "$argon2id$v=19$m=1048576,t=4,p=1$c2FsdHNhbHQ$aGFzaGhhc2g", "x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrHashingResource))
}

func TestHash_WaitsForBudgetUntilContextEnds(t *testing.T) {
	h := NewHasher(cheap, 64)
	release, err := h.reserve(context.Background(), 64)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = h.Hash(ctx, "Abcdef1!")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrHashingResource))
}

func TestProfileParams(t *testing.T) {
	p, err := ProfileParams("interactive")
	require.NoError(t, err)
	assert.Equal(t, Interactive, p)

	p, err = ProfileParams("")
	require.NoError(t, err)
	assert.Equal(t, Sensitive, p)

	_, err = ProfileParams("extreme")
	assert.Error(t, err)
}
