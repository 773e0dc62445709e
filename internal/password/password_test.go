package password_test

import (
	"strings"
	"testing"

	"github.com/ErlanBelekov/identity-service/internal/password"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHasher_HashAndVerify(t *testing.T) {
	h := password.NewHasher(bcrypt.MinCost)

	hash, err := h.Hash("pw1")
	require.NoError(t, err)

	assert.NotEqual(t, "pw1", hash, "hash must not be the plaintext")
	assert.True(t, h.Verify("pw1", hash))
	assert.False(t, h.Verify("pw2", hash))
}

func TestHasher_SaltDiffersPerCall(t *testing.T) {
	h := password.NewHasher(bcrypt.MinCost)

	a, err := h.Hash("same")
	require.NoError(t, err)
	b, err := h.Hash("same")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.True(t, h.Verify("same", a))
	assert.True(t, h.Verify("same", b))
}

func TestHasher_UsesConfiguredCost(t *testing.T) {
	h := password.NewHasher(bcrypt.MinCost + 1)

	hash, err := h.Hash("pw")
	require.NoError(t, err)

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost+1, cost)
}

func TestHasher_RejectsTooLong(t *testing.T) {
	h := password.NewHasher(bcrypt.MinCost)

	_, err := h.Hash(strings.Repeat("a", password.MaxLength+1))
	assert.ErrorIs(t, err, password.ErrPasswordTooLong)
}

func TestHasher_VerifyMalformedHash(t *testing.T) {
	h := password.NewHasher(bcrypt.MinCost)
	assert.False(t, h.Verify("pw", "not-a-bcrypt-hash"))
}
