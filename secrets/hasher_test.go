package secrets_test

import (
	"testing"

	"github.com/credentive/go-credential-service/secrets"
	"github.com/stretchr/testify/require"
)

func TestHasherRoundTrip(t *testing.T) {
	hasher, err := secrets.NewHasher(4) // min cost keeps the test fast
	require.NoError(t, err)

	digest, err := hasher.Hash("correct horse battery staple")
	require.NoError(t, err)
	require.NotEqual(t, "correct horse battery staple", digest)

	require.True(t, hasher.Verify("correct horse battery staple", digest))
	require.False(t, hasher.Verify("wrong password", digest))
}

func TestHasherCostOutOfRange(t *testing.T) {
	_, err := secrets.NewHasher(99)
	require.Error(t, err)
}

func TestCheckDigest(t *testing.T) {
	hasher, err := secrets.NewHasher(4)
	require.NoError(t, err)

	digest, err := hasher.Hash("secret")
	require.NoError(t, err)

	require.NoError(t, secrets.CheckDigest(digest))
	require.Error(t, secrets.CheckDigest("not-a-bcrypt-digest"))
}

func TestNewOpaque(t *testing.T) {
	a, err := secrets.NewOpaque(64)
	require.NoError(t, err)
	b, err := secrets.NewOpaque(64)
	require.NoError(t, err)

	require.Len(t, a, 128) // 64 bytes hex encoded
	require.NotEqual(t, a, b)
}

func TestHashOpaqueDeterministic(t *testing.T) {
	require.Equal(t, secrets.HashOpaque("abc"), secrets.HashOpaque("abc"))
	require.NotEqual(t, secrets.HashOpaque("abc"), secrets.HashOpaque("abd"))
	require.Len(t, secrets.HashOpaque("abc"), 64)
}
