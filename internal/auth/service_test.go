package auth

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashPassword(t *testing.T) {
	plain := "messi10"

	hash, err := HashPassword(plain)
	require.NoError(t, err)

	require.True(t, ComparePasswords(hash, plain))
	require.False(t, ComparePasswords(hash, "wrong"))
}
