package middleware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateToken_Roundtrip(t *testing.T) {
	token, err := GenerateToken(7, "table-secret", time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := ParseToken(token, "table-secret")
	require.NoError(t, err)
	assert.Equal(t, int64(7), claims.AccountID)
}

func TestParseToken_WrongSecret(t *testing.T) {
	token, err := GenerateToken(7, "table-secret", time.Hour)
	require.NoError(t, err)

	_, err = ParseToken(token, "other-secret")
	assert.Error(t, err)
}

func TestParseToken_Expired(t *testing.T) {
	token, err := GenerateToken(7, "table-secret", -time.Minute)
	require.NoError(t, err)

	_, err = ParseToken(token, "table-secret")
	assert.Error(t, err)
}

func TestParseToken_Malformed(t *testing.T) {
	_, err := ParseToken("not.a.jwt", "table-secret")
	assert.Error(t, err)
}

func TestParseToken_Empty(t *testing.T) {
	_, err := ParseToken("", "table-secret")
	assert.Error(t, err)
}

func TestGenerateToken_DistinctAccounts(t *testing.T) {
	t1, err := GenerateToken(1, "table-secret", time.Hour)
	require.NoError(t, err)
	t2, err := GenerateToken(2, "table-secret", time.Hour)
	require.NoError(t, err)
	assert.NotEqual(t, t1, t2)

	c1, err := ParseToken(t1, "table-secret")
	require.NoError(t, err)
	c2, err := ParseToken(t2, "table-secret")
	require.NoError(t, err)
	assert.Equal(t, int64(1), c1.AccountID)
	assert.Equal(t, int64(2), c2.AccountID)
}
