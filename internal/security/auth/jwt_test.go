package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidate(t *testing.T) {
	tm := NewTokenManager("secret", "assettrack", time.Hour)
	token, exp, err := tm.GenerateToken("u-1", "tenantadmin", "t-1")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	claims, err := tm.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, "tenantadmin", claims.Role)
	assert.Equal(t, "t-1", claims.TenantID)
	assert.Equal(t, "u-1", claims.Subject)
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	token, _, err := NewTokenManager("secret-a", "", time.Hour).GenerateToken("u-1", "user", "t-1")
	require.NoError(t, err)

	_, err = NewTokenManager("secret-b", "", time.Hour).ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateRejectsExpired(t *testing.T) {
	tm := NewTokenManager("secret", "", time.Minute)
	issued := time.Now().Add(-2 * time.Hour)
	tm.now = func() time.Time { return issued }
	token, _, err := tm.GenerateToken("u-1", "user", "")
	require.NoError(t, err)

	tm.now = time.Now
	_, err = tm.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateRejectsOtherIssuer(t *testing.T) {
	token, _, err := NewTokenManager("secret", "someone-else", time.Hour).GenerateToken("u-1", "user", "")
	require.NoError(t, err)

	_, err = NewTokenManager("secret", "assettrack", time.Hour).ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateRejectsGarbage(t *testing.T) {
	_, err := NewTokenManager("secret", "", time.Hour).ValidateToken("not-a-jwt")
	assert.Error(t, err)
}

func TestExtractToken(t *testing.T) {
	tok, err := ExtractToken("Bearer abc.def.ghi")
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", tok)

	tok, err = ExtractToken("bearer xyz")
	require.NoError(t, err)
	assert.Equal(t, "xyz", tok)

	for _, h := range []string{"", "Bearer", "Basic abc", "Bearer a b"} {
		_, err := ExtractToken(h)
		assert.Error(t, err, h)
	}
}

func TestPasswordHasher(t *testing.T) {
	h := NewPasswordHasher(4)
	hash, err := h.Hash("Sup3rSecret!")
	require.NoError(t, err)
	assert.NotEqual(t, "Sup3rSecret!", hash)

	assert.NoError(t, h.Compare(hash, "Sup3rSecret!"))
	assert.ErrorIs(t, h.Compare(hash, "wrong"), ErrPasswordMismatch)
	h.CompareDummy("anything")
}
