package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndParse(t *testing.T) {
	SetSecret("test-secret")
	token, err := Sign("mod-1", RoleReviewer, time.Hour)
	require.NoError(t, err)

	claims, err := Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "mod-1", claims.UserID)
	assert.Equal(t, RoleReviewer, claims.Role)
}

func TestParseRejectsExpiredAndForeignTokens(t *testing.T) {
	SetSecret("test-secret")
	expired, err := Sign("mod-1", RoleReviewer, -time.Minute)
	require.NoError(t, err)
	_, err = Parse(expired)
	assert.Error(t, err)

	token, err := Sign("mod-1", RoleAdmin, time.Hour)
	require.NoError(t, err)
	SetSecret("rotated")
	_, err = Parse(token)
	assert.Error(t, err)
}
