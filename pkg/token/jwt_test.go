package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndVerifyToken(t *testing.T) {
	m := NewJWTManager("test-secret", 60)

	tok, err := m.GenerateToken(42, "ADMIN")
	require.NoError(t, err)

	claims, err := m.VerifyToken(tok)
	require.NoError(t, err)
	id, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, uint(42), id)
	assert.Equal(t, "ADMIN", claims.Role)
	assert.NotEmpty(t, claims.ID)
	assert.InDelta(t, time.Hour.Seconds(), claims.TTL().Seconds(), 5)
}

func TestVerifyTokenRejectsOtherSecret(t *testing.T) {
	tok, err := NewJWTManager("a", 60).GenerateToken(1, "USER")
	require.NoError(t, err)

	_, err = NewJWTManager("b", 60).VerifyToken(tok)
	assert.Error(t, err)
}

func TestVerifyTokenRejectsExpired(t *testing.T) {
	m := NewJWTManager("test-secret", -1)
	tok, err := m.GenerateToken(1, "USER")
	require.NoError(t, err)

	_, err = m.VerifyToken(tok)
	assert.Error(t, err)
}
