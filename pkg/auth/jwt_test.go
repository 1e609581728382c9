package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/triage-api/internal/config"
	"github.com/jwalitptl/triage-api/internal/model"
)

func TestJWTManager_RoundTrip(t *testing.T) {
	m := NewJWTManager(config.JWTConfig{Secret: "s3cret", Issuer: "triage", ExpiryHours: 1})

	token, err := m.GenerateAccessToken(&model.Staff{ID: "d1", Name: "Dr. House", Role: model.StaffRoleDoctor})
	require.NoError(t, err)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, &Claims{StaffID: "d1", Name: "Dr. House", Role: model.StaffRoleDoctor}, claims)
}

func TestJWTManager_Rejects(t *testing.T) {
	m := NewJWTManager(config.JWTConfig{Secret: "s3cret", Issuer: "triage", ExpiryHours: 1})
	token, err := m.GenerateAccessToken(&model.Staff{ID: "d1", Role: model.StaffRoleDoctor})
	require.NoError(t, err)

	t.Run("expired", func(t *testing.T) {
		late := NewJWTManager(config.JWTConfig{Secret: "s3cret", Issuer: "triage"})
		late.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		_, err := late.ValidateToken(token)
		assert.ErrorIs(t, err, ErrTokenExpired)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewJWTManager(config.JWTConfig{Secret: "other", Issuer: "triage"})
		_, err := other.ValidateToken(token)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other := NewJWTManager(config.JWTConfig{Secret: "s3cret", Issuer: "someone-else"})
		_, err := other.ValidateToken(token)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := m.ValidateToken("not.a.token")
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})
}
