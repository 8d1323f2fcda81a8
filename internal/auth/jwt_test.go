package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidate(t *testing.T) {
	v := NewValidator("secret")

	token, err := v.GenerateToken(Identity{UserID: 7, Username: "alice"}, time.Minute)
	require.NoError(t, err)

	id, err := v.Validate(token)
	require.NoError(t, err)
	require.Equal(t, Identity{UserID: 7, Username: "alice"}, id)
}

func TestValidateWrongSecret(t *testing.T) {
	token, err := NewValidator("one").GenerateToken(Identity{UserID: 7, Username: "alice"}, time.Minute)
	require.NoError(t, err)

	_, err = NewValidator("two").Validate(token)
	require.Error(t, err)
}

func TestValidateExpired(t *testing.T) {
	v := NewValidator("secret")
	token, err := v.GenerateToken(Identity{UserID: 7, Username: "alice"}, -time.Minute)
	require.NoError(t, err)

	_, err = v.Validate(token)
	require.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestValidateMissingUser(t *testing.T) {
	v := NewValidator("secret")
	token, err := v.GenerateToken(Identity{Username: "ghost"}, time.Minute)
	require.NoError(t, err)

	_, err = v.Validate(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateGarbage(t *testing.T) {
	_, err := NewValidator("secret").Validate("not-a-token")
	require.Error(t, err)
}
