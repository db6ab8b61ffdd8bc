package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbeoliero/carechat/pkg/errcode"
)

func sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("whatever"))
	require.NoError(t, err)
	return s
}

func TestInspect(t *testing.T) {
	tok := sign(t, jwt.MapClaims{"user_id": "u-9", "exp": time.Now().Add(time.Hour).Unix()})

	claims, err := Inspect(tok)
	require.NoError(t, err)
	assert.Equal(t, "u-9", claims.UserId)
}

func TestInspect_Garbage(t *testing.T) {
	_, err := Inspect("not-a-jwt")
	require.Error(t, err)
}

func TestCheckExpiry(t *testing.T) {
	now := time.Now()

	valid := sign(t, jwt.MapClaims{"user_id": "u", "exp": now.Add(time.Hour).Unix()})
	assert.NoError(t, CheckExpiry(valid, now))

	expired := sign(t, jwt.MapClaims{"user_id": "u", "exp": now.Add(-time.Minute).Unix()})
	assert.ErrorIs(t, CheckExpiry(expired, now), errcode.ErrTokenExpired)

	noExp := sign(t, jwt.MapClaims{"user_id": "u"})
	assert.NoError(t, CheckExpiry(noExp, now), "tokens without exp pass")
}

func TestUserIdOf(t *testing.T) {
	withUserId := sign(t, jwt.MapClaims{"user_id": "u-1", "sub": "subject"})
	id, err := UserIdOf(withUserId)
	require.NoError(t, err)
	assert.Equal(t, "u-1", id)

	subOnly := sign(t, jwt.MapClaims{"sub": "subject"})
	id, err = UserIdOf(subOnly)
	require.NoError(t, err)
	assert.Equal(t, "subject", id)
}
