package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssuer_RoundTrip(t *testing.T) {
	iss := NewIssuer("secret", time.Hour)
	id := uuid.New()

	token, err := iss.Generate(id, "a@example.com")
	require.NoError(t, err)

	claims, err := iss.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, id, claims.UserID)
	assert.Equal(t, "a@example.com", claims.Email)
}

func TestIssuer_Rejects(t *testing.T) {
	iss := NewIssuer("secret", time.Hour)
	id := uuid.New()
	good, err := iss.Generate(id, "a@example.com")
	require.NoError(t, err)

	expired := NewIssuer("secret", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	stale, err := expired.Generate(id, "a@example.com")
	require.NoError(t, err)

	other, err := NewIssuer("other", time.Hour).Generate(id, "a@example.com")
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: id}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"garbage":      "not-a-token",
		"expired":      stale,
		"wrong secret": other,
		"alg none":     none,
		"truncated":    good[:len(good)-4],
	} {
		t.Run(name, func(t *testing.T) {
			_, err := iss.Parse(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}
