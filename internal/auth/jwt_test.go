package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/therapy-booking/internal/appointment"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	m := NewManager("secret", "therapy-booking", time.Hour)
	p := appointment.Principal{ID: uuid.New(), Email: "sam@example.com", Name: "Sam", Role: appointment.RoleTherapist}

	token, err := m.NewAccessToken(p)
	require.NoError(t, err)

	got, err := m.Authenticate(token)
	require.NoError(t, err)
	assert.Equal(t, p, *got)
}

func TestParseRejectsWrongSecret(t *testing.T) {
	token, err := NewManager("one", "therapy-booking", time.Hour).NewAccessToken(appointment.Principal{ID: uuid.New(), Role: appointment.RoleClient})
	require.NoError(t, err)

	_, err = NewManager("two", "therapy-booking", time.Hour).Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsExpired(t *testing.T) {
	m := NewManager("secret", "therapy-booking", -time.Minute)
	token, err := m.NewAccessToken(appointment.Principal{ID: uuid.New(), Role: appointment.RoleClient})
	require.NoError(t, err)

	_, err = m.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsOtherIssuer(t *testing.T) {
	token, err := NewManager("secret", "someone-else", time.Hour).NewAccessToken(appointment.Principal{ID: uuid.New(), Role: appointment.RoleClient})
	require.NoError(t, err)

	_, err = NewManager("secret", "therapy-booking", time.Hour).Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticateRejectsUnknownRole(t *testing.T) {
	m := NewManager("secret", "", time.Hour)
	claims := Claims{
		Role: "superuser",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.Secret)
	require.NoError(t, err)

	_, err = m.Authenticate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
