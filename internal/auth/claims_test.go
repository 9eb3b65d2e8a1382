package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func signed(t *testing.T, claims jwt.Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestParseClaims_UserIDSources(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		claims jwt.MapClaims
		want   int64
		ok     bool
	}{
		{"userId number", jwt.MapClaims{"userId": 7, "sub": "alice"}, 7, true},
		{"id string", jwt.MapClaims{"id": "12"}, 12, true},
		{"numeric sub", jwt.MapClaims{"sub": "99"}, 99, true},
		{"username sub only", jwt.MapClaims{"sub": "alice"}, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			claims, err := ParseClaims(signed(t, tc.claims))
			require.NoError(t, err)
			id, ok := claims.LocalUserID()
			require.Equal(t, tc.ok, ok)
			require.Equal(t, tc.want, id)
		})
	}
}

func TestParseClaims_AcceptsBearerPrefix(t *testing.T) {
	t.Parallel()

	claims, err := ParseClaims("Bearer " + signed(t, jwt.MapClaims{"userId": 3}))
	require.NoError(t, err)
	id, ok := claims.LocalUserID()
	require.True(t, ok)
	require.Equal(t, int64(3), id)
}

func TestParseClaims_Rejects(t *testing.T) {
	t.Parallel()

	_, err := ParseClaims("")
	require.Error(t, err)
	_, err = ParseClaims("not-a-jwt")
	require.Error(t, err)
}

func TestClaims_ExpiresWithin(t *testing.T) {
	t.Parallel()

	now := time.Now()
	claims, err := ParseClaims(signed(t, jwt.MapClaims{"exp": now.Add(-time.Minute).Unix()}))
	require.NoError(t, err)
	require.True(t, claims.ExpiresWithin(now, 0))

	claims, err = ParseClaims(signed(t, jwt.MapClaims{"exp": now.Add(time.Hour).Unix()}))
	require.NoError(t, err)
	require.False(t, claims.ExpiresWithin(now, time.Minute))

	claims, err = ParseClaims(signed(t, jwt.MapClaims{"sub": "1"}))
	require.NoError(t, err)
	require.False(t, claims.ExpiresWithin(now, time.Hour))
}
