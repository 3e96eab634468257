package gateway

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthenticator_Verify(t *testing.T) {
	auth := NewAuthenticator(testSecret, 30*time.Second)
	userID := uuid.New()
	now := time.Now()

	t.Run("valid token", func(t *testing.T) {
		token := signToken(t, testSecret, accessClaims{
			Role:  "service_role",
			Email: "mister@example.com",
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   userID.String(),
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			},
		})
		user, err := auth.Verify(token)
		require.NoError(t, err)
		assert.Equal(t, AuthUser{ID: userID, Role: "service_role", Email: "mister@example.com"}, user)
	})

	t.Run("role defaults to authenticated", func(t *testing.T) {
		user, err := auth.Verify(userToken(t, userID))
		require.NoError(t, err)
		assert.Equal(t, "authenticated", user.Role)
	})

	t.Run("expired within the clock skew", func(t *testing.T) {
		token := signToken(t, testSecret, jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(-10 * time.Second)),
		})
		_, err := auth.Verify(token)
		assert.NoError(t, err)
	})

	tests := []struct {
		name    string
		token   func(t *testing.T) string
		wantErr error
	}{
		{
			name:    "missing",
			token:   func(*testing.T) string { return "" },
			wantErr: ErrMissingToken,
		},
		{
			name:    "garbage",
			token:   func(*testing.T) string { return "not-a-jwt" },
			wantErr: ErrInvalidToken,
		},
		{
			name: "expired beyond the clock skew",
			token: func(t *testing.T) string {
				return signToken(t, testSecret, jwt.RegisteredClaims{
					Subject:   userID.String(),
					ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute)),
				})
			},
			wantErr: ErrInvalidToken,
		},
		{
			name: "wrong secret",
			token: func(t *testing.T) string {
				return signToken(t, "other-secret", jwt.RegisteredClaims{Subject: userID.String()})
			},
			wantErr: ErrInvalidToken,
		},
		{
			name: "wrong algorithm",
			token: func(t *testing.T) string {
				token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.RegisteredClaims{Subject: userID.String()}).
					SignedString([]byte(testSecret))
				require.NoError(t, err)
				return token
			},
			wantErr: ErrInvalidToken,
		},
		{
			name: "subject is not a user id",
			token: func(t *testing.T) string {
				return signToken(t, testSecret, jwt.RegisteredClaims{Subject: "anon"})
			},
			wantErr: ErrInvalidToken,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := auth.Verify(tt.token(t))
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.wantErr.Error(), authErrorCode(err))
		})
	}
}

func TestRequestToken(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws/auction?token=from-query", nil)
	assert.Equal(t, "from-query", requestToken(r))

	r.Header.Set("Authorization", "Bearer from-header")
	assert.Equal(t, "from-header", requestToken(r))

	assert.Empty(t, ExtractBearerToken("Basic abc"))
	assert.Empty(t, ExtractBearerToken("Bearer"))
}
