package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-signing-secret"

func TestIssueAndValidateToken(t *testing.T) {
	token, err := IssueToken(testSecret, "admin", 30*time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := ValidateToken(testSecret, token)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Subject)
	assert.Equal(t, "admin", claims.Username)
	assert.True(t, claims.Admin)
	assert.WithinDuration(t, time.Now().Add(30*time.Minute), claims.ExpiresAt.Time, 5*time.Second)
}

func TestIssueTokenDefaultExpiry(t *testing.T) {
	token, err := IssueToken(testSecret, "admin", 0)
	require.NoError(t, err)

	claims, err := ValidateToken(testSecret, token)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(DefaultTokenExpiry), claims.ExpiresAt.Time, 5*time.Second)
}

func TestIssueTokenRequiresSecret(t *testing.T) {
	_, err := IssueToken("", "admin", time.Minute)
	assert.Error(t, err)
}

func TestValidateTokenExpired(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "admin",
			IssuedAt:  jwt.NewNumericDate(past),
			ExpiresAt: jwt.NewNumericDate(past.Add(time.Minute)),
		},
		Username: "admin",
		Admin:    true,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = ValidateToken(testSecret, token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestValidateTokenWrongSecret(t *testing.T) {
	token, err := IssueToken(testSecret, "admin", time.Minute)
	require.NoError(t, err)

	_, err = ValidateToken("other-secret", token)
	assert.Error(t, err)
}

func TestValidateTokenRejectsNonHMAC(t *testing.T) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "admin",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = ValidateToken(testSecret, token)
	assert.Error(t, err)
}

func TestValidateTokenGarbage(t *testing.T) {
	_, err := ValidateToken(testSecret, "not.a.token")
	assert.Error(t, err)
}

func TestVerifyAPIKey(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		presented  string
		want       bool
	}{
		{"match", "secret-key", "secret-key", true},
		{"mismatch", "secret-key", "wrong-key", false},
		{"empty presented", "secret-key", "", false},
		{"empty configured never matches", "", "", false},
		{"prefix", "secret-key", "secret", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, VerifyAPIKey(tt.configured, tt.presented))
		})
	}
}

func TestVerifyCredentials(t *testing.T) {
	tests := []struct {
		name string
		user string
		pass string
		want bool
	}{
		{"both match", "admin", "changeme", true},
		{"wrong password", "admin", "nope", false},
		{"wrong username", "root", "changeme", false},
		{"both wrong", "root", "nope", false},
		{"empty", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, VerifyCredentials("admin", "changeme", tt.user, tt.pass))
		})
	}
}

func TestVerifyCredentialsEmptyConfigured(t *testing.T) {
	// An unset password must never authenticate, even against empty input
	assert.False(t, VerifyCredentials("admin", "", "admin", ""))
	assert.False(t, VerifyCredentials("", "", "", ""))
}
