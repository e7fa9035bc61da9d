package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/quocanhngo/edumsg/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTManager_RoundTrip(t *testing.T) {
	m := NewJWTManager("secret", time.Hour)
	who := model.Identity{UserID: 42, UserType: model.UserTypeTeacher, Role: model.RoleStaff}

	token, err := m.GenerateToken(who)
	require.NoError(t, err)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, who, claims.Identity())
	assert.Equal(t, "teacher:42", claims.Subject)
	assert.Equal(t, Issuer, claims.Issuer)
}

func TestJWTManager_DefaultRole(t *testing.T) {
	claims := &Claims{UserID: 1, UserType: model.UserTypeStudent}

	assert.Equal(t, model.RoleUser, claims.Identity().Role)
}

func TestJWTManager_Rejects(t *testing.T) {
	m := NewJWTManager("secret", time.Hour)

	sign := func(claims *Claims, secret string) string {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
		require.NoError(t, err)
		return token
	}
	valid := func() jwt.RegisteredClaims {
		return jwt.RegisteredClaims{
			Issuer:    Issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}
	}

	expired := valid()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	foreign := valid()
	foreign.Issuer = "someone-else"

	tests := map[string]string{
		"wrong secret":      sign(&Claims{UserID: 1, UserType: model.UserTypeParent, RegisteredClaims: valid()}, "other"),
		"expired":           sign(&Claims{UserID: 1, UserType: model.UserTypeParent, RegisteredClaims: expired}, "secret"),
		"foreign issuer":    sign(&Claims{UserID: 1, UserType: model.UserTypeParent, RegisteredClaims: foreign}, "secret"),
		"no user id":        sign(&Claims{UserType: model.UserTypeParent, RegisteredClaims: valid()}, "secret"),
		"unknown user type": sign(&Claims{UserID: 1, UserType: "alumni", RegisteredClaims: valid()}, "secret"),
		"garbage":           "not.a.token",
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := m.ValidateToken(token)
			assert.Error(t, err)
		})
	}
}
