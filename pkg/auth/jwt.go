package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/quocanhngo/edumsg/internal/model"
)

// Issuer is the issuer expected in tokens of the school suite
const Issuer = "edumsg"

// Claims represents JWT claims issued by the school suite for a directory user
type Claims struct {
	UserID   int64          `json:"user_id"`
	UserType model.UserType `json:"user_type"`
	Role     model.Role     `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Identity returns the caller carried by the token
func (c *Claims) Identity() model.Identity {
	role := c.Role
	if role == "" {
		role = model.RoleUser
	}
	return model.Identity{UserID: c.UserID, UserType: c.UserType, Role: role}
}

// JWTManager handles JWT token operations
type JWTManager struct {
	secret []byte
	expiry time.Duration
}

// NewJWTManager creates a new JWT manager
func NewJWTManager(secret string, expiry time.Duration) *JWTManager {
	return &JWTManager{
		secret: []byte(secret),
		expiry: expiry,
	}
}

// GenerateToken creates a new JWT token for a user. Used by the seeder and
// tests; production tokens come from the suite's identity provider.
func (j *JWTManager) GenerateToken(who model.Identity) (string, error) {
	claims := &Claims{
		UserID:   who.UserID,
		UserType: who.UserType,
		Role:     who.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   who.Ref().String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(j.expiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    Issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.secret)
}

// ValidateToken parses and validates a JWT token
func (j *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return j.secret, nil
	}, jwt.WithIssuer(Issuer))

	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.UserID <= 0 || !claims.UserType.Valid() {
		return nil, errors.New("token does not identify a directory user")
	}

	return claims, nil
}
