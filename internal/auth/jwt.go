package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Identity is the authenticated caller carried by a token.
type Identity struct {
	UserID   int
	Username string
}

// Claims are issued by the auth service and shared through the HMAC secret.
type Claims struct {
	jwt.RegisteredClaims
	UserID   int    `json:"user_id"`
	Username string `json:"username"`
}

// Validator verifies HS256 tokens.
type Validator struct {
	secret []byte
}

func NewValidator(secret string) *Validator {
	return &Validator{secret: []byte(secret)}
}

// GenerateToken signs a token for the identity.
func (v *Validator) GenerateToken(id Identity, validity time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validity)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		UserID:   id.UserID,
		Username: id.Username,
	})
	return token.SignedString(v.secret)
}

// Validate parses the token and returns the identity it carries.
func (v *Validator) Validate(tokenString string) (Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Identity{}, err
	}
	if !token.Valid || claims.UserID == 0 {
		return Identity{}, ErrInvalidToken
	}
	return Identity{UserID: claims.UserID, Username: claims.Username}, nil
}
