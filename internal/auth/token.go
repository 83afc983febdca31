package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid control token")

// ControlClaims binds a capability token to one session. The token is minted
// at create-session and must accompany every subsequent control event; it
// carries no identity beyond the session it governs.
type ControlClaims struct {
	SessionID string `json:"session_id"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

// TokenService mints and validates narrator capability tokens.
type TokenService struct {
	secret      []byte
	expireHours int
}

// NewTokenService creates a capability token service.
func NewTokenService(secret string, expireHours int) *TokenService {
	return &TokenService{
		secret:      []byte(secret),
		expireHours: expireHours,
	}
}

// MintNarrator creates the control token for a newly created session.
func (s *TokenService) MintNarrator(sessionID string) (string, error) {
	claims := ControlClaims{
		SessionID: sessionID,
		Role:      "narrator",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Duration(s.expireHours) * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ID:        uuid.New().String(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ValidateNarrator checks that the token is a narrator capability for the
// given session.
func (s *TokenService) ValidateNarrator(tokenString, sessionID string) error {
	token, err := jwt.ParseWithClaims(tokenString, &ControlClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})
	if err != nil {
		return ErrInvalidToken
	}
	claims, ok := token.Claims.(*ControlClaims)
	if !ok || !token.Valid {
		return ErrInvalidToken
	}
	if claims.Role != "narrator" || claims.SessionID != sessionID {
		return ErrInvalidToken
	}
	return nil
}
