package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hackgods/salon-appointment-scheduling/internal/appointment"
	"github.com/hackgods/salon-appointment-scheduling/internal/config"
)

var (
	ErrTokenExpired = errors.New("token has expired")
	ErrTokenInvalid = errors.New("token is invalid")
)

type salonClaims struct {
	jwt.RegisteredClaims
	Role    string `json:"role"`
	SalonID *int64 `json:"salon_id,omitempty"`
}

// TokenManager issues and verifies HS256 bearer tokens carrying an Actor.
type TokenManager struct {
	cfg config.JWTConfig
	now func() time.Time
}

func NewTokenManager(cfg config.JWTConfig) *TokenManager {
	return &TokenManager{cfg: cfg, now: time.Now}
}

func (m *TokenManager) Generate(actor appointment.Actor, ttl time.Duration) (string, error) {
	if actor.UserID == nil {
		return "", errors.New("cannot issue a token for a guest")
	}
	if !actor.Role.IsValid() || actor.Role == appointment.RoleGuest {
		return "", fmt.Errorf("cannot issue a token for role %q", actor.Role)
	}

	now := m.now()
	claims := salonClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.cfg.Issuer,
			Subject:   strconv.FormatInt(*actor.UserID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			NotBefore: jwt.NewNumericDate(now.Add(-10 * time.Second)),
		},
		Role:    string(actor.Role),
		SalonID: actor.SalonID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(m.cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

func (m *TokenManager) Validate(tokenString string) (appointment.Actor, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&salonClaims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(m.cfg.Secret), nil
		},
		jwt.WithIssuer(m.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return appointment.Actor{}, ErrTokenExpired
		}
		return appointment.Actor{}, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*salonClaims)
	if !ok || !token.Valid {
		return appointment.Actor{}, ErrTokenInvalid
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return appointment.Actor{}, ErrTokenInvalid
	}
	role := appointment.Role(claims.Role)
	if !role.IsValid() || role == appointment.RoleGuest {
		return appointment.Actor{}, ErrTokenInvalid
	}
	if role == appointment.RoleManager && claims.SalonID == nil {
		return appointment.Actor{}, ErrTokenInvalid
	}

	return appointment.Actor{UserID: &userID, Role: role, SalonID: claims.SalonID}, nil
}
