package service

import (
	"errors"
	"time"

	"quotebot/pkg/hash"
	"quotebot/pkg/jwt"
)

var ErrInvalidCreds = errors.New("invalid credentials")

const DefaultTokenTTL = 12 * time.Hour

// AuthService выдает JWT единственному оператору.
// Учетка задается конфигом: имя и bcrypt хэш пароля.
type AuthService struct {
	username     string
	passwordHash string
	jwtSecret    string
	ttl          time.Duration
}

func NewAuthService(username, passwordHash, jwtSecret string, ttl time.Duration) *AuthService {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &AuthService{
		username:     username,
		passwordHash: passwordHash,
		jwtSecret:    jwtSecret,
		ttl:          ttl,
	}
}

func (s *AuthService) Login(username, password string) (string, time.Time, error) {
	if s.passwordHash == "" || username != s.username || !hash.CheckPassword(s.passwordHash, password) {
		return "", time.Time{}, ErrInvalidCreds
	}

	expires := time.Now().Add(s.ttl)
	token, err := jwt.GenerateToken(s.jwtSecret, username, s.ttl)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expires, nil
}
