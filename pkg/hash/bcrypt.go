package hash

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// bcrypt учитывает только первые 72 байта пароля
const MaxPasswordLen = 72

var (
	ErrEmptyPassword   = errors.New("password is empty")
	ErrPasswordTooLong = errors.New("password is longer than 72 bytes")
)

// HashPassword хэш для OPERATOR_PASSWORD_HASH. cost <= 0 означает bcrypt.DefaultCost.
func HashPassword(p string, cost int) (string, error) {
	switch {
	case p == "":
		return "", ErrEmptyPassword
	case len(p) > MaxPasswordLen:
		return "", ErrPasswordTooLong
	}
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(p), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func CheckPassword(hashed, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain)) == nil
}
