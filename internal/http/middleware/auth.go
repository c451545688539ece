package middleware

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// is returned when the command PIN doesn’t match.
var ErrInvalidCredentials = errors.New("invalid pin")

// uses bcrypt to hash the command PIN once at boot.
func HashPIN(plain string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	return string(bytes), err
}

// compares a bcrypt hash with the plaintext.
func CheckPIN(hash, plain string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
	return err == nil
}
