package auth

import (
	"golang.org/x/crypto/bcrypt"
)

// HashPassword returns the salted bcrypt hash of a password
func HashPassword(password string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
}

// CheckPassword returns true if the password matches the hash
func CheckPassword(hash []byte, password string) bool {
	return bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
}
