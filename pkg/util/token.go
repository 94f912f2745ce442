package util

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"io"
)

// ResetTokenBytes is the entropy of a reset token before hex encoding.
const ResetTokenBytes = 32

// GenerateResetToken returns a hex encoded token read from crypto/rand.
func GenerateResetToken() (string, error) {
	return generateToken(rand.Reader, ResetTokenBytes)
}

func generateToken(r io.Reader, n int) (string, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// HashResetToken is the digest persisted in place of the token itself.
func HashResetToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
