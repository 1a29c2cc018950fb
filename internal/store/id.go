package store

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

const (
	otpDigits         = 6
	sessionTokenBytes = 32
)

// NewID returns a fresh unique document or account id.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// validID reports whether id is usable as a caller-chosen key.
func validID(id string) bool {
	if id == "" || len(id) > 64 {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.':
		default:
			return false
		}
	}
	return id[0] != '.' && id[0] != '-'
}

// randomDigits returns a uniformly distributed numeric code.
func randomDigits(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("digit count must be > 0")
	}
	var b strings.Builder
	b.Grow(n)
	ten := big.NewInt(10)
	for i := 0; i < n; i++ {
		d, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + d.Int64()))
	}
	return b.String(), nil
}

func generateSessionToken() (string, error) {
	buf := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
