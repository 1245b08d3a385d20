package domain

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// RandomSource produces cryptographically secure random bytes.
type RandomSource interface {
	RandomBytes(n int) ([]byte, error)
}

// CryptoRandom reads from crypto/rand.
type CryptoRandom struct{}

func (CryptoRandom) RandomBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// RandomHex returns n random bytes from src, hex encoded.
func RandomHex(src RandomSource, n int) (string, error) {
	buf, err := src.RandomBytes(n)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
