// Package ordercode generates the human-facing order codes.
package ordercode

import (
	"context"
	"crypto/rand"
	"math/big"

	"github.com/pkg/errors"
)

const (
	alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	length   = 6

	maxAttempts = 100
)

// Exists reports whether a code is already taken.
type Exists func(ctx context.Context, code string) (bool, error)

// New returns a random 6-character uppercase code.
func New() (string, error) {
	buf := make([]byte, length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
		if err != nil {
			return "", err
		}
		buf[i] = alphabet[n.Int64()]
	}
	return string(buf), nil
}

// NewUnique generates a code that exists() rejects, giving up after a
// bounded number of attempts so a saturated code space fails loudly
// instead of spinning.
func NewUnique(ctx context.Context, exists Exists) (string, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		code, err := New()
		if err != nil {
			return "", err
		}
		taken, err := exists(ctx, code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
	return "", errors.New("failed to generate a unique order code")
}
