// Package credential hashes passwords and issues and decodes bearer tokens.
package credential

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// BcryptHasher hashes passwords with bcrypt.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher returns a hasher using cost, or bcrypt.DefaultCost when cost
// is outside bcrypt's accepted range.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

func (h *BcryptHasher) Hash(plain string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

// Verify reports whether plain matches digest. Malformed digests never match.
func (h *BcryptHasher) Verify(digest, plain string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(digest), []byte(plain))
	return err == nil && !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword)
}
