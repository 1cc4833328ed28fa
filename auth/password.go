package auth

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"gatekit.org/obs"
)

const algoBcrypt = "bcrypt"

// Hasher performs one-way password hashing with a configurable work factor.
// The cost is tunable per environment: low for test suites, high for
// production.
type Hasher struct {
	cost int
}

// NewHasher returns a Hasher using the given bcrypt cost. A zero cost
// selects the bcrypt default; out-of-range values are clamped.
func NewHasher(cost int) Hasher {
	switch {
	case cost == 0:
		cost = bcrypt.DefaultCost
	case cost < bcrypt.MinCost:
		cost = bcrypt.MinCost
	case cost > bcrypt.MaxCost:
		cost = bcrypt.MaxCost
	}
	return Hasher{cost: cost}
}

// Hash derives a Credential from a plaintext password. The salt is embedded
// in the produced hash; the recorded cost is read back from the hash so it
// always reflects hash-time parameters.
func (h Hasher) Hash(password string) (Credential, error) {
	if len(password) == 0 {
		return Credential{}, errors.New("auth: password is empty")
	}
	start := time.Now()
	raw, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	obs.TimePasswordHash(start)
	if err != nil {
		return Credential{}, fmt.Errorf("auth: hash password: %w", err)
	}
	cost, err := bcrypt.Cost(raw)
	if err != nil {
		return Credential{}, fmt.Errorf("auth: hash password: %w", err)
	}
	return Credential{Hash: string(raw), Algorithm: algoBcrypt, Cost: cost}, nil
}

// Verify compares a plaintext password with a stored Credential. It returns
// nil on match, ErrInvalidCredentials on mismatch and
// ErrInvalidCredentialFormat when the stored hash cannot be parsed.
func (h Hasher) Verify(password string, cred Credential) error {
	if cred.Algorithm != "" && cred.Algorithm != algoBcrypt {
		return fmt.Errorf("%w: unsupported algorithm %q", ErrInvalidCredentialFormat, cred.Algorithm)
	}
	err := bcrypt.CompareHashAndPassword([]byte(cred.Hash), []byte(password))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return ErrInvalidCredentials
	default:
		return fmt.Errorf("%w: %v", ErrInvalidCredentialFormat, err)
	}
}

// NeedsRehash reports whether the stored hash was computed with a cost
// different from the configured one, so callers can upgrade it after a
// successful verification.
func (h Hasher) NeedsRehash(cred Credential) bool {
	cost, err := bcrypt.Cost([]byte(cred.Hash))
	if err != nil {
		return false
	}
	return cost != h.cost
}
