package auth

import "time"

// Principal is the identity of an actor as provisioned by the surrounding
// service. This core only ever reads principals.
type Principal struct {
	ID         string
	Identifier string
	Roles      []string
	Overrides  []string
	Disabled   bool
}

// Credential is a principal's stored password hash together with the
// parameters in effect when the hash was computed. Plaintext is never stored.
type Credential struct {
	PrincipalID string
	Hash        string
	Algorithm   string
	Cost        int
	UpdatedAt   time.Time
}

// RefreshToken is a persisted refresh record. It holds the one-way hash of
// the raw secret, never the secret itself.
type RefreshToken struct {
	ID          string
	PrincipalID string
	SecretHash  string
	IssuedAt    time.Time
	ExpiresAt   time.Time
	Revoked     bool
	ReplacedBy  string
}

// TokenPair represents access and refresh tokens along with their expirations.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}
