package auth

import "context"

// RefreshTokenStore manages persisted refresh records. Implementations own
// the records exclusively; the raw secret never reaches a store.
type RefreshTokenStore interface {
	Create(ctx context.Context, rec *RefreshToken) error
	Find(ctx context.Context, id string) (*RefreshToken, error)

	// Revoke marks a record revoked. Revoking an already-revoked record is
	// a no-op success; a missing record returns ErrNotFound.
	Revoke(ctx context.Context, id string) error

	// Rotate atomically revokes the old record, points it at its successor
	// and inserts the successor. It returns ErrRotationConflict when the
	// old record is already revoked or missing, guaranteeing at most one
	// successful rotation per refresh secret under concurrency.
	Rotate(ctx context.Context, oldID string, next *RefreshToken) error

	// RevokeChain revokes the record and every descendant reachable through
	// replaced-by pointers.
	RevokeChain(ctx context.Context, id string) error

	RevokeAllForPrincipal(ctx context.Context, principalID string) error
}

// CredentialStore is the external credential repository this core calls.
type CredentialStore interface {
	FindByPrincipal(ctx context.Context, principalID string) (*Credential, error)
	Save(ctx context.Context, cred *Credential) error
}

// PrincipalStore is the external principal repository this core calls.
type PrincipalStore interface {
	Find(ctx context.Context, id string) (*Principal, error)
	FindByIdentifier(ctx context.Context, identifier string) (*Principal, error)
}
