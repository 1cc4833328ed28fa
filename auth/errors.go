package auth

import "errors"

var (
	// ErrInvalidCredentials covers unknown identifier, wrong password and
	// disabled principal alike so login failures cannot be used to
	// enumerate accounts.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrInvalidCredentialFormat indicates a stored hash that cannot be
	// parsed (corrupted data or unsupported algorithm tag).
	ErrInvalidCredentialFormat = errors.New("auth: invalid credential format")

	ErrTokenMalformed    = errors.New("auth: token malformed")
	ErrTokenBadSignature = errors.New("auth: token signature invalid")
	ErrTokenExpired      = errors.New("auth: token expired")
	ErrTokenWrongType    = errors.New("auth: wrong token type")

	ErrRefreshRejected = errors.New("auth: refresh rejected")

	// ErrReuseDetected is returned when an already-revoked refresh token is
	// presented again. Callers should treat it as a theft indicator.
	ErrReuseDetected = errors.New("auth: refresh token reuse detected")

	ErrLoginThrottled = errors.New("auth: too many login attempts")

	ErrNotFound = errors.New("auth: not found")

	// ErrRotationConflict is returned by stores when a conditional rotation
	// loses the race against a concurrent refresh of the same record.
	ErrRotationConflict = errors.New("auth: rotation conflict")
)
