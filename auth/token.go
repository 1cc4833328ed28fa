package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token type tags embedded in signed tokens. A token presented where a
// different type is expected is rejected with ErrTokenWrongType.
const (
	TokenTypeAccess        = "access"
	TokenTypePasswordReset = "password_reset"
)

// AccessClaims are the signed, tamper-evident contents of an access token.
// The role/permission snapshot is fixed at issuance; role changes take
// effect on the next issuance, never retroactively.
type AccessClaims struct {
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	TokenType   string   `json:"token_type"`
	jwt.RegisteredClaims
}

// Codec signs and verifies compact self-contained tokens (HS256 JWTs) and
// generates refresh secrets. The signing secret is injected at construction
// and immutable afterwards.
type Codec struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewCodec builds a Codec from a server-held signing secret. The secret must
// be at least 32 bytes. A nil clock defaults to time.Now.
func NewCodec(secret []byte, issuer string, now func() time.Time) (*Codec, error) {
	if len(secret) < 32 {
		return nil, errors.New("auth: signing secret must be at least 32 bytes")
	}
	if now == nil {
		now = time.Now
	}
	return &Codec{secret: secret, issuer: issuer, now: now}, nil
}

// IssueAccessToken signs an access token carrying the principal's role and
// permission snapshot.
func (c *Codec) IssueAccessToken(principalID string, roles, permissions []string, ttl time.Duration) (string, time.Time, error) {
	return c.issue(principalID, roles, permissions, TokenTypeAccess, ttl)
}

// IssuePasswordResetToken signs a short-lived token usable only for a
// password reset.
func (c *Codec) IssuePasswordResetToken(principalID string, ttl time.Duration) (string, time.Time, error) {
	return c.issue(principalID, nil, nil, TokenTypePasswordReset, ttl)
}

func (c *Codec) issue(principalID string, roles, permissions []string, tokenType string, ttl time.Duration) (string, time.Time, error) {
	principalID = strings.TrimSpace(principalID)
	if principalID == "" {
		return "", time.Time{}, errors.New("auth: principal id is required")
	}
	if ttl <= 0 {
		return "", time.Time{}, errors.New("auth: ttl must be greater than zero")
	}
	now := c.now().UTC()
	exp := now.Add(ttl)
	claims := AccessClaims{
		Roles:       roles,
		Permissions: permissions,
		TokenType:   tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   principalID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, exp, nil
}

// VerifyAccessToken validates framing, signature, expiry and type, in that
// order, and returns the embedded claims. Each failure maps to exactly one
// of ErrTokenMalformed, ErrTokenBadSignature, ErrTokenExpired or
// ErrTokenWrongType.
func (c *Codec) VerifyAccessToken(tokenString string) (*AccessClaims, error) {
	return c.verify(tokenString, TokenTypeAccess)
}

// VerifyPasswordResetToken validates a password-reset token.
func (c *Codec) VerifyPasswordResetToken(tokenString string) (*AccessClaims, error) {
	return c.verify(tokenString, TokenTypePasswordReset)
}

func (c *Codec) verify(tokenString, wantType string) (*AccessClaims, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return nil, ErrTokenMalformed
	}
	parsed, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return c.secret, nil
	}, jwt.WithTimeFunc(c.now))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrTokenMalformed
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrTokenBadSignature
		case errors.Is(err, jwt.ErrTokenUnverifiable):
			return nil, ErrTokenBadSignature
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		default:
			return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
		}
	}
	claims, ok := parsed.Claims.(*AccessClaims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenMalformed
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrTokenMalformed
	}
	// A token minted for a different deployment is treated as a
	// signature-level failure, not a type mismatch.
	if c.issuer != "" && claims.Issuer != c.issuer {
		return nil, ErrTokenBadSignature
	}
	if claims.TokenType != wantType {
		return nil, ErrTokenWrongType
	}
	return claims, nil
}

// NewRefreshSecret generates a high-entropy refresh secret and the one-way
// hash under which it is persisted. Only the hash ever reaches the store.
func NewRefreshSecret() (raw, hash string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("auth: generate refresh secret: %w", err)
	}
	raw = base64.RawURLEncoding.EncodeToString(buf)
	return raw, HashRefreshSecret(raw), nil
}

// HashRefreshSecret derives the stored hash for a raw refresh secret.
func HashRefreshSecret(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// CompareRefreshSecret reports whether a raw secret matches a stored hash
// using a constant-time comparison.
func CompareRefreshSecret(storedHash, raw string) bool {
	derived := HashRefreshSecret(raw)
	if len(storedHash) != len(derived) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(storedHash), []byte(derived)) == 1
}

// FormatRefreshToken assembles the wire form of a refresh token. The record
// id allows direct lookup; the secret is verified against the stored hash.
func FormatRefreshToken(tokenID, secret string) string {
	return tokenID + "." + secret
}

// SplitRefreshToken splits the wire form back into record id and secret.
func SplitRefreshToken(raw string) (tokenID, secret string, err error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", errors.New("auth: invalid refresh token format")
	}
	return parts[0], parts[1], nil
}
