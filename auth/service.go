package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gatekit.org/audit"
	"gatekit.org/ids"
	"gatekit.org/obs"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 14 * 24 * time.Hour
	defaultResetTTL   = 15 * time.Minute
)

// Service composes the hasher, codec, refresh store and access control
// engine into the credential and token lifecycle. It holds no mutable state
// beyond the injected stores and is safe for concurrent use.
type Service struct {
	principals  PrincipalStore
	credentials CredentialStore
	refresh     RefreshTokenStore

	hasher   Hasher
	codec    *Codec
	engine   *Engine
	throttle *throttle
	now      func() time.Time

	secret     string
	issuer     string
	cost       int
	mapping    RoleMapping
	accessTTL  time.Duration
	refreshTTL time.Duration
	resetTTL   time.Duration

	loginPerMinute int
	loginBurst     int
}

// ServiceOption configures Service behavior. All options are applied once
// at construction; the resulting configuration is immutable.
type ServiceOption func(*Service) error

// WithSigningSecret sets the server-held token signing secret (required).
func WithSigningSecret(secret string) ServiceOption {
	return func(s *Service) error {
		s.secret = strings.TrimSpace(secret)
		return nil
	}
}

// WithIssuer sets the issuer claim stamped into and required of tokens.
func WithIssuer(issuer string) ServiceOption {
	return func(s *Service) error {
		s.issuer = strings.TrimSpace(issuer)
		return nil
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.accessTTL = ttl
		}
		return nil
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
		return nil
	}
}

// WithResetTTL configures password-reset token lifetime.
func WithResetTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.resetTTL = ttl
		}
		return nil
	}
}

// WithBcryptCost configures the password hashing work factor.
func WithBcryptCost(cost int) ServiceOption {
	return func(s *Service) error {
		s.cost = cost
		return nil
	}
}

// WithRoleMapping installs the static role name to permission set mapping.
func WithRoleMapping(mapping RoleMapping) ServiceOption {
	return func(s *Service) error {
		s.mapping = mapping
		return nil
	}
}

// WithLoginRate bounds login attempts per identifier (token bucket).
// Zero values disable throttling.
func WithLoginRate(perMinute, burst int) ServiceOption {
	return func(s *Service) error {
		s.loginPerMinute = perMinute
		s.loginBurst = burst
		return nil
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewService constructs the orchestrator over the given repositories.
func NewService(principals PrincipalStore, credentials CredentialStore, refresh RefreshTokenStore, opts ...ServiceOption) (*Service, error) {
	if principals == nil || credentials == nil || refresh == nil {
		return nil, errors.New("auth: all stores are required")
	}
	svc := &Service{
		principals:  principals,
		credentials: credentials,
		refresh:     refresh,
		now:         time.Now,
		accessTTL:   defaultAccessTTL,
		refreshTTL:  defaultRefreshTTL,
		resetTTL:    defaultResetTTL,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	codec, err := NewCodec([]byte(svc.secret), svc.issuer, svc.now)
	if err != nil {
		return nil, err
	}
	svc.codec = codec
	svc.hasher = NewHasher(svc.cost)
	svc.engine = NewEngine(svc.mapping)
	svc.throttle = newThrottle(svc.loginPerMinute, svc.loginBurst, svc.now)
	return svc, nil
}

// Hasher exposes the configured password hasher, for provisioning flows that
// create credentials outside this service.
func (s *Service) Hasher() Hasher { return s.hasher }

// Engine exposes the access control engine for callers that already hold a
// verified subject.
func (s *Service) Engine() *Engine { return s.engine }

// Login verifies a password credential and issues a fresh token pair. All
// failure modes collapse into ErrInvalidCredentials so callers cannot tell
// an unknown identifier from a wrong password or a disabled principal; the
// audit log records the true reason.
func (s *Service) Login(ctx context.Context, identifier, password string) (TokenPair, error) {
	identifier = strings.TrimSpace(strings.ToLower(identifier))
	if identifier == "" || password == "" {
		obs.ObserveLogin("invalid")
		return TokenPair{}, ErrInvalidCredentials
	}
	if s.throttle != nil && !s.throttle.allow(identifier) {
		obs.ObserveLogin("throttled")
		_ = audit.LogEvent(ctx, "auth.login_throttled", map[string]any{"identifier": identifier})
		return TokenPair{}, ErrLoginThrottled
	}

	principal, err := s.principals.FindByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, s.loginFailed(ctx, identifier, "unknown_identifier")
		}
		obs.ObserveLogin("error")
		return TokenPair{}, fmt.Errorf("auth: load principal: %w", err)
	}
	cred, err := s.credentials.FindByPrincipal(ctx, principal.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, s.loginFailed(ctx, identifier, "missing_credential")
		}
		obs.ObserveLogin("error")
		return TokenPair{}, fmt.Errorf("auth: load credential: %w", err)
	}
	if err := s.hasher.Verify(password, *cred); err != nil {
		if errors.Is(err, ErrInvalidCredentialFormat) {
			obs.ObserveLogin("error")
			_ = audit.LogEvent(ctx, "auth.credential_corrupt", map[string]any{
				"principal_id": principal.ID,
			})
			return TokenPair{}, err
		}
		return TokenPair{}, s.loginFailed(ctx, identifier, "password_mismatch")
	}
	if principal.Disabled {
		return TokenPair{}, s.loginFailed(ctx, identifier, "principal_disabled")
	}

	// Upgrade the stored hash when the configured work factor changed.
	if s.hasher.NeedsRehash(*cred) {
		if upgraded, err := s.hasher.Hash(password); err == nil {
			upgraded.PrincipalID = principal.ID
			_ = s.credentials.Save(ctx, &upgraded)
		}
	}

	pair, err := s.issuePair(ctx, principal, nil)
	if err != nil {
		obs.ObserveLogin("error")
		return TokenPair{}, err
	}
	obs.ObserveLogin("ok")
	return pair, nil
}

func (s *Service) loginFailed(ctx context.Context, identifier, reason string) error {
	obs.ObserveLogin("invalid")
	_ = audit.LogEvent(ctx, "auth.login_failed", map[string]any{
		"identifier": identifier,
		"reason":     reason,
	})
	return ErrInvalidCredentials
}

// Refresh rotates the presented refresh token and issues a new pair. A
// revoked token presented again is a theft indicator: the whole rotation
// chain is revoked and ErrReuseDetected returned.
func (s *Service) Refresh(ctx context.Context, rawToken string) (TokenPair, error) {
	tokenID, secret, err := SplitRefreshToken(rawToken)
	if err != nil {
		obs.ObserveRotation("rejected")
		return TokenPair{}, ErrRefreshRejected
	}
	rec, err := s.refresh.Find(ctx, tokenID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			obs.ObserveRotation("rejected")
			return TokenPair{}, ErrRefreshRejected
		}
		obs.ObserveRotation("error")
		return TokenPair{}, fmt.Errorf("auth: load refresh token: %w", err)
	}
	if rec.Revoked {
		obs.ObserveReuse()
		obs.ObserveRotation("reuse")
		_ = audit.LogEvent(ctx, "auth.reuse_detected", map[string]any{
			"token_id":     rec.ID,
			"principal_id": rec.PrincipalID,
		})
		_ = s.refresh.RevokeChain(ctx, rec.ID)
		return TokenPair{}, ErrReuseDetected
	}
	if !s.now().Before(rec.ExpiresAt) {
		obs.ObserveRotation("rejected")
		return TokenPair{}, ErrRefreshRejected
	}
	if !CompareRefreshSecret(rec.SecretHash, secret) {
		// Correct id with a wrong secret: burn the record.
		_ = s.refresh.Revoke(ctx, rec.ID)
		obs.ObserveRotation("rejected")
		_ = audit.LogEvent(ctx, "auth.refresh_secret_mismatch", map[string]any{
			"token_id":     rec.ID,
			"principal_id": rec.PrincipalID,
		})
		return TokenPair{}, ErrRefreshRejected
	}

	principal, err := s.principals.Find(ctx, rec.PrincipalID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			obs.ObserveRotation("rejected")
			return TokenPair{}, ErrRefreshRejected
		}
		obs.ObserveRotation("error")
		return TokenPair{}, fmt.Errorf("auth: load principal: %w", err)
	}
	if principal.Disabled {
		_ = s.refresh.Revoke(ctx, rec.ID)
		obs.ObserveRotation("rejected")
		return TokenPair{}, ErrRefreshRejected
	}

	pair, err := s.issuePair(ctx, principal, rec)
	if err != nil {
		if errors.Is(err, ErrRotationConflict) {
			obs.ObserveRotation("rejected")
			return TokenPair{}, ErrRefreshRejected
		}
		obs.ObserveRotation("error")
		return TokenPair{}, err
	}
	obs.ObserveRotation("ok")
	return pair, nil
}

// issuePair mints an access token plus refresh record. When prev is nil the
// record is created; otherwise the pair is installed through an atomic
// rotation of prev.
func (s *Service) issuePair(ctx context.Context, principal *Principal, prev *RefreshToken) (TokenPair, error) {
	now := s.now().UTC()
	sub := Subject{
		PrincipalID: principal.ID,
		Roles:       principal.Roles,
		Overrides:   principal.Overrides,
	}
	access, accessExp, err := s.codec.IssueAccessToken(principal.ID, principal.Roles, s.engine.EffectivePermissions(sub), s.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	raw, hash, err := NewRefreshSecret()
	if err != nil {
		return TokenPair{}, err
	}
	rec := &RefreshToken{
		ID:          ids.New(),
		PrincipalID: principal.ID,
		SecretHash:  hash,
		IssuedAt:    now,
		ExpiresAt:   now.Add(s.refreshTTL),
	}
	if prev == nil {
		err = s.refresh.Create(ctx, rec)
	} else {
		err = s.refresh.Rotate(ctx, prev.ID, rec)
	}
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     FormatRefreshToken(rec.ID, raw),
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: rec.ExpiresAt,
	}, nil
}

// AuthorizeRequest verifies a bearer access token and evaluates the required
// permission against its claims snapshot. ErrTokenExpired is a recoverable
// condition: callers should run the refresh flow instead of failing the
// request. Because tokens are stateless, role or disabled-flag changes made
// after issuance take effect only on the next issuance.
func (s *Service) AuthorizeRequest(ctx context.Context, tokenString, permission string) (AccessDecision, error) {
	claims, err := s.codec.VerifyAccessToken(tokenString)
	switch {
	case err == nil:
	case errors.Is(err, ErrTokenExpired):
		obs.ObserveTokenVerification("expired")
		return AccessDecision{Reason: DenyTokenExpired}, err
	case errors.Is(err, ErrTokenWrongType):
		obs.ObserveTokenVerification("wrong_type")
		return AccessDecision{}, err
	default:
		// Malformed or tampered: a security event, never retried.
		obs.ObserveTokenVerification("invalid")
		_ = audit.LogEvent(ctx, "auth.token_rejected", map[string]any{
			"error": err.Error(),
		})
		return AccessDecision{}, err
	}
	obs.ObserveTokenVerification("ok")
	return s.engine.Authorize(SubjectFromClaims(claims), permission), nil
}

// Logout revokes a refresh record. It is idempotent: revoking an
// already-revoked or purged record succeeds.
func (s *Service) Logout(ctx context.Context, tokenID string) error {
	err := s.refresh.Revoke(ctx, tokenID)
	if err == nil || errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// LogoutAll revokes every refresh record for a principal.
func (s *Service) LogoutAll(ctx context.Context, principalID string) error {
	return s.refresh.RevokeAllForPrincipal(ctx, principalID)
}

// ChangePassword replaces a principal's credential after verifying the
// current password, then revokes all outstanding refresh records.
func (s *Service) ChangePassword(ctx context.Context, principalID, current, next string) error {
	cred, err := s.credentials.FindByPrincipal(ctx, principalID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrInvalidCredentials
		}
		return fmt.Errorf("auth: load credential: %w", err)
	}
	if err := s.hasher.Verify(current, *cred); err != nil {
		return err
	}
	return s.setPassword(ctx, principalID, next, "auth.password_changed")
}

// IssuePasswordResetToken mints a short-lived reset token for the principal
// behind the identifier. Unknown or disabled identifiers fail with
// ErrInvalidCredentials to avoid enumeration.
func (s *Service) IssuePasswordResetToken(ctx context.Context, identifier string) (string, error) {
	principal, err := s.principals.FindByIdentifier(ctx, strings.TrimSpace(strings.ToLower(identifier)))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("auth: load principal: %w", err)
	}
	if principal.Disabled {
		return "", ErrInvalidCredentials
	}
	token, _, err := s.codec.IssuePasswordResetToken(principal.ID, s.resetTTL)
	return token, err
}

// ResetPassword validates a reset token and installs a new credential.
func (s *Service) ResetPassword(ctx context.Context, resetToken, next string) error {
	claims, err := s.codec.VerifyPasswordResetToken(resetToken)
	if err != nil {
		return err
	}
	return s.setPassword(ctx, claims.Subject, next, "auth.password_reset")
}

func (s *Service) setPassword(ctx context.Context, principalID, password, event string) error {
	cred, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}
	cred.PrincipalID = principalID
	if err := s.credentials.Save(ctx, &cred); err != nil {
		return fmt.Errorf("auth: save credential: %w", err)
	}
	// A password change invalidates every live session.
	_ = s.refresh.RevokeAllForPrincipal(ctx, principalID)
	_ = audit.LogEvent(ctx, event, map[string]any{"principal_id": principalID})
	return nil
}
