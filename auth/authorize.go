package auth

import "sort"

// DenyReason explains a denied access decision.
type DenyReason string

const (
	DenyInsufficientRole  DenyReason = "insufficient_role"
	DenyPrincipalDisabled DenyReason = "principal_disabled"
	DenyTokenExpired      DenyReason = "token_expired"
	DenySessionRevoked    DenyReason = "session_revoked"
)

// AccessDecision is the result of an authorization check.
type AccessDecision struct {
	Allowed bool
	Reason  DenyReason
	Subject Subject
}

// Subject is the authorization view of a principal: the roles and explicit
// permission overrides a decision is evaluated against.
type Subject struct {
	PrincipalID string
	Roles       []string
	Overrides   []string
	Disabled    bool
}

// SubjectFromClaims builds a Subject from a verified token's snapshot. The
// snapshot cannot carry a disabled flag: a principal disabled after issuance
// keeps authorizing until the token expires, by the stateless-token
// trade-off documented on Service.AuthorizeRequest.
func SubjectFromClaims(claims *AccessClaims) Subject {
	return Subject{
		PrincipalID: claims.Subject,
		Roles:       claims.Roles,
		Overrides:   claims.Permissions,
	}
}

// RoleMapping is the static role name to permission set configuration.
type RoleMapping map[string][]string

// Engine evaluates a subject against a required permission. It is pure
// decision logic: deterministic, side-effect free, safe for concurrent use.
type Engine struct {
	roles RoleMapping
}

// NewEngine builds an Engine over a static role mapping.
func NewEngine(mapping RoleMapping) *Engine {
	if mapping == nil {
		mapping = RoleMapping{}
	}
	return &Engine{roles: mapping}
}

// Authorize decides whether the subject may perform the operation guarded by
// the required permission. Disabled subjects are denied before any
// permission evaluation.
func (e *Engine) Authorize(sub Subject, permission string) AccessDecision {
	if sub.Disabled {
		return AccessDecision{Reason: DenyPrincipalDisabled, Subject: sub}
	}
	if _, ok := e.effectiveSet(sub)[permission]; ok {
		return AccessDecision{Allowed: true, Subject: sub}
	}
	return AccessDecision{Reason: DenyInsufficientRole, Subject: sub}
}

// EffectivePermissions returns the subject's permission set, sorted: the
// union of its roles' permissions plus explicit overrides. Roles compose by
// flat union only; there is no hierarchy or wildcard inheritance.
func (e *Engine) EffectivePermissions(sub Subject) []string {
	set := e.effectiveSet(sub)
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (e *Engine) effectiveSet(sub Subject) map[string]struct{} {
	set := make(map[string]struct{})
	for _, role := range sub.Roles {
		for _, p := range e.roles[role] {
			set[p] = struct{}{}
		}
	}
	for _, p := range sub.Overrides {
		set[p] = struct{}{}
	}
	return set
}
