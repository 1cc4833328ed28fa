package auth

import (
	"context"
	"strings"
	"sync"
)

// MemoryStore backs the store contracts with process memory, preserving the
// conditional-rotation semantics of the postgres store. Intended for tests
// and single-process embedding.
type MemoryStore struct {
	mu          sync.Mutex
	refresh     map[string]*RefreshToken
	credentials map[string]*Credential
	principals  map[string]*Principal
	byIdent     map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		refresh:     make(map[string]*RefreshToken),
		credentials: make(map[string]*Credential),
		principals:  make(map[string]*Principal),
		byIdent:     make(map[string]string),
	}
}

func (m *MemoryStore) RefreshTokens() RefreshTokenStore { return &memRefreshStore{m} }
func (m *MemoryStore) Principals() PrincipalStore       { return &memPrincipalStore{m} }
func (m *MemoryStore) Credentials() CredentialStore     { return &memCredentialStore{m} }

// AddPrincipal registers a principal, keyed by id and login identifier.
func (m *MemoryStore) AddPrincipal(p Principal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := p
	m.principals[p.ID] = &cp
	if ident := strings.ToLower(strings.TrimSpace(p.Identifier)); ident != "" {
		m.byIdent[ident] = p.ID
	}
}

// SetDisabled flips a principal's active flag, mimicking an external
// provisioning change.
func (m *MemoryStore) SetDisabled(principalID string, disabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.principals[principalID]; ok {
		p.Disabled = disabled
	}
}

// Principal store -----------------------------------------------------------

type memPrincipalStore struct{ m *MemoryStore }

func (s *memPrincipalStore) Find(ctx context.Context, id string) (*Principal, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	p, ok := s.m.principals[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *memPrincipalStore) FindByIdentifier(ctx context.Context, identifier string) (*Principal, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	id, ok := s.m.byIdent[strings.ToLower(strings.TrimSpace(identifier))]
	if !ok {
		return nil, ErrNotFound
	}
	p, ok := s.m.principals[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// Credential store ----------------------------------------------------------

type memCredentialStore struct{ m *MemoryStore }

func (s *memCredentialStore) FindByPrincipal(ctx context.Context, principalID string) (*Credential, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	cred, ok := s.m.credentials[principalID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *cred
	return &cp, nil
}

func (s *memCredentialStore) Save(ctx context.Context, cred *Credential) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	cp := *cred
	s.m.credentials[cred.PrincipalID] = &cp
	return nil
}

// Refresh token store -------------------------------------------------------

type memRefreshStore struct{ m *MemoryStore }

func (s *memRefreshStore) Create(ctx context.Context, rec *RefreshToken) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	cp := *rec
	s.m.refresh[rec.ID] = &cp
	return nil
}

func (s *memRefreshStore) Find(ctx context.Context, id string) (*RefreshToken, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	rec, ok := s.m.refresh[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *memRefreshStore) Revoke(ctx context.Context, id string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	rec, ok := s.m.refresh[id]
	if !ok {
		return ErrNotFound
	}
	rec.Revoked = true
	return nil
}

func (s *memRefreshStore) Rotate(ctx context.Context, oldID string, next *RefreshToken) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	old, ok := s.m.refresh[oldID]
	if !ok || old.Revoked {
		return ErrRotationConflict
	}
	old.Revoked = true
	old.ReplacedBy = next.ID
	cp := *next
	s.m.refresh[next.ID] = &cp
	return nil
}

func (s *memRefreshStore) RevokeChain(ctx context.Context, id string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for id != "" {
		rec, ok := s.m.refresh[id]
		if !ok {
			break
		}
		rec.Revoked = true
		id = rec.ReplacedBy
	}
	return nil
}

func (s *memRefreshStore) RevokeAllForPrincipal(ctx context.Context, principalID string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, rec := range s.m.refresh {
		if rec.PrincipalID == principalID {
			rec.Revoked = true
		}
	}
	return nil
}

var (
	_ RefreshTokenStore = (*memRefreshStore)(nil)
	_ CredentialStore   = (*memCredentialStore)(nil)
	_ PrincipalStore    = (*memPrincipalStore)(nil)
)
