package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PGStore backs the store contracts with PostgreSQL. Expected tables:
//
//	principals(id, identifier, roles jsonb, overrides jsonb, disabled)
//	credentials(principal_id, hash, algorithm, cost, updated_at)
//	refresh_tokens(id, principal_id, secret_hash, issued_at, expires_at,
//	               revoked, replaced_by)
//
// Schema migration is owned by the consuming service.
type PGStore struct {
	db *sql.DB
}

// NewPGStore wraps an existing database handle.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

// OpenPG opens a pgx-backed pool for the given DSN.
func OpenPG(dsn string) (*PGStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &PGStore{db: db}, nil
}

func (s *PGStore) Close() error { return s.db.Close() }

func (s *PGStore) RefreshTokens() RefreshTokenStore { return &pgRefreshStore{db: s.db} }
func (s *PGStore) Principals() PrincipalStore       { return &pgPrincipalStore{db: s.db} }
func (s *PGStore) Credentials() CredentialStore     { return &pgCredentialStore{db: s.db} }

// Principal store -----------------------------------------------------------

type pgPrincipalStore struct{ db *sql.DB }

func (s *pgPrincipalStore) Find(ctx context.Context, id string) (*Principal, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, identifier, roles, overrides, disabled from principals where id=$1`, id)
	return scanPrincipal(row)
}

func (s *pgPrincipalStore) FindByIdentifier(ctx context.Context, identifier string) (*Principal, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, identifier, roles, overrides, disabled from principals where identifier=$1`, identifier)
	return scanPrincipal(row)
}

func scanPrincipal(row *sql.Row) (*Principal, error) {
	var (
		p         Principal
		roles     []byte
		overrides []byte
	)
	if err := row.Scan(&p.ID, &p.Identifier, &roles, &overrides, &p.Disabled); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	_ = json.Unmarshal(roles, &p.Roles)
	_ = json.Unmarshal(overrides, &p.Overrides)
	return &p, nil
}

// Credential store ----------------------------------------------------------

type pgCredentialStore struct{ db *sql.DB }

func (s *pgCredentialStore) FindByPrincipal(ctx context.Context, principalID string) (*Credential, error) {
	row := s.db.QueryRowContext(ctx,
		`select principal_id, hash, algorithm, cost, updated_at from credentials where principal_id=$1`,
		principalID)
	var cred Credential
	if err := row.Scan(&cred.PrincipalID, &cred.Hash, &cred.Algorithm, &cred.Cost, &cred.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &cred, nil
}

func (s *pgCredentialStore) Save(ctx context.Context, cred *Credential) error {
	_, err := s.db.ExecContext(ctx,
		`insert into credentials(principal_id, hash, algorithm, cost, updated_at)
		 values($1,$2,$3,$4,now())
		 on conflict (principal_id) do update
		 set hash=excluded.hash, algorithm=excluded.algorithm, cost=excluded.cost, updated_at=now()`,
		cred.PrincipalID, cred.Hash, cred.Algorithm, cred.Cost,
	)
	return err
}

// Refresh token store -------------------------------------------------------

type pgRefreshStore struct{ db *sql.DB }

func (s *pgRefreshStore) Create(ctx context.Context, rec *RefreshToken) error {
	_, err := s.db.ExecContext(ctx,
		`insert into refresh_tokens(id, principal_id, secret_hash, issued_at, expires_at, revoked)
		 values($1,$2,$3,$4,$5,false)`,
		rec.ID, rec.PrincipalID, rec.SecretHash, rec.IssuedAt, rec.ExpiresAt,
	)
	return err
}

func (s *pgRefreshStore) Find(ctx context.Context, id string) (*RefreshToken, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, principal_id, secret_hash, issued_at, expires_at, revoked, coalesce(replaced_by, '')
		 from refresh_tokens where id=$1`, id)
	var rec RefreshToken
	if err := row.Scan(&rec.ID, &rec.PrincipalID, &rec.SecretHash, &rec.IssuedAt,
		&rec.ExpiresAt, &rec.Revoked, &rec.ReplacedBy); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

func (s *pgRefreshStore) Revoke(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`update refresh_tokens set revoked=true where id=$1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Rotate revokes the presented record and inserts its successor in one
// transaction. The conditional update is what makes concurrent refreshes of
// the same secret resolve to exactly one winner.
func (s *pgRefreshStore) Rotate(ctx context.Context, oldID string, next *RefreshToken) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`update refresh_tokens set revoked=true, replaced_by=$2 where id=$1 and not revoked`,
		oldID, next.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRotationConflict
	}

	if _, err := tx.ExecContext(ctx,
		`insert into refresh_tokens(id, principal_id, secret_hash, issued_at, expires_at, revoked)
		 values($1,$2,$3,$4,$5,false)`,
		next.ID, next.PrincipalID, next.SecretHash, next.IssuedAt, next.ExpiresAt,
	); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *pgRefreshStore) RevokeChain(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`with recursive chain as (
		   select id, replaced_by from refresh_tokens where id=$1
		   union all
		   select rt.id, rt.replaced_by from refresh_tokens rt
		   join chain c on rt.id = c.replaced_by
		 )
		 update refresh_tokens set revoked=true where id in (select id from chain)`,
		id,
	)
	if err != nil {
		return fmt.Errorf("revoke chain: %w", err)
	}
	return nil
}

func (s *pgRefreshStore) RevokeAllForPrincipal(ctx context.Context, principalID string) error {
	_, err := s.db.ExecContext(ctx,
		`update refresh_tokens set revoked=true where principal_id=$1`, principalID)
	return err
}

var (
	_ RefreshTokenStore = (*pgRefreshStore)(nil)
	_ CredentialStore   = (*pgCredentialStore)(nil)
	_ PrincipalStore    = (*pgPrincipalStore)(nil)
)
