package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const sessionColumns = `id, user_id, refresh_token_hash, refresh_jti, access_jti, family_id,
	rotated_from, device_label, client_ip, created_at, last_used_at, expires_at, revoked_at`

// PostgresStore is the durable [Store] backend. It holds a *sql.DB pool
// (pgx stdlib driver) and keeps every transactional boundary internal.
type PostgresStore struct {
	db *sql.DB
}

// Open connects to Postgres using dsn and verifies connectivity.
// Caller must call Close when done.
func Open(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStore wraps an existing database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Close releases the underlying connection pool.
func (p *PostgresStore) Close() error {
	return p.db.Close()
}

// PersistInitial writes a family-origin row.
func (p *PostgresStore) PersistInitial(ctx context.Context, s *Session) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, refresh_token_hash, refresh_jti, access_jti,
			family_id, device_label, client_ip, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		s.ID, s.UserID, s.RefreshTokenHash, s.RefreshJTI, nullStr(s.AccessJTI),
		s.FamilyID, nullStr(s.DeviceLabel), nullStr(s.ClientIP), s.CreatedAt, s.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// FindByID returns the row for id, or ErrNotFound.
func (p *PostgresStore) FindByID(ctx context.Context, id string) (*Session, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	return scanSession(row)
}

// FindActive returns the live row for refreshTokenHash, or ErrNotFound.
func (p *PostgresStore) FindActive(ctx context.Context, refreshTokenHash string) (*Session, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE refresh_token_hash = $1 AND revoked_at IS NULL AND expires_at > now()`,
		refreshTokenHash)
	return scanSession(row)
}

// Rotate atomically revokes oldID and inserts next as its child. The
// revoke-old UPDATE is guarded by revoked_at IS NULL, so under concurrent
// refreshes of the same token exactly one caller observes a row change and
// proceeds to the insert; the rest fail with ErrRotated and the transaction
// rolls back without writing anything.
func (p *PostgresStore) Rotate(ctx context.Context, oldID string, next *Session) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()

	var familyID string
	err = tx.QueryRowContext(ctx, `
		UPDATE sessions SET revoked_at = now()
		WHERE id = $1 AND revoked_at IS NULL
		RETURNING family_id`, oldID).Scan(&familyID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return p.classifyRotateMiss(ctx, oldID)
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, refresh_token_hash, refresh_jti, access_jti,
			family_id, rotated_from, device_label, client_ip, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		next.ID, next.UserID, next.RefreshTokenHash, next.RefreshJTI, nullStr(next.AccessJTI),
		familyID, oldID, nullStr(next.DeviceLabel), nullStr(next.ClientIP),
		next.CreatedAt, next.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	next.FamilyID = familyID
	next.RotatedFrom = oldID
	return nil
}

func (p *PostgresStore) classifyRotateMiss(ctx context.Context, oldID string) error {
	var exists bool
	if err := p.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM sessions WHERE id = $1)`, oldID).Scan(&exists); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if exists {
		return ErrRotated
	}
	return ErrNotFound
}

// RevokeSession marks one row revoked; repeated calls are no-ops.
func (p *PostgresStore) RevokeSession(ctx context.Context, id string) (*Session, error) {
	_, err := p.db.ExecContext(ctx,
		`UPDATE sessions SET revoked_at = now() WHERE id = $1 AND revoked_at IS NULL`, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return p.FindByID(ctx, id)
}

// RevokeFamily revokes every live row in familyID and returns them.
func (p *PostgresStore) RevokeFamily(ctx context.Context, familyID string) ([]*Session, error) {
	rows, err := p.db.QueryContext(ctx, `
		UPDATE sessions SET revoked_at = now()
		WHERE family_id = $1 AND revoked_at IS NULL
		RETURNING `+sessionColumns, familyID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return collectSessions(rows)
}

// RevokeAll revokes every live row owned by userID and returns them.
func (p *PostgresStore) RevokeAll(ctx context.Context, userID string) ([]*Session, error) {
	rows, err := p.db.QueryContext(ctx, `
		UPDATE sessions SET revoked_at = now()
		WHERE user_id = $1 AND revoked_at IS NULL
		RETURNING `+sessionColumns, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return collectSessions(rows)
}

// ListActive returns live rows for userID, newest first.
func (p *PostgresStore) ListActive(ctx context.Context, userID string) ([]*Session, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > now()
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return collectSessions(rows)
}

// TouchLastUsed records token activity on a row.
func (p *PostgresStore) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE sessions SET last_used_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// PurgeExpired deletes rows whose terminal timestamp is older than retainFor.
func (p *PostgresStore) PurgeExpired(ctx context.Context, retainFor time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retainFor)
	res, err := p.db.ExecContext(ctx, `
		DELETE FROM sessions
		WHERE COALESCE(revoked_at, expires_at) < $1 AND expires_at < now()`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(r rowScanner) (*Session, error) {
	var (
		s           Session
		accessJTI   sql.NullString
		rotatedFrom sql.NullString
		deviceLabel sql.NullString
		clientIP    sql.NullString
		lastUsedAt  sql.NullTime
		revokedAt   sql.NullTime
	)
	err := r.Scan(&s.ID, &s.UserID, &s.RefreshTokenHash, &s.RefreshJTI, &accessJTI,
		&s.FamilyID, &rotatedFrom, &deviceLabel, &clientIP,
		&s.CreatedAt, &lastUsedAt, &s.ExpiresAt, &revokedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	s.AccessJTI = accessJTI.String
	s.RotatedFrom = rotatedFrom.String
	s.DeviceLabel = deviceLabel.String
	s.ClientIP = clientIP.String
	if lastUsedAt.Valid {
		s.LastUsedAt = &lastUsedAt.Time
	}
	if revokedAt.Valid {
		s.RevokedAt = &revokedAt.Time
	}
	return &s, nil
}

func collectSessions(rows *sql.Rows) ([]*Session, error) {
	defer func() { _ = rows.Close() }()

	var out []*Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return out, nil
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
