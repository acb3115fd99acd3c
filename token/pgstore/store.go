// Package pgstore provides a PostgreSQL-backed token store.
//
// Rows live in a single "tokens" table created by the embedded goose
// migrations. Expired rows are ignored by every lookup and removed by
// PurgeExpired.
package pgstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/tokenauth/token"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// DBTX is the subset of database/sql used by the store.
// Both *sql.DB and *sql.Tx satisfy this interface.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements the token store contract over PostgreSQL.
type Store struct {
	db  DBTX
	now func() time.Time
}

// New constructs a store bound to db.
func New(db DBTX) *Store {
	return &Store{db: db, now: time.Now}
}

// Open connects to dsn through the pgx stdlib driver and verifies the
// connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", token.ErrStoreUnavailable, err)
	}
	return db, nil
}

// Migrate applies the embedded schema migrations.
func Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("migration error: %w", err)
	}
	return nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", token.ErrStoreUnavailable, err)
}

// Insert stores t, assigning a new ID when t.ID is empty. A row with the same
// value is overwritten.
func (s *Store) Insert(ctx context.Context, t *token.Token) (string, error) {
	if t == nil || !t.Type.Persisted() {
		return "", token.ErrUnsupportedType
	}
	if !t.ExpiresAt.After(s.now()) {
		return "", token.ErrAlreadyExpired
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}

	query := `
		INSERT INTO tokens (id, value, subject_id, type, expires_at, blacklisted)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (value) DO UPDATE SET
			id = EXCLUDED.id,
			subject_id = EXCLUDED.subject_id,
			type = EXCLUDED.type,
			expires_at = EXCLUDED.expires_at,
			blacklisted = EXCLUDED.blacklisted
	`
	if _, err := s.db.ExecContext(ctx, query, t.ID, t.Value, t.SubjectID, string(t.Type), t.ExpiresAt.UTC(), t.Blacklisted); err != nil {
		return "", unavailable(err)
	}
	return t.ID, nil
}

// FindActive returns the unexpired row matching value, type and subject,
// blacklisted or not.
func (s *Store) FindActive(ctx context.Context, value string, typ token.Type, subjectID string) (*token.Token, error) {
	query := `
		SELECT id, expires_at, blacklisted
		FROM tokens
		WHERE value = $1 AND type = $2 AND subject_id = $3 AND expires_at > $4
	`
	row := &token.Token{Value: value, Type: typ, SubjectID: subjectID}
	err := s.db.QueryRowContext(ctx, query, value, string(typ), subjectID, s.now().UTC()).
		Scan(&row.ID, &row.ExpiresAt, &row.Blacklisted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, token.ErrNotFound
		}
		return nil, unavailable(err)
	}
	return row, nil
}

// Consume deletes and returns the matching row in one statement unless it is
// blacklisted. Blacklisted rows are never un-flagged, so the follow-up lookup
// that distinguishes blacklisted from missing cannot race a consume.
func (s *Store) Consume(ctx context.Context, value string, typ token.Type, subjectID string) (*token.Token, error) {
	if !typ.Persisted() {
		return nil, token.ErrUnsupportedType
	}

	query := `
		DELETE FROM tokens
		WHERE value = $1 AND type = $2 AND subject_id = $3 AND expires_at > $4 AND NOT blacklisted
		RETURNING id, expires_at
	`
	row := &token.Token{Value: value, Type: typ, SubjectID: subjectID}
	err := s.db.QueryRowContext(ctx, query, value, string(typ), subjectID, s.now().UTC()).
		Scan(&row.ID, &row.ExpiresAt)
	if err == nil {
		return row, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, unavailable(err)
	}

	existing, err := s.FindActive(ctx, value, typ, subjectID)
	if err != nil {
		return nil, err
	}
	if existing.Blacklisted {
		return existing, token.ErrBlacklisted
	}
	return nil, token.ErrNotFound
}

// DeleteAllForSubject removes the subject's rows of the given types, or of
// every type when none are given. Blacklisted rows stay until purged.
func (s *Store) DeleteAllForSubject(ctx context.Context, subjectID string, types ...token.Type) (int, error) {
	args := []any{subjectID}
	query := `DELETE FROM tokens WHERE subject_id = $1 AND NOT blacklisted`
	if len(types) > 0 {
		placeholders := make([]string, 0, len(types))
		for _, t := range types {
			if !t.Persisted() {
				return 0, token.ErrUnsupportedType
			}
			args = append(args, string(t))
			placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
		}
		query += ` AND type IN (` + strings.Join(placeholders, ", ") + `)`
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, unavailable(err)
	}
	return int(n), nil
}

// MarkBlacklisted flags the row for value. Missing rows are ignored.
func (s *Store) MarkBlacklisted(ctx context.Context, value string) error {
	query := `
		UPDATE tokens SET blacklisted = TRUE
		WHERE value = $1
	`
	if _, err := s.db.ExecContext(ctx, query, value); err != nil {
		return unavailable(err)
	}
	return nil
}

// Delete removes the row for value and reports whether one existed.
func (s *Store) Delete(ctx context.Context, value string) (bool, error) {
	query := `
		DELETE FROM tokens
		WHERE value = $1
	`
	res, err := s.db.ExecContext(ctx, query, value)
	if err != nil {
		return false, unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, unavailable(err)
	}
	return n > 0, nil
}

// PurgeExpired removes every row whose expiry has passed.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	query := `
		DELETE FROM tokens
		WHERE expires_at <= $1
	`
	res, err := s.db.ExecContext(ctx, query, s.now().UTC())
	if err != nil {
		return 0, unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

// Ping reports database reachability and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.db.QueryRowContext(ctx, `SELECT 1`).Scan(new(int)); err != nil {
		return time.Since(start), unavailable(err)
	}
	return time.Since(start), nil
}
