package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/mapleaiorg/substrate/pkg/commitment"
)

// PostgresStore is the production Store: it leans on Postgres-specific
// features the generic SQLStore avoids — a server-assigned sequence, typed
// unique-violation errors, and JSONB columns for the immutable documents.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an opened Postgres handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS commitments (
	commitment_id TEXT PRIMARY KEY,
	sequence      BIGSERIAL,
	declaration   JSONB NOT NULL,
	decision_card JSONB,
	status        TEXT NOT NULL,
	outcome       TEXT,
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS commitments_status_idx ON commitments (status);
`

// Init creates the schema if it does not exist.
func (s *PostgresStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, postgresSchema)
	return err
}

func (s *PostgresStore) Create(ctx context.Context, rec Record) error {
	query := `
		INSERT INTO commitments (commitment_id, declaration, decision_card, status, outcome, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	var card any
	if len(rec.DecisionCard) > 0 {
		card = string(rec.DecisionCard)
	}
	_, err := s.db.ExecContext(ctx, query,
		rec.CommitmentID, string(rec.Declaration), card,
		string(rec.Status), rec.Outcome, rec.CreatedAt, rec.UpdatedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrDuplicate, rec.CommitmentID)
	}
	return err
}

func (s *PostgresStore) Get(ctx context.Context, commitmentID string) (Record, error) {
	query := `
		SELECT commitment_id, sequence, declaration, decision_card, status, outcome, created_at, updated_at
		FROM commitments
		WHERE commitment_id = $1
	`
	return scanRecord(s.db.QueryRowContext(ctx, query, commitmentID))
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, commitmentID string, from, to commitment.Status, outcome string, at time.Time) error {
	query := `
		UPDATE commitments
		SET status = $1, outcome = $2, updated_at = $3
		WHERE commitment_id = $4 AND status = $5
	`
	res, err := s.db.ExecContext(ctx, query, string(to), outcome, at, commitmentID, string(from))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, getErr := s.Get(ctx, commitmentID); errors.Is(getErr, ErrNotFound) {
			return getErr
		}
		return fmt.Errorf("%w: commitment %s is not %s", ErrConflict, commitmentID, from)
	}
	return nil
}

func (s *PostgresStore) AttachDecision(ctx context.Context, commitmentID string, card json.RawMessage, at time.Time) error {
	query := `
		UPDATE commitments
		SET decision_card = $1, updated_at = $2
		WHERE commitment_id = $3 AND decision_card IS NULL
	`
	res, err := s.db.ExecContext(ctx, query, string(card), at, commitmentID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, getErr := s.Get(ctx, commitmentID); errors.Is(getErr, ErrNotFound) {
			return getErr
		}
		return fmt.Errorf("%w: commitment %s already has a decision card", ErrConflict, commitmentID)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, status commitment.Status, limit int) ([]Record, error) {
	query := `
		SELECT commitment_id, sequence, declaration, decision_card, status, outcome, created_at, updated_at
		FROM commitments
	`
	var args []any
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(status))
	}
	query += ` ORDER BY sequence ASC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Record
	for rows.Next() {
		rec, err := scanRecordRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
