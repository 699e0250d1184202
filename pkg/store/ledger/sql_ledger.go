package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mapleaiorg/substrate/pkg/commitment"
)

// SQLStore implements Store over database/sql. It sticks to the SQL subset
// both Postgres and SQLite accept, including $N placeholders.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore wraps an opened database handle.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS commitments (
	commitment_id TEXT PRIMARY KEY,
	sequence      BIGINT NOT NULL,
	declaration   TEXT NOT NULL,
	decision_card TEXT,
	status        TEXT NOT NULL,
	outcome       TEXT,
	created_at    TIMESTAMP NOT NULL,
	updated_at    TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS commitments_status_idx ON commitments (status);
`

// Init creates the schema if it does not exist.
func (s *SQLStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *SQLStore) Create(ctx context.Context, rec Record) error {
	query := `
		INSERT INTO commitments (commitment_id, sequence, declaration, decision_card, status, outcome, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	var card any
	if len(rec.DecisionCard) > 0 {
		card = string(rec.DecisionCard)
	}
	_, err := s.db.ExecContext(ctx, query,
		rec.CommitmentID, rec.Sequence, string(rec.Declaration), card,
		string(rec.Status), rec.Outcome, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil && isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", ErrDuplicate, rec.CommitmentID)
	}
	return err
}

func (s *SQLStore) Get(ctx context.Context, commitmentID string) (Record, error) {
	query := `
		SELECT commitment_id, sequence, declaration, decision_card, status, outcome, created_at, updated_at
		FROM commitments
		WHERE commitment_id = $1
	`
	return scanRecord(s.db.QueryRowContext(ctx, query, commitmentID))
}

func (s *SQLStore) UpdateStatus(ctx context.Context, commitmentID string, from, to commitment.Status, outcome string, at time.Time) error {
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

func (s *SQLStore) AttachDecision(ctx context.Context, commitmentID string, card json.RawMessage, at time.Time) error {
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

func (s *SQLStore) List(ctx context.Context, status commitment.Status, limit int) ([]Record, error) {
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row *sql.Row) (Record, error) {
	rec, err := scanRecordRows(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return rec, err
}

func scanRecordRows(row rowScanner) (Record, error) {
	var rec Record
	var declaration string
	var card, outcome sql.NullString
	var status string
	if err := row.Scan(&rec.CommitmentID, &rec.Sequence, &declaration, &card, &status, &outcome, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return Record{}, err
	}
	rec.Declaration = []byte(declaration)
	if card.Valid {
		rec.DecisionCard = []byte(card.String)
	}
	rec.Status = commitment.Status(status)
	rec.Outcome = outcome.String
	return rec, nil
}

// isUniqueViolation recognizes primary-key violations across the drivers we
// support without importing their error types here.
func isUniqueViolation(err error) bool {
	msg := err.Error()
	for _, needle := range []string{"duplicate key", "UNIQUE constraint failed", "constraint failed"} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}
