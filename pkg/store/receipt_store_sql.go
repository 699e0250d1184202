package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mapleaiorg/substrate/pkg/executor"
)

// SQLReceiptStore is a durable executor.ReceiptStore over database/sql,
// usable with Postgres and SQLite. Receipts are append-only: the primary
// key on receipt_id makes a second Store of the same id fail.
type SQLReceiptStore struct {
	db *sql.DB
}

// NewSQLReceiptStore wraps an opened database handle.
func NewSQLReceiptStore(db *sql.DB) *SQLReceiptStore {
	return &SQLReceiptStore{db: db}
}

const receiptSchema = `
CREATE TABLE IF NOT EXISTS receipts (
	receipt_id      TEXT PRIMARY KEY,
	commitment_id   TEXT NOT NULL,
	consequence_id  TEXT NOT NULL,
	issued_at       TIMESTAMP NOT NULL,
	summary         TEXT,
	tests_passed    BIGINT NOT NULL,
	governance_tier TEXT NOT NULL,
	execution_hash  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS receipts_commitment_idx ON receipts (commitment_id);
`

// Init creates the schema if it does not exist.
func (s *SQLReceiptStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, receiptSchema)
	return err
}

func (s *SQLReceiptStore) Store(ctx context.Context, r *executor.Receipt) error {
	query := `
		INSERT INTO receipts (receipt_id, commitment_id, consequence_id, issued_at, summary, tests_passed, governance_tier, execution_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		r.ReceiptID, r.CommitmentID, r.ConsequenceID, r.IssuedAt,
		r.Summary, r.TestsPassed, string(r.GovernanceTier), r.ExecutionHash,
	)
	if err != nil && (strings.Contains(err.Error(), "duplicate key") || strings.Contains(err.Error(), "UNIQUE constraint failed")) {
		return fmt.Errorf("%w: %s", ErrReceiptExists, r.ReceiptID)
	}
	return err
}

func (s *SQLReceiptStore) Get(ctx context.Context, receiptID string) (*executor.Receipt, error) {
	query := `
		SELECT receipt_id, commitment_id, consequence_id, issued_at, summary, tests_passed, governance_tier, execution_hash
		FROM receipts
		WHERE receipt_id = $1
	`
	return s.queryOne(ctx, query, receiptID)
}

func (s *SQLReceiptStore) GetForCommitment(ctx context.Context, commitmentID string) (*executor.Receipt, error) {
	query := `
		SELECT receipt_id, commitment_id, consequence_id, issued_at, summary, tests_passed, governance_tier, execution_hash
		FROM receipts
		WHERE commitment_id = $1
	`
	return s.queryOne(ctx, query, commitmentID)
}

// List returns up to limit receipts, newest first.
func (s *SQLReceiptStore) List(ctx context.Context, limit int) ([]*executor.Receipt, error) {
	query := `
		SELECT receipt_id, commitment_id, consequence_id, issued_at, summary, tests_passed, governance_tier, execution_hash
		FROM receipts
		ORDER BY issued_at DESC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*executor.Receipt
	for rows.Next() {
		var r executor.Receipt
		var tier string
		if err := rows.Scan(&r.ReceiptID, &r.CommitmentID, &r.ConsequenceID, &r.IssuedAt, &r.Summary, &r.TestsPassed, &tier, &r.ExecutionHash); err != nil {
			return nil, err
		}
		r.GovernanceTier = executor.GovernanceTier(tier)
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *SQLReceiptStore) queryOne(ctx context.Context, query string, arg any) (*executor.Receipt, error) {
	row := s.db.QueryRowContext(ctx, query, arg)
	var r executor.Receipt
	var tier string
	err := row.Scan(&r.ReceiptID, &r.CommitmentID, &r.ConsequenceID, &r.IssuedAt, &r.Summary, &r.TestsPassed, &tier, &r.ExecutionHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReceiptNotFound
	}
	if err != nil {
		return nil, err
	}
	r.GovernanceTier = executor.GovernanceTier(tier)
	return &r, nil
}
