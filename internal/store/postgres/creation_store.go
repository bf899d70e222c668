package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/predictswipe/predictd/internal/domain"
)

// CreationStore implements domain.CreationStore using PostgreSQL.
type CreationStore struct {
	pool *pgxpool.Pool
}

// NewCreationStore creates a new CreationStore backed by the given connection pool.
func NewCreationStore(pool *pgxpool.Pool) *CreationStore {
	return &CreationStore{pool: pool}
}

var _ domain.CreationStore = (*CreationStore)(nil)

const creationSelectCols = `id, account, question, option_a, option_b, end_time,
	state, create_tx, fail_reason, created_at, updated_at`

func scanCreationRows(rows pgx.Rows) ([]domain.CreationRecord, error) {
	var recs []domain.CreationRecord
	for rows.Next() {
		var r domain.CreationRecord
		if err := rows.Scan(
			&r.ID, &r.Account, &r.Question, &r.OptionA, &r.OptionB, &r.EndTime,
			&r.State, &r.CreateTx, &r.FailReason, &r.CreatedAt, &r.UpdatedAt,
		); err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// Insert persists a new creation record.
func (s *CreationStore) Insert(ctx context.Context, rec domain.CreationRecord) error {
	const query = `
		INSERT INTO market_creations (
			id, account, question, option_a, option_b, end_time,
			state, create_tx, fail_reason, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := s.pool.Exec(ctx, query,
		rec.ID, rec.Account, rec.Question, rec.OptionA, rec.OptionB, rec.EndTime,
		rec.State, rec.CreateTx, rec.FailReason, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert creation %s: %w", rec.ID, err)
	}
	return nil
}

// Update overwrites the mutable fields of an existing creation record.
func (s *CreationStore) Update(ctx context.Context, rec domain.CreationRecord) error {
	const query = `
		UPDATE market_creations SET
			state = $2, create_tx = $3, fail_reason = $4, updated_at = $5
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		rec.ID, rec.State, rec.CreateTx, rec.FailReason, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update creation %s: %w", rec.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: update creation %s: %w", rec.ID, domain.ErrNotFound)
	}
	return nil
}

// List returns creation records for an account, newest first. An empty
// account matches all accounts.
func (s *CreationStore) List(ctx context.Context, account string, opts domain.ListOpts) ([]domain.CreationRecord, error) {
	query := `SELECT ` + creationSelectCols + ` FROM market_creations WHERE 1=1`
	args := []any{}
	argIdx := 1

	if account != "" {
		query += fmt.Sprintf(" AND account = $%d", argIdx)
		args = append(args, account)
		argIdx++
	}
	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list creations: %w", err)
	}
	defer rows.Close()

	recs, err := scanCreationRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan creations: %w", err)
	}
	return recs, nil
}
