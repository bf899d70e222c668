package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/predictswipe/predictd/internal/domain"
)

// BetStore implements domain.BetStore using PostgreSQL.
type BetStore struct {
	pool *pgxpool.Pool
}

// NewBetStore creates a new BetStore backed by the given connection pool.
func NewBetStore(pool *pgxpool.Pool) *BetStore {
	return &BetStore{pool: pool}
}

var _ domain.BetStore = (*BetStore)(nil)

const betSelectCols = `id, account, market_id, side, stake::text, state,
	approval_tx, purchase_tx, fail_reason, created_at, updated_at`

func scanBetRow(row pgx.Row) (domain.BetRecord, error) {
	var (
		b        domain.BetRecord
		stakeStr string
	)
	err := row.Scan(
		&b.ID, &b.Account, &b.MarketID, &b.Side, &stakeStr, &b.State,
		&b.ApprovalTx, &b.PurchaseTx, &b.FailReason, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return domain.BetRecord{}, err
	}
	stake, ok := new(big.Int).SetString(stakeStr, 10)
	if !ok {
		return domain.BetRecord{}, fmt.Errorf("postgres: bad stake value %q", stakeStr)
	}
	b.Stake = stake
	return b, nil
}

func scanBetRows(rows pgx.Rows) ([]domain.BetRecord, error) {
	var bets []domain.BetRecord
	for rows.Next() {
		b, err := scanBetRow(rows)
		if err != nil {
			return nil, err
		}
		bets = append(bets, b)
	}
	return bets, rows.Err()
}

// Insert persists a new bet record.
func (s *BetStore) Insert(ctx context.Context, bet domain.BetRecord) error {
	const query = `
		INSERT INTO bets (
			id, account, market_id, side, stake, state,
			approval_tx, purchase_tx, fail_reason, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9, $10, $11)`

	_, err := s.pool.Exec(ctx, query,
		bet.ID, bet.Account, bet.MarketID, bet.Side, bet.Stake.String(), bet.State,
		bet.ApprovalTx, bet.PurchaseTx, bet.FailReason, bet.CreatedAt, bet.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert bet %s: %w", bet.ID, err)
	}
	return nil
}

// Update overwrites the mutable fields of an existing bet record.
func (s *BetStore) Update(ctx context.Context, bet domain.BetRecord) error {
	const query = `
		UPDATE bets SET
			state = $2, approval_tx = $3, purchase_tx = $4,
			fail_reason = $5, updated_at = $6
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		bet.ID, bet.State, bet.ApprovalTx, bet.PurchaseTx,
		bet.FailReason, bet.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update bet %s: %w", bet.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: update bet %s: %w", bet.ID, domain.ErrNotFound)
	}
	return nil
}

// GetByID returns one bet record, or domain.ErrNotFound.
func (s *BetStore) GetByID(ctx context.Context, id string) (domain.BetRecord, error) {
	query := `SELECT ` + betSelectCols + ` FROM bets WHERE id = $1`
	b, err := scanBetRow(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.BetRecord{}, fmt.Errorf("postgres: get bet %s: %w", id, domain.ErrNotFound)
		}
		return domain.BetRecord{}, fmt.Errorf("postgres: get bet %s: %w", id, err)
	}
	return b, nil
}

// List returns bet records for an account, newest first, with pagination and
// optional time filtering. An empty account matches all accounts.
func (s *BetStore) List(ctx context.Context, account string, opts domain.ListOpts) ([]domain.BetRecord, error) {
	query := `SELECT ` + betSelectCols + ` FROM bets WHERE 1=1`
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
		return nil, fmt.Errorf("postgres: list bets: %w", err)
	}
	defer rows.Close()

	bets, err := scanBetRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan bets: %w", err)
	}
	return bets, nil
}

// ListBefore returns all bets created strictly before the cutoff (for archiving).
func (s *BetStore) ListBefore(ctx context.Context, cutoff time.Time) ([]domain.BetRecord, error) {
	query := `SELECT ` + betSelectCols + ` FROM bets WHERE created_at < $1 ORDER BY created_at ASC`
	rows, err := s.pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bets before: %w", err)
	}
	defer rows.Close()
	return scanBetRows(rows)
}

// DeleteBefore deletes all bets created before the cutoff. Returns the number deleted.
func (s *BetStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM bets WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete bets before: %w", err)
	}
	return tag.RowsAffected(), nil
}
