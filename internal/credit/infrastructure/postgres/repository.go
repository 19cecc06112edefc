package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	credit "energy-exchange/internal/credit/domain"
	"energy-exchange/internal/platform/pgutil"
)

const defaultLedgerTable = "credit_ledger"

// singletonKey pins the one ledger row.
const singletonKey = "default"

// LedgerRepository persists the ledger state in Postgres.
type LedgerRepository struct {
	db    *sql.DB
	table string
}

// RepositoryOption configures the repository.
type RepositoryOption func(*LedgerRepository)

// WithTable overrides the default table.
func WithTable(table string) RepositoryOption {
	return func(repo *LedgerRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// NewLedgerRepository constructs a repository.
func NewLedgerRepository(db *sql.DB, opts ...RepositoryOption) *LedgerRepository {
	repo := &LedgerRepository{db: db, table: defaultLedgerTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// Get loads the ledger state.
func (r *LedgerRepository) Get(ctx context.Context) (*credit.LedgerState, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("credit repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT authority, asset, decimals, name, symbol, total_supply::text, created_at, updated_at
FROM %s
WHERE id = $1`, r.table)

	var (
		authority, asset, name, symbol string
		decimals                       int
		supply                         pgutil.Uint64
		createdAt, updatedAt           time.Time
	)
	err := r.db.QueryRowContext(ctx, query, singletonKey).Scan(&authority, &asset, &decimals, &name, &symbol, &supply, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("credit repo: get: %w", err)
	}
	return credit.RestoreLedgerState(authority, asset, uint8(decimals), name, symbol, supply.V, createdAt, updatedAt), nil
}

// Create inserts the genesis row; a second insert fails ErrAlreadyInitialized.
func (r *LedgerRepository) Create(ctx context.Context, state *credit.LedgerState) error {
	if r == nil || r.db == nil {
		return errors.New("credit repo: nil db")
	}
	if state == nil {
		return credit.ErrNilState
	}
	query := fmt.Sprintf(`
INSERT INTO %s (id, authority, asset, decimals, name, symbol, total_supply, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8, $9)
ON CONFLICT (id) DO NOTHING`, r.table)
	res, err := r.db.ExecContext(ctx, query,
		singletonKey, state.Authority(), state.Asset(), int(state.Decimals()), state.Name(), state.Symbol(),
		pgutil.Uint64Param(state.TotalSupply()), state.CreatedAt(), state.UpdatedAt())
	if err != nil {
		return fmt.Errorf("credit repo: create: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return credit.ErrAlreadyInitialized
	}
	return nil
}

// Save writes the current supply.
func (r *LedgerRepository) Save(ctx context.Context, state *credit.LedgerState) error {
	if r == nil || r.db == nil {
		return errors.New("credit repo: nil db")
	}
	if state == nil {
		return credit.ErrNilState
	}
	query := fmt.Sprintf(`
UPDATE %s
SET total_supply = $2::numeric, updated_at = $3
WHERE id = $1`, r.table)
	res, err := r.db.ExecContext(ctx, query, singletonKey, pgutil.Uint64Param(state.TotalSupply()), state.UpdatedAt())
	if err != nil {
		return fmt.Errorf("credit repo: save: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return credit.ErrNotInitialized
	}
	return nil
}
