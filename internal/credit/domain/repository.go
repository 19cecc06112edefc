package credit

import "context"

// Repository persists the singleton ledger state.
type Repository interface {
	// Get returns nil, nil when the ledger was never initialized.
	Get(ctx context.Context) (*LedgerState, error)
	// Create stores a new state and fails with ErrAlreadyInitialized if one exists.
	Create(ctx context.Context, state *LedgerState) error
	// Save overwrites the supply of the existing state.
	Save(ctx context.Context, state *LedgerState) error
}
