package memory

import (
	"context"
	"sync"

	credit "energy-exchange/internal/credit/domain"
)

// LedgerRepository keeps the ledger state in memory.
type LedgerRepository struct {
	mu    sync.RWMutex
	state *credit.LedgerState
}

// NewLedgerRepository constructs a repository.
func NewLedgerRepository() *LedgerRepository {
	return &LedgerRepository{}
}

// Get returns a copy of the state, or nil if none exists.
func (r *LedgerRepository) Get(ctx context.Context) (*credit.LedgerState, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.Clone(), nil
}

// Create stores the genesis state once.
func (r *LedgerRepository) Create(ctx context.Context, state *credit.LedgerState) error {
	_ = ctx
	if state == nil {
		return credit.ErrNilState
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != nil {
		return credit.ErrAlreadyInitialized
	}
	r.state = state.Clone()
	return nil
}

// Save overwrites the stored state.
func (r *LedgerRepository) Save(ctx context.Context, state *credit.LedgerState) error {
	_ = ctx
	if state == nil {
		return credit.ErrNilState
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == nil {
		return credit.ErrNotInitialized
	}
	r.state = state.Clone()
	return nil
}
