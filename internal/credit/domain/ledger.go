package credit

import (
	"time"

	"energy-exchange/internal/amount"
)

const (
	// MaxNameLen bounds the display name in bytes.
	MaxNameLen = 32
	// MaxSymbolLen bounds the ticker symbol in bytes.
	MaxSymbolLen = 8
)

// LedgerState is the process-wide credit supply record.
// total supply changes only through Mint and Burn.
type LedgerState struct {
	authority   string
	asset       string
	decimals    uint8
	name        string
	symbol      string
	totalSupply uint64
	createdAt   time.Time
	updatedAt   time.Time
}

// NewLedgerState creates a genesis ledger state with zero supply.
func NewLedgerState(authority, asset string, decimals uint8, name, symbol string, now time.Time) (*LedgerState, error) {
	if authority == "" {
		return nil, ErrInvalidAuthority
	}
	if asset == "" {
		return nil, ErrInvalidAsset
	}
	if name == "" || len(name) > MaxNameLen {
		return nil, ErrInvalidName
	}
	if symbol == "" || len(symbol) > MaxSymbolLen {
		return nil, ErrInvalidSymbol
	}
	return &LedgerState{
		authority: authority,
		asset:     asset,
		decimals:  decimals,
		name:      name,
		symbol:    symbol,
		createdAt: now.UTC(),
		updatedAt: now.UTC(),
	}, nil
}

// RestoreLedgerState rebuilds a persisted ledger state.
func RestoreLedgerState(authority, asset string, decimals uint8, name, symbol string, totalSupply uint64, createdAt, updatedAt time.Time) *LedgerState {
	return &LedgerState{
		authority:   authority,
		asset:       asset,
		decimals:    decimals,
		name:        name,
		symbol:      symbol,
		totalSupply: totalSupply,
		createdAt:   createdAt.UTC(),
		updatedAt:   updatedAt.UTC(),
	}
}

// Mint increases total supply by value.
func (s *LedgerState) Mint(value uint64, now time.Time) error {
	if value == 0 {
		return ErrInvalidAmount
	}
	next, err := amount.Add(s.totalSupply, value)
	if err != nil {
		return ErrOverflow
	}
	s.totalSupply = next
	s.updatedAt = now.UTC()
	return nil
}

// Burn decreases total supply by value.
func (s *LedgerState) Burn(value uint64, now time.Time) error {
	if value == 0 {
		return ErrInvalidAmount
	}
	next, err := amount.Sub(s.totalSupply, value)
	if err != nil {
		return ErrInsufficientSupply
	}
	s.totalSupply = next
	s.updatedAt = now.UTC()
	return nil
}

// IsAuthority reports whether account administers the ledger.
func (s *LedgerState) IsAuthority(account string) bool {
	return account != "" && account == s.authority
}

// Authority returns the administering account.
func (s *LedgerState) Authority() string { return s.authority }

// Asset returns the token asset id.
func (s *LedgerState) Asset() string { return s.asset }

// Decimals returns the display precision.
func (s *LedgerState) Decimals() uint8 { return s.decimals }

// Name returns the display name.
func (s *LedgerState) Name() string { return s.name }

// Symbol returns the ticker symbol.
func (s *LedgerState) Symbol() string { return s.symbol }

// TotalSupply returns outstanding credits.
func (s *LedgerState) TotalSupply() uint64 { return s.totalSupply }

// CreatedAt returns the genesis time.
func (s *LedgerState) CreatedAt() time.Time { return s.createdAt }

// UpdatedAt returns the last supply change time.
func (s *LedgerState) UpdatedAt() time.Time { return s.updatedAt }

// Clone returns a detached copy.
func (s *LedgerState) Clone() *LedgerState {
	if s == nil {
		return nil
	}
	copy := *s
	return &copy
}
