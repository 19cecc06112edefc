package application

import "time"

// LedgerInitialized is emitted once at genesis.
type LedgerInitialized struct {
	Authority  string
	Asset      string
	Decimals   uint8
	Name       string
	Symbol     string
	OccurredAt time.Time
}

// EnergyProduced is emitted when credits are minted against production.
type EnergyProduced struct {
	User           string
	MeterID        string
	EnergyProduced uint64
	CreditsMinted  uint64
	OccurredAt     time.Time
}

// EnergyConsumed is emitted when credits are burned against consumption.
type EnergyConsumed struct {
	User           string
	MeterID        string
	EnergyConsumed uint64
	CreditsBurned  uint64
	OccurredAt     time.Time
}

// CreditsTransferred is emitted when credits move between holders.
type CreditsTransferred struct {
	From       string
	To         string
	Amount     uint64
	OccurredAt time.Time
}
