package model

import "github.com/shopspring/decimal"

// TransferStatus is the state of an expected token deposit.
type TransferStatus string

const (
	StatusAwaitingTokens TransferStatus = "awaiting_tokens"
	StatusVerifying      TransferStatus = "verifying"
	StatusCompleted      TransferStatus = "completed"
	StatusFailed         TransferStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s TransferStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// TransferState tracks progress of a token deposit into a holding address.
// Amounts are human-readable decimal strings, not wei.
type TransferState struct {
	Status        TransferStatus `json:"status"`
	CurrentAmount string         `json:"current_amount"`
	TargetAmount  string         `json:"target_amount"`
	MissingTokens []string       `json:"missing_tokens,omitempty"`
}

// Progress derives the completion percentage from the two amounts,
// clamped to [0, 100]. A zero or negative target yields 0. The value is
// recomputed on every call so it cannot drift from the amounts.
func (s TransferState) Progress() float64 {
	current, err := decimal.NewFromString(s.CurrentAmount)
	if err != nil {
		return 0
	}
	target, err := decimal.NewFromString(s.TargetAmount)
	if err != nil || !target.IsPositive() {
		return 0
	}

	pct := current.Div(target).Mul(decimal.NewFromInt(100))
	if pct.IsNegative() {
		return 0
	}
	hundred := decimal.NewFromInt(100)
	if pct.GreaterThan(hundred) {
		return 100
	}
	return pct.InexactFloat64()
}
