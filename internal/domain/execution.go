package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExecStatus is the terminal outcome of one arbitrage cycle.
type ExecStatus string

const (
	ExecStatusCompleted ExecStatus = "completed" // both legs done, inventory flat
	ExecStatusNoFill    ExecStatus = "no_fill"   // buy leg terminal with zero fill
	ExecStatusRecovered ExecStatus = "recovered" // unwound via the recovery planner
	ExecStatusStuck     ExecStatus = "stuck"     // operator intervention required
)

// RecoveryAction records one step the recovery planner took during a cycle.
type RecoveryAction struct {
	Action string
	Detail string
	At     time.Time
}

// ExecutionRecord is the append-only terminal record of one cycle. Never
// mutated after the coordinator emits it.
type ExecutionRecord struct {
	ID              string
	Symbol          string
	Status          ExecStatus
	DryRun          bool
	PlannedBase     decimal.Decimal
	BuyLimitPrice   decimal.Decimal
	ExpectedProfit  decimal.Decimal
	RealizedProfit  decimal.Decimal
	BoughtBase      decimal.Decimal
	SoldBase        decimal.Decimal
	Legs            []LegResult
	RecoveryActions []RecoveryAction
	StartedAt       time.Time
	CompletedAt     time.Time
}

// StuckPosition marks base-asset inventory the bot could not unwind. Markers
// persist across restarts; no new cycles run until the operator clears them.
type StuckPosition struct {
	ID          string
	Symbol      string
	Venue       Venue
	BaseAmount  decimal.Decimal
	Reason      string
	ExecutionID string
	CreatedAt   time.Time
	ClearedAt   *time.Time
}

// Balance is the free amount of one asset on one venue.
type Balance struct {
	Venue Venue
	Asset string
	Free  decimal.Decimal
}
