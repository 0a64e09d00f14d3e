package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// ExecutionStore implements domain.ExecutionStore using PostgreSQL. Records
// are append-only: a row is written once when a cycle reaches a terminal
// state and never updated afterwards.
type ExecutionStore struct {
	pool *pgxpool.Pool
}

// NewExecutionStore creates a new ExecutionStore.
func NewExecutionStore(pool *pgxpool.Pool) *ExecutionStore {
	return &ExecutionStore{pool: pool}
}

const executionColumns = `id, symbol, status, dry_run, planned_base, buy_limit_price, expected_profit, realized_profit, bought_base, sold_base, started_at, completed_at`

// Create inserts an execution record together with its legs and recovery
// actions in a single transaction.
func (s *ExecutionStore) Create(ctx context.Context, rec domain.ExecutionRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO executions (`+executionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		rec.ID, rec.Symbol, string(rec.Status), rec.DryRun,
		rec.PlannedBase, rec.BuyLimitPrice, rec.ExpectedProfit, rec.RealizedProfit,
		rec.BoughtBase, rec.SoldBase, rec.StartedAt, rec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert execution: %w", err)
	}

	for _, leg := range rec.Legs {
		_, err = tx.Exec(ctx, `
			INSERT INTO execution_legs (execution_id, order_id, venue, side, order_type, requested, limit_price, state, filled_base, filled_quote, avg_price, submitted_at, completed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			rec.ID, leg.OrderID, string(leg.Venue), string(leg.Side), string(leg.Type),
			leg.Requested, leg.LimitPrice, string(leg.State),
			leg.FilledBase, leg.FilledQuote, leg.AvgPrice,
			leg.SubmittedAt, leg.CompletedAt,
		)
		if err != nil {
			return fmt.Errorf("postgres: insert execution leg: %w", err)
		}
	}

	for _, ra := range rec.RecoveryActions {
		_, err = tx.Exec(ctx, `
			INSERT INTO recovery_actions (execution_id, action, detail, at)
			VALUES ($1, $2, $3, $4)`,
			rec.ID, ra.Action, ra.Detail, ra.At,
		)
		if err != nil {
			return fmt.Errorf("postgres: insert recovery action: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func scanExecution(row pgx.Row) (domain.ExecutionRecord, error) {
	var rec domain.ExecutionRecord
	var status string
	err := row.Scan(&rec.ID, &rec.Symbol, &status, &rec.DryRun,
		&rec.PlannedBase, &rec.BuyLimitPrice, &rec.ExpectedProfit, &rec.RealizedProfit,
		&rec.BoughtBase, &rec.SoldBase, &rec.StartedAt, &rec.CompletedAt,
	)
	if err != nil {
		return domain.ExecutionRecord{}, err
	}
	rec.Status = domain.ExecStatus(status)
	return rec, nil
}

// GetByID returns an execution with its legs and recovery actions.
func (s *ExecutionStore) GetByID(ctx context.Context, id string) (domain.ExecutionRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+executionColumns+`
		FROM executions WHERE id = $1`, id)
	rec, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ExecutionRecord{}, domain.ErrNotFound
		}
		return domain.ExecutionRecord{}, fmt.Errorf("postgres: get execution %s: %w", id, err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT order_id, venue, side, order_type, requested, limit_price, state, filled_base, filled_quote, avg_price, submitted_at, completed_at
		FROM execution_legs WHERE execution_id = $1 ORDER BY id`, id)
	if err != nil {
		return domain.ExecutionRecord{}, fmt.Errorf("postgres: get execution legs: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var leg domain.LegResult
		var venue, side, orderType, state string
		if err := rows.Scan(&leg.OrderID, &venue, &side, &orderType,
			&leg.Requested, &leg.LimitPrice, &state,
			&leg.FilledBase, &leg.FilledQuote, &leg.AvgPrice,
			&leg.SubmittedAt, &leg.CompletedAt); err != nil {
			return domain.ExecutionRecord{}, fmt.Errorf("postgres: scan execution leg: %w", err)
		}
		leg.Venue = domain.Venue(venue)
		leg.Side = domain.OrderSide(side)
		leg.Type = domain.OrderType(orderType)
		leg.State = domain.LegState(state)
		rec.Legs = append(rec.Legs, leg)
	}
	if err := rows.Err(); err != nil {
		return domain.ExecutionRecord{}, fmt.Errorf("postgres: get execution legs rows: %w", err)
	}

	raRows, err := s.pool.Query(ctx, `
		SELECT action, detail, at
		FROM recovery_actions WHERE execution_id = $1 ORDER BY id`, id)
	if err != nil {
		return domain.ExecutionRecord{}, fmt.Errorf("postgres: get recovery actions: %w", err)
	}
	defer raRows.Close()
	for raRows.Next() {
		var ra domain.RecoveryAction
		if err := raRows.Scan(&ra.Action, &ra.Detail, &ra.At); err != nil {
			return domain.ExecutionRecord{}, fmt.Errorf("postgres: scan recovery action: %w", err)
		}
		rec.RecoveryActions = append(rec.RecoveryActions, ra)
	}
	if err := raRows.Err(); err != nil {
		return domain.ExecutionRecord{}, fmt.Errorf("postgres: get recovery actions rows: %w", err)
	}

	return rec, nil
}

// ListRecent returns the most recent executions, newest first. Legs and
// recovery actions are not loaded; use GetByID for the full record.
func (s *ExecutionStore) ListRecent(ctx context.Context, limit int) ([]domain.ExecutionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+executionColumns+`
		FROM executions ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list executions: %w", err)
	}
	defer rows.Close()
	return collectExecutions(rows)
}

// ListBefore returns executions started before the given time, newest first.
// Legs and recovery actions are not loaded.
func (s *ExecutionStore) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.ExecutionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+executionColumns+`
		FROM executions WHERE started_at < $1 ORDER BY started_at DESC LIMIT $2`, before, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list executions before: %w", err)
	}
	defer rows.Close()
	return collectExecutions(rows)
}

func collectExecutions(rows pgx.Rows) ([]domain.ExecutionRecord, error) {
	var list []domain.ExecutionRecord
	for rows.Next() {
		rec, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan execution: %w", err)
		}
		list = append(list, rec)
	}
	return list, rows.Err()
}

// SumRealizedProfit returns the total realized profit, in quote units, of
// executions started at or after the given time.
func (s *ExecutionStore) SumRealizedProfit(ctx context.Context, since time.Time) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(realized_profit), 0) FROM executions WHERE started_at >= $1`,
		since,
	).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("postgres: sum realized profit: %w", err)
	}
	return sum, nil
}

// DeleteBefore deletes executions started before the given time and returns
// the number of rows removed. Legs and recovery actions cascade.
func (s *ExecutionStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM executions WHERE started_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete executions before: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Compile-time interface check.
var _ domain.ExecutionStore = (*ExecutionStore)(nil)
