package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// StuckPositionStore implements domain.StuckPositionStore using PostgreSQL.
// Markers survive restarts: the coordinator refuses to start new cycles for a
// symbol while an open marker exists.
type StuckPositionStore struct {
	pool *pgxpool.Pool
}

// NewStuckPositionStore creates a new StuckPositionStore.
func NewStuckPositionStore(pool *pgxpool.Pool) *StuckPositionStore {
	return &StuckPositionStore{pool: pool}
}

// Create inserts a stuck-position marker.
func (s *StuckPositionStore) Create(ctx context.Context, pos domain.StuckPosition) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO stuck_positions (id, symbol, venue, base_amount, reason, execution_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		pos.ID, pos.Symbol, string(pos.Venue), pos.BaseAmount, pos.Reason, pos.ExecutionID, pos.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert stuck position: %w", err)
	}
	return nil
}

// ListOpen returns uncleared markers, oldest first. An empty symbol lists
// markers for every pair.
func (s *StuckPositionStore) ListOpen(ctx context.Context, symbol string) ([]domain.StuckPosition, error) {
	query := `
		SELECT id, symbol, venue, base_amount, reason, execution_id, created_at, cleared_at
		FROM stuck_positions WHERE cleared_at IS NULL`
	args := []any{}
	if symbol != "" {
		query += ` AND symbol = $1`
		args = append(args, symbol)
	}
	query += ` ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open stuck positions: %w", err)
	}
	defer rows.Close()

	var list []domain.StuckPosition
	for rows.Next() {
		var pos domain.StuckPosition
		var venue string
		if err := rows.Scan(&pos.ID, &pos.Symbol, &venue, &pos.BaseAmount,
			&pos.Reason, &pos.ExecutionID, &pos.CreatedAt, &pos.ClearedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan stuck position: %w", err)
		}
		pos.Venue = domain.Venue(venue)
		list = append(list, pos)
	}
	return list, rows.Err()
}

// Clear marks the given marker as cleared. It returns domain.ErrNotFound if
// no open marker with that id exists.
func (s *StuckPositionStore) Clear(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE stuck_positions SET cleared_at = NOW()
		WHERE id = $1 AND cleared_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("postgres: clear stuck position %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Compile-time interface check.
var _ domain.StuckPositionStore = (*StuckPositionStore)(nil)
