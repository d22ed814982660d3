package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ravi-parthasarathy/flowc/pkg/store"
)

var _ store.Store = (*PGStore)(nil)

// SaveFlow inserts or replaces a flow. A flow without an ID gets a UUID.
// Returns the flow with its ID filled in.
func (s *PGStore) SaveFlow(ctx context.Context, f *store.Flow) (*store.Flow, error) {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if _, err := s.db.Exec(ctx, `
		INSERT INTO flows (id, name, graph) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, graph = EXCLUDED.graph, updated_at = NOW()`,
		f.ID, f.Name, f.Graph,
	); err != nil {
		return nil, fmt.Errorf("flows: save %s: %w", f.ID, err)
	}
	return f, nil
}

// GetFlow retrieves a flow by ID.
// Returns nil, nil if the flow doesn't exist.
func (s *PGStore) GetFlow(ctx context.Context, id string) (*store.Flow, error) {
	f := &store.Flow{}
	err := s.db.QueryRow(ctx, `SELECT id, name, graph FROM flows WHERE id = $1`, id).
		Scan(&f.ID, &f.Name, &f.Graph)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("flows: get %s: %w", id, err)
	}
	return f, nil
}

// DeleteFlow removes a flow. No error if it doesn't exist.
func (s *PGStore) DeleteFlow(ctx context.Context, id string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM flows WHERE id = $1`, id); err != nil {
		return fmt.Errorf("flows: delete %s: %w", id, err)
	}
	return nil
}
