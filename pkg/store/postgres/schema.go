package postgres

import "context"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS flows (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL DEFAULT '',
    graph      JSONB NOT NULL DEFAULT '{}',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS forms (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL DEFAULT '',
    fields     JSONB NOT NULL DEFAULT '[]',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// CreateSchema creates the flows and forms tables if they don't exist.
func (s *PGStore) CreateSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, schemaSQL)
	return err
}

// DropSchema drops the flows and forms tables.
func (s *PGStore) DropSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `DROP TABLE IF EXISTS flows, forms CASCADE;`)
	return err
}
