package postgres

import (
	"context"
	"fmt"

	"github.com/ravi-parthasarathy/flowc/pkg/forms"
)

// SaveForm inserts or replaces a form definition.
func (s *PGStore) SaveForm(ctx context.Context, f forms.Form) error {
	if f.ID == "" {
		return fmt.Errorf("forms: id is required")
	}
	fields := f.Fields
	if fields == nil {
		fields = []forms.Field{}
	}
	if _, err := s.db.Exec(ctx, `
		INSERT INTO forms (id, name, fields) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, fields = EXCLUDED.fields`,
		f.ID, f.Name, fields,
	); err != nil {
		return fmt.Errorf("forms: save %s: %w", f.ID, err)
	}
	return nil
}

// LoadForms returns a catalog with every form in ids that exists. Unknown
// ids are simply absent from the catalog.
func (s *PGStore) LoadForms(ctx context.Context, ids []string) (forms.Catalog, error) {
	catalog := make(forms.Catalog, len(ids))
	if len(ids) == 0 {
		return catalog, nil
	}
	rows, err := s.db.Query(ctx, `SELECT id, name, fields FROM forms WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("forms: query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var f forms.Form
		if err := rows.Scan(&f.ID, &f.Name, &f.Fields); err != nil {
			return nil, fmt.Errorf("forms: scan: %w", err)
		}
		catalog.Add(f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("forms: rows: %w", err)
	}
	return catalog, nil
}
