package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/elementstore/internal/ir"
	"github.com/roach88/elementstore/internal/schema"
)

var _ schema.Source = (*Store)(nil)

// LoadType implements schema.Source.
func (s *Store) LoadType(ctx context.Context, name string) (*ir.ElementType, bool, error) {
	var stored string
	err := s.db.QueryRowContext(ctx, `SELECT name FROM element_types WHERE name = ?`, name).Scan(&stored)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load element type %s: %w", name, err)
	}

	t := &ir.ElementType{Name: stored}

	rows, err := s.db.QueryContext(ctx, `
		SELECT name, kind, unit FROM property_types
		WHERE element_type = ?
		ORDER BY position ASC, name COLLATE BINARY ASC
	`, name)
	if err != nil {
		return nil, false, fmt.Errorf("load properties of %s: %w", name, err)
	}
	defer rows.Close()
	for rows.Next() {
		var p ir.PropertyType
		var kind string
		if err := rows.Scan(&p.Name, &kind, &p.Unit); err != nil {
			return nil, false, fmt.Errorf("scan property of %s: %w", name, err)
		}
		p.Kind = ir.Kind(kind)
		t.Properties = append(t.Properties, p)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate properties of %s: %w", name, err)
	}

	refs, err := s.db.QueryContext(ctx, `
		SELECT name, target FROM reference_types
		WHERE element_type = ?
		ORDER BY position ASC, name COLLATE BINARY ASC
	`, name)
	if err != nil {
		return nil, false, fmt.Errorf("load references of %s: %w", name, err)
	}
	defer refs.Close()
	for refs.Next() {
		var r ir.ReferenceType
		if err := refs.Scan(&r.Name, &r.Target); err != nil {
			return nil, false, fmt.Errorf("scan reference of %s: %w", name, err)
		}
		t.References = append(t.References, r)
	}
	if err := refs.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate references of %s: %w", name, err)
	}

	return t, true, nil
}

// SaveType implements schema.Source. The stored definition is replaced
// whole inside one transaction.
func (s *Store) SaveType(ctx context.Context, t *ir.ElementType) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save element type %s: begin tx: %w", t.Name, err)
	}
	defer tx.Rollback() // No-op if committed

	if _, err := tx.ExecContext(ctx, `INSERT INTO element_types (name) VALUES (?) ON CONFLICT(name) DO NOTHING`, t.Name); err != nil {
		return fmt.Errorf("save element type %s: %w", t.Name, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM property_types WHERE element_type = ?`, t.Name); err != nil {
		return fmt.Errorf("save element type %s: %w", t.Name, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM reference_types WHERE element_type = ?`, t.Name); err != nil {
		return fmt.Errorf("save element type %s: %w", t.Name, err)
	}
	for i, p := range t.Properties {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO property_types (element_type, name, kind, unit, position)
			VALUES (?, ?, ?, ?, ?)
		`, t.Name, p.Name, string(p.Kind), p.Unit, i)
		if err != nil {
			return fmt.Errorf("save property %s.%s: %w", t.Name, p.Name, err)
		}
	}
	for i, r := range t.References {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO reference_types (element_type, name, target, position)
			VALUES (?, ?, ?, ?)
		`, t.Name, r.Name, r.Target, i)
		if err != nil {
			return fmt.Errorf("save reference %s.%s: %w", t.Name, r.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save element type %s: commit: %w", t.Name, err)
	}
	return nil
}

// TypeNames implements schema.Source.
func (s *Store) TypeNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM element_types ORDER BY name COLLATE BINARY ASC`)
	if err != nil {
		return nil, fmt.Errorf("query element types: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan element type: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate element types: %w", err)
	}
	return names, nil
}
