package store

import (
	"context"
	"fmt"

	"github.com/roach88/elementstore/internal/ir"
	"github.com/roach88/elementstore/internal/model"
	"github.com/roach88/elementstore/internal/queryir"
	"github.com/roach88/elementstore/internal/querysql"
)

// Find runs the compiled statement for p and hydrates the matching ids in
// the order the statement returned them. Paging is applied by SQLite.
func (s *Store) Find(ctx context.Context, p *queryir.Plan) (*model.Result, error) {
	query, params, err := querysql.Compile(p)
	if err != nil {
		return nil, fmt.Errorf("compile query: %w", err)
	}
	s.logger.Debug("sqlite find", "type", p.Type.Name, "sql", query, "params", len(params))

	ids, err := s.queryIDs(ctx, query, params)
	if err != nil {
		return nil, err
	}

	recs, err := loadRecords(ctx, s.db, ids)
	if err != nil {
		return nil, fmt.Errorf("hydrate results: %w", err)
	}

	view := p.MaterializeView()
	els := make([]*model.Element, 0, len(ids))
	for _, id := range ids {
		rec, ok := recs[id]
		if !ok {
			return nil, ir.NewCorruptionError("matched element %s has no element row", id)
		}
		el, ok, err := model.Materialize(rec, view)
		if err != nil {
			return nil, err
		}
		if ok {
			els = append(els, el)
		}
	}
	return &model.Result{Elements: els, Paginated: true}, nil
}

func (s *Store) queryIDs(ctx context.Context, query string, params []any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query elements: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan element id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate elements: %w", err)
	}
	return ids, nil
}
