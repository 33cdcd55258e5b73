package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/elementstore/internal/ir"
	"github.com/roach88/elementstore/internal/model"
	"github.com/roach88/elementstore/internal/revision"
)

// hydrateBatch bounds the number of ids bound into one IN list.
const hydrateBatch = 500

// Load returns the stored record of id with every chain.
func (s *Store) Load(ctx context.Context, id string) (*model.Record, bool, error) {
	recs, err := loadRecords(ctx, s.db, []string{id})
	if err != nil {
		return nil, false, fmt.Errorf("load element %s: %w", id, err)
	}
	rec, ok := recs[id]
	return rec, ok, nil
}

// StoredVersion returns the optimistic version stored for id.
func (s *Store) StoredVersion(ctx context.Context, id string) (int64, bool, error) {
	var version int64
	err := s.db.QueryRowContext(ctx, `SELECT version FROM elements WHERE id = ?`, id).Scan(&version)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read version of %s: %w", id, err)
	}
	return version, true, nil
}

// History returns the modifications of id in ascending revision order.
// Returns an empty slice (not nil) if the element was never saved.
func (s *Store) History(ctx context.Context, id string) ([]ir.Modification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT revision, element_id, timestamp, user, comment
		FROM table_modifications
		WHERE element_id = ?
		ORDER BY revision ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query history of %s: %w", id, err)
	}
	defer rows.Close()

	mods := []ir.Modification{}
	for rows.Next() {
		var m ir.Modification
		var ts int64
		if err := rows.Scan(&m.Revision, &m.ElementID, &ts, &m.User, &m.Comment); err != nil {
			return nil, fmt.Errorf("scan modification: %w", err)
		}
		m.Timestamp = time.UnixMilli(ts).UTC()
		mods = append(mods, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history of %s: %w", id, err)
	}
	return mods, nil
}

// loadRecords hydrates the records of ids. Unknown ids are absent from the
// result.
func loadRecords(ctx context.Context, q querier, ids []string) (map[string]*model.Record, error) {
	out := make(map[string]*model.Record, len(ids))
	for start := 0; start < len(ids); start += hydrateBatch {
		batch := ids[start:min(start+hydrateBatch, len(ids))]
		if err := hydrate(ctx, q, batch, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func hydrate(ctx context.Context, q querier, ids []string, out map[string]*model.Record) error {
	in, args := inList(ids)

	if err := hydrateHeaders(ctx, q, in, args, out); err != nil {
		return err
	}
	if err := hydrateStates(ctx, q, in, args, out); err != nil {
		return err
	}
	if err := hydrateProperties(ctx, q, in, args, out); err != nil {
		return err
	}
	return hydrateRefs(ctx, q, in, args, out)
}

func hydrateHeaders(ctx context.Context, q querier, in string, args []any, out map[string]*model.Record) error {
	rows, err := q.QueryContext(ctx, `
		SELECT id, element_type, owner, owner_name, grp, created_at, changed_at, revision, version
		FROM elements WHERE id IN (`+in+`)
	`, args...)
	if err != nil {
		return fmt.Errorf("query elements: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, typ string
		var created, changed int64
		var r model.Record
		if err := rows.Scan(&id, &typ, &r.Owner, &r.OwnerName, &r.Group, &created, &changed, &r.Revision, &r.Version); err != nil {
			return fmt.Errorf("scan element: %w", err)
		}
		rec := model.NewRecord(id, typ)
		rec.Owner, rec.OwnerName, rec.Group = r.Owner, r.OwnerName, r.Group
		rec.CreatedAt = time.UnixMilli(created).UTC()
		rec.ChangedAt = time.UnixMilli(changed).UTC()
		rec.Revision, rec.Version = r.Revision, r.Version
		out[id] = rec
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate elements: %w", err)
	}
	return nil
}

func hydrateStates(ctx context.Context, q querier, in string, args []any, out map[string]*model.Record) error {
	rows, err := q.QueryContext(ctx, `
		SELECT element_id, revision, next_revision, deleted
		FROM element_states WHERE element_id IN (`+in+`)
		ORDER BY element_id COLLATE BINARY ASC, revision ASC
	`, args...)
	if err != nil {
		return fmt.Errorf("query element states: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var v revision.Version[model.State]
		var deleted int64
		if err := rows.Scan(&id, &v.Revision, &v.NextRevision, &deleted); err != nil {
			return fmt.Errorf("scan element state: %w", err)
		}
		rec, ok := out[id]
		if !ok {
			return ir.NewCorruptionError("state row of %s has no element row", id)
		}
		v.Data.Deleted = deleted != 0
		rec.State.Versions = append(rec.State.Versions, v)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate element states: %w", err)
	}
	return nil
}

// valueList is one property_value_lists row while its values are read.
type valueList struct {
	elementID string
	property  string
	kind      ir.Kind
	version   revision.Version[ir.Values]
}

func hydrateProperties(ctx context.Context, q querier, in string, args []any, out map[string]*model.Record) error {
	lists, order, err := readValueLists(ctx, q, in, args)
	if err != nil {
		return err
	}

	rows, err := q.QueryContext(ctx, `
		SELECT v.list_id, `+strings.Join(prefixed("v.", valueColumns), ", ")+`
		FROM property_values v
		JOIN property_value_lists l ON l.id = v.list_id
		WHERE l.element_id IN (`+in+`)
		ORDER BY v.list_id ASC, v.position ASC
	`, args...)
	if err != nil {
		return fmt.Errorf("query property values: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var listID int64
		var row valueRow
		if err := rows.Scan(append([]any{&listID}, row.dest()...)...); err != nil {
			return fmt.Errorf("scan property value: %w", err)
		}
		list, ok := lists[listID]
		if !ok {
			return ir.NewCorruptionError("property value has no list row %d", listID)
		}
		v, err := row.unmarshalValue(list.kind)
		if err != nil {
			return fmt.Errorf("element %s property %s: %w", list.elementID, list.property, err)
		}
		list.version.Data.Items = append(list.version.Data.Items, v)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate property values: %w", err)
	}

	for _, listID := range order {
		list := lists[listID]
		rec := out[list.elementID]
		chain, ok := rec.Properties[list.property]
		if !ok {
			chain = &revision.Chain[ir.Values]{}
			rec.Properties[list.property] = chain
		}
		chain.Versions = append(chain.Versions, list.version)
	}
	return nil
}

func readValueLists(ctx context.Context, q querier, in string, args []any) (map[int64]*valueList, []int64, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, element_id, property, revision, next_revision, kind, dimensions
		FROM property_value_lists WHERE element_id IN (`+in+`)
		ORDER BY element_id COLLATE BINARY ASC, property COLLATE BINARY ASC, revision ASC
	`, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("query property value lists: %w", err)
	}
	defer rows.Close()

	lists := map[int64]*valueList{}
	var order []int64
	for rows.Next() {
		var id int64
		var kind, dims string
		l := &valueList{}
		if err := rows.Scan(&id, &l.elementID, &l.property, &l.version.Revision, &l.version.NextRevision, &kind, &dims); err != nil {
			return nil, nil, fmt.Errorf("scan property value list: %w", err)
		}
		l.kind = ir.Kind(kind)
		if l.version.Data.Dims, err = unmarshalDims(dims); err != nil {
			return nil, nil, err
		}
		lists[id] = l
		order = append(order, id)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate property value lists: %w", err)
	}
	return lists, order, nil
}

func hydrateRefs(ctx context.Context, q querier, in string, args []any, out map[string]*model.Record) error {
	rows, err := q.QueryContext(ctx, `
		SELECT l.id, l.element_id, l.reference, l.revision, l.next_revision, i.target_id
		FROM element_ref_lists l
		LEFT JOIN element_ref_items i ON i.list_id = l.id
		WHERE l.element_id IN (`+in+`)
		ORDER BY l.element_id COLLATE BINARY ASC, l.reference COLLATE BINARY ASC, l.revision ASC, i.position ASC
	`, args...)
	if err != nil {
		return fmt.Errorf("query reference lists: %w", err)
	}
	defer rows.Close()

	var (
		lastList int64 = -1
		chain    *revision.Chain[[]string]
	)
	for rows.Next() {
		var listID int64
		var id, name string
		var v revision.Version[[]string]
		var target sql.NullString
		if err := rows.Scan(&listID, &id, &name, &v.Revision, &v.NextRevision, &target); err != nil {
			return fmt.Errorf("scan reference list: %w", err)
		}
		rec, ok := out[id]
		if !ok {
			return ir.NewCorruptionError("reference list of %s has no element row", id)
		}
		if listID != lastList {
			lastList = listID
			var exists bool
			if chain, exists = rec.Refs[name]; !exists {
				chain = &revision.Chain[[]string]{}
				rec.Refs[name] = chain
			}
			v.Data = []string{}
			chain.Versions = append(chain.Versions, v)
		}
		if target.Valid {
			last := &chain.Versions[len(chain.Versions)-1]
			last.Data = append(last.Data, target.String)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate reference lists: %w", err)
	}
	return nil
}

// inList returns "?, ?, ?" and the matching arguments.
func inList(ids []string) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", "), args
}

func prefixed(prefix string, cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = prefix + c
	}
	return out
}
