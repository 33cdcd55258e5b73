package store

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/elementstore/internal/ir"
	"github.com/roach88/elementstore/internal/model"
	"github.com/roach88/elementstore/internal/revision"
)

// Apply records cs as a new revision inside one transaction.
//
// The modification row allocates the revision. The elements row is
// inserted for creates and updated conditionally on the expected version
// otherwise, so a concurrent save surfaces as a CONFLICT. Each touched chain
// relinks its previous head and appends the new head.
func (s *Store) Apply(ctx context.Context, cs *model.ChangeSet) (*model.Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("apply %s: begin tx: %w", cs.ElementID, err)
	}
	defer tx.Rollback() // No-op if committed

	recs, err := loadRecords(ctx, tx, []string{cs.ElementID})
	if err != nil {
		return nil, fmt.Errorf("apply %s: %w", cs.ElementID, err)
	}
	rec, exists := recs[cs.ElementID]
	if !exists {
		rec = model.NewRecord(cs.ElementID, cs.Type)
	}
	expected := rec.Version

	res, err := tx.ExecContext(ctx, `
		INSERT INTO table_modifications (element_id, timestamp, user, comment)
		VALUES (?, ?, ?, ?)
	`, cs.ElementID, cs.Timestamp.UnixMilli(), cs.User, cs.Comment)
	if err != nil {
		return nil, fmt.Errorf("apply %s: insert modification: %w", cs.ElementID, err)
	}
	rev, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("apply %s: read revision: %w", cs.ElementID, err)
	}

	applied, err := rec.Apply(cs, rev)
	if err != nil {
		return nil, err
	}

	if err := writeHeader(ctx, tx, rec, cs.Create, expected); err != nil {
		return nil, err
	}
	if applied.State != nil {
		if err := writeState(ctx, tx, rec, *applied.State); err != nil {
			return nil, err
		}
	}
	for _, name := range slices.Sorted(maps.Keys(applied.Properties)) {
		if err := writeProperty(ctx, tx, rec, name, applied.Properties[name]); err != nil {
			return nil, err
		}
	}
	for _, name := range slices.Sorted(maps.Keys(applied.Refs)) {
		if err := writeRefs(ctx, tx, rec, name, applied.Refs[name]); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("apply %s: commit: %w", cs.ElementID, err)
	}

	s.logger.Debug("sqlite commit", "id", rec.ID, "type", rec.Type, "revision", rev, "version", rec.Version)
	return rec, nil
}

func writeHeader(ctx context.Context, q querier, rec *model.Record, create bool, expected int64) error {
	if create {
		_, err := q.ExecContext(ctx, `
			INSERT INTO elements
			(id, element_type, owner, owner_name, grp, created_at, changed_at, revision, version)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			rec.ID,
			rec.Type,
			rec.Owner,
			rec.OwnerName,
			rec.Group,
			rec.CreatedAt.UnixMilli(),
			rec.ChangedAt.UnixMilli(),
			rec.Revision,
			rec.Version,
		)
		if err != nil {
			return fmt.Errorf("insert element %s: %w", rec.ID, err)
		}
		return nil
	}

	res, err := q.ExecContext(ctx, `
		UPDATE elements
		SET owner = ?, owner_name = ?, grp = ?, changed_at = ?, revision = ?, version = ?
		WHERE id = ? AND version = ?
	`,
		rec.Owner,
		rec.OwnerName,
		rec.Group,
		rec.ChangedAt.UnixMilli(),
		rec.Revision,
		rec.Version,
		rec.ID,
		expected,
	)
	if err != nil {
		return fmt.Errorf("update element %s: %w", rec.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update element %s: %w", rec.ID, err)
	}
	if n != 1 {
		var stored int64
		if err := q.QueryRowContext(ctx, `SELECT version FROM elements WHERE id = ?`, rec.ID).Scan(&stored); err != nil {
			return fmt.Errorf("update element %s: %w", rec.ID, err)
		}
		return ir.NewConflictError(rec.ID, expected, stored)
	}
	return nil
}

// relink points the previous head of a chain at rev.
// CRITICAL: exactly one row must change, otherwise the chain had no head or
// more than one and the store is corrupt.
func relink(ctx context.Context, q querier, table, where string, tr revision.Transition, args ...any) error {
	if tr.Previous == 0 {
		return nil
	}
	params := append([]any{tr.Revision}, args...)
	params = append(params, tr.Previous, ir.MaxRevision)
	res, err := q.ExecContext(ctx,
		`UPDATE `+table+` SET next_revision = ? WHERE `+where+` AND revision = ? AND next_revision = ?`,
		params...)
	if err != nil {
		return fmt.Errorf("relink %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("relink %s: %w", table, err)
	}
	if n != 1 {
		return ir.NewCorruptionError("relinking %s at revision %d changed %d rows", table, tr.Previous, n).
			With("table", table)
	}
	return nil
}

func headData[T any](c *revision.Chain[T], rev int64) (T, error) {
	head, err := c.Head()
	if err != nil {
		var zero T
		return zero, err
	}
	if head.Revision != rev {
		var zero T
		return zero, ir.NewCorruptionError("chain head is revision %d, expected %d", head.Revision, rev)
	}
	return head.Data, nil
}

func writeState(ctx context.Context, q querier, rec *model.Record, tr revision.Transition) error {
	if err := relink(ctx, q, "element_states", "element_id = ?", tr, rec.ID); err != nil {
		return err
	}
	state, err := headData(rec.State, tr.Revision)
	if err != nil {
		return fmt.Errorf("element %s state: %w", rec.ID, err)
	}
	deleted := 0
	if state.Deleted {
		deleted = 1
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO element_states (element_id, revision, next_revision, deleted)
		VALUES (?, ?, ?, ?)
	`, rec.ID, tr.Revision, ir.MaxRevision, deleted)
	if err != nil {
		return fmt.Errorf("insert state of %s: %w", rec.ID, err)
	}
	return nil
}

func writeProperty(ctx context.Context, q querier, rec *model.Record, name string, tr revision.Transition) error {
	if err := relink(ctx, q, "property_value_lists", "element_id = ? AND property = ?", tr, rec.ID, name); err != nil {
		return err
	}
	vals, err := headData(rec.Properties[name], tr.Revision)
	if err != nil {
		return fmt.Errorf("element %s property %s: %w", rec.ID, name, err)
	}

	res, err := q.ExecContext(ctx, `
		INSERT INTO property_value_lists (element_id, property, revision, next_revision, kind, dimensions)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rec.ID, name, tr.Revision, ir.MaxRevision, string(listKind(vals)), marshalDims(vals.Dims))
	if err != nil {
		return fmt.Errorf("insert value list %s.%s: %w", rec.ID, name, err)
	}
	listID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert value list %s.%s: %w", rec.ID, name, err)
	}

	insert := `INSERT INTO property_values (list_id, position, ` + strings.Join(valueColumns, ", ") + `) VALUES (?, ?` +
		strings.Repeat(", ?", len(valueColumns)) + `)`
	for pos, v := range vals.Items {
		row, err := marshalValue(v)
		if err != nil {
			return fmt.Errorf("element %s property %s: %w", rec.ID, name, err)
		}
		if _, err := q.ExecContext(ctx, insert, append([]any{listID, pos}, row...)...); err != nil {
			return fmt.Errorf("insert value %s.%s[%d]: %w", rec.ID, name, pos, err)
		}
	}
	return nil
}

func writeRefs(ctx context.Context, q querier, rec *model.Record, name string, tr revision.Transition) error {
	if err := relink(ctx, q, "element_ref_lists", "element_id = ? AND reference = ?", tr, rec.ID, name); err != nil {
		return err
	}
	ids, err := headData(rec.Refs[name], tr.Revision)
	if err != nil {
		return fmt.Errorf("element %s reference %s: %w", rec.ID, name, err)
	}

	res, err := q.ExecContext(ctx, `
		INSERT INTO element_ref_lists (element_id, reference, revision, next_revision)
		VALUES (?, ?, ?, ?)
	`, rec.ID, name, tr.Revision, ir.MaxRevision)
	if err != nil {
		return fmt.Errorf("insert reference list %s.%s: %w", rec.ID, name, err)
	}
	listID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert reference list %s.%s: %w", rec.ID, name, err)
	}
	for pos, target := range ids {
		_, err := q.ExecContext(ctx, `
			INSERT INTO element_ref_items (list_id, position, target_id) VALUES (?, ?, ?)
		`, listID, pos, target)
		if err != nil {
			return fmt.Errorf("insert reference %s.%s[%d]: %w", rec.ID, name, pos, err)
		}
	}
	return nil
}
