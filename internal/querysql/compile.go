// Package querysql compiles bound find plans to SQLite.
//
// Compile emits one statement selecting the ordered ids of matching
// elements; the store hydrates them afterwards. Every filter is an EXISTS
// semi-join against the revisioned value or reference rows, so a plan never
// multiplies element rows.
package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/elementstore/internal/ir"
	"github.com/roach88/elementstore/internal/queryir"
	"github.com/roach88/elementstore/internal/revision"
)

// Compile converts a bound plan to parameterized SQL.
// Returns (sql, params, error) tuple.
//
// MANDATORY: Every query ends with the e.id tiebreaker for deterministic order.
// MANDATORY: All values are parameterized (never interpolated).
func Compile(p *queryir.Plan) (string, []any, error) {
	if p == nil || p.Type == nil {
		return "", nil, fmt.Errorf("cannot compile nil plan")
	}
	if p.StateView.Mode == revision.ModeAny {
		return "", nil, fmt.Errorf("state view cannot be %s", p.StateView)
	}

	b := &builder{}
	var sql strings.Builder

	sql.WriteString("SELECT e.id FROM elements e JOIN element_states s ON s.element_id = e.id")
	for _, c := range b.visible("s", p.StateView) {
		sql.WriteString(" AND " + c)
	}

	order, err := b.sortJoins(&sql, p)
	if err != nil {
		return "", nil, fmt.Errorf("compile sort: %w", err)
	}

	where := []string{"e.element_type = ?"}
	b.add(p.Type.Name)
	if !p.IncludeDeleted {
		where = append(where, "s.deleted = 0")
	}
	if p.Owner != "" {
		where = append(where, "e.owner = ?")
		b.add(p.Owner)
	}
	if p.ChangedSince != nil {
		where = append(where, "e.changed_at >= ?")
		b.add(p.ChangedSince.UnixMilli())
	}
	if p.IDs != nil {
		where = append(where, b.idCond("e.id", p.IDs))
	}
	for _, f := range p.Filters {
		c, err := b.attrExists("e", f, p.AttrView)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter %s: %w", f.Property.Name, err)
		}
		where = append(where, c)
	}
	for _, rf := range p.RefFilters {
		c, err := b.refExists(p, rf)
		if err != nil {
			return "", nil, fmt.Errorf("compile reference filter %s: %w", rf.Reference.Name, err)
		}
		where = append(where, c)
	}

	sql.WriteString(" WHERE " + strings.Join(where, " AND "))
	sql.WriteString(" ORDER BY " + strings.Join(order, ", "))

	if p.Paged() {
		sql.WriteString(" LIMIT ? OFFSET ?")
		b.add(int64(p.Limit), int64(p.Offset))
	}
	return sql.String(), b.params, nil
}

// builder collects parameters in textual order and numbers aliases.
type builder struct {
	n      int
	params []any
}

func (b *builder) next() int {
	b.n++
	return b.n
}

func (b *builder) add(params ...any) {
	b.params = append(b.params, params...)
}

// visible returns the conditions restricting the revisioned rows aliased
// as alias to view. ModeAny adds none.
func (b *builder) visible(alias string, view revision.View) []string {
	switch view.Mode {
	case revision.ModeHead:
		b.add(int64(ir.MaxRevision))
		return []string{alias + ".next_revision = ?"}
	case revision.ModeAsOf:
		b.add(view.Revision, view.Revision)
		return []string{alias + ".revision <= ?", alias + ".next_revision > ?"}
	default:
		return nil
	}
}

func (b *builder) idCond(column string, f *queryir.IDFilter) string {
	if len(f.IDs) == 0 {
		if f.Negate {
			return "1 = 1"
		}
		return "0 = 1"
	}
	for _, id := range f.IDs {
		b.add(id)
	}
	op := " IN ("
	if f.Negate {
		op = " NOT IN ("
	}
	return column + op + placeholders(len(f.IDs)) + ")"
}

// attrExists renders a semi-join matching elements (aliased as owner) with
// a visible value row satisfying f. Negated filters become NOT EXISTS.
func (b *builder) attrExists(owner string, f queryir.AttrFilter, view revision.View) (string, error) {
	col, err := Column(f.Property.Kind)
	if err != nil {
		return "", err
	}
	n := b.next()
	l, v := fmt.Sprintf("pl%d", n), fmt.Sprintf("pv%d", n)

	conds := []string{l + ".element_id = " + owner + ".id", l + ".property = ?"}
	b.add(f.Property.Name)
	conds = append(conds, b.visible(l, view)...)

	pred, params, err := RenderOp(f.Op, v+"."+col)
	if err != nil {
		return "", err
	}
	conds = append(conds, pred)
	b.add(params...)

	exists := "EXISTS"
	if f.Negate {
		exists = "NOT EXISTS"
	}
	return fmt.Sprintf("%s (SELECT 1 FROM property_value_lists %s JOIN property_values %s ON %s.list_id = %s.id WHERE %s)",
		exists, l, v, v, l, strings.Join(conds, " AND ")), nil
}

// refExists renders a semi-join through one reference slot to referenced
// elements satisfying every child filter. Children follow the plan's state
// and attribute views.
func (b *builder) refExists(p *queryir.Plan, rf queryir.RefFilter) (string, error) {
	n := b.next()
	rl, ri := fmt.Sprintf("rl%d", n), fmt.Sprintf("ri%d", n)
	c, cs := fmt.Sprintf("c%d", n), fmt.Sprintf("cs%d", n)

	from := fmt.Sprintf("element_ref_lists %s JOIN element_ref_items %s ON %s.list_id = %s.id JOIN elements %s ON %s.id = %s.target_id JOIN element_states %s ON %s.element_id = %s.id",
		rl, ri, ri, rl, c, c, ri, cs, cs, c)
	for _, cond := range b.visible(cs, p.StateView) {
		from += " AND " + cond
	}

	conds := []string{rl + ".element_id = e.id", rl + ".reference = ?"}
	b.add(rf.Reference.Name)
	conds = append(conds, b.visible(rl, rf.View)...)
	conds = append(conds, c+".element_type = ?")
	b.add(rf.Target.Name)
	if !p.IncludeDeleted {
		conds = append(conds, cs+".deleted = 0")
	}
	if rf.IDs != nil {
		conds = append(conds, b.idCond(c+".id", rf.IDs))
	}
	for _, f := range rf.Filters {
		cond, err := b.attrExists(c, f, p.AttrView)
		if err != nil {
			return "", fmt.Errorf("attribute %s: %w", f.Property.Name, err)
		}
		conds = append(conds, cond)
	}
	return fmt.Sprintf("EXISTS (SELECT 1 FROM %s WHERE %s)", from, strings.Join(conds, " AND ")), nil
}

// sortJoins writes the LEFT JOINs needed by attribute sort keys and returns
// the ORDER BY terms, ending with the id tiebreaker.
func (b *builder) sortJoins(sql *strings.Builder, p *queryir.Plan) ([]string, error) {
	var order []string
	for _, k := range p.Sort {
		dir := " ASC"
		if k.Desc {
			dir = " DESC"
		}
		switch k.Field {
		case queryir.SortByID:
			order = append(order, "e.id COLLATE BINARY"+dir)
		case queryir.SortByOwner:
			order = append(order, "e.owner COLLATE BINARY"+dir)
		case queryir.SortByOwnerName:
			order = append(order, "e.owner_name COLLATE BINARY"+dir)
		case queryir.SortByChanged:
			order = append(order, "e.changed_at"+dir)
		case queryir.SortByAttribute:
			n := b.next()
			sl, sv := fmt.Sprintf("sl%d", n), fmt.Sprintf("sv%d", n)
			fmt.Fprintf(sql, " LEFT JOIN property_value_lists %s ON %s.element_id = e.id AND %s.property = ?", sl, sl, sl)
			b.add(k.Property.Name)
			for _, c := range b.visible(sl, p.MaterializeView()) {
				sql.WriteString(" AND " + c)
			}
			fmt.Fprintf(sql, " LEFT JOIN property_values %s ON %s.list_id = %s.id AND %s.position = 0", sv, sv, sl, sv)
			for _, col := range SortColumns {
				term := sv + "." + col
				if textual(col) {
					term += " COLLATE BINARY"
				}
				order = append(order, term+dir)
			}
		default:
			return nil, fmt.Errorf("unsupported sort field %d", int(k.Field))
		}
	}
	return append(order, "e.id COLLATE BINARY ASC"), nil
}
