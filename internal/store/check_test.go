package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/elementstore/internal/ir"
)

func TestCheck_CleanStore(t *testing.T) {
	f := newFixture(t)
	seedCustomers(f)
	f.update("c1", 1, map[string]ir.Values{"name": str("Cat")}, nil)

	report, err := f.store.Check(t.Context())
	require.NoError(t, err)
	assert.True(t, report.OK(), "problems: %v", report.Problems)
	assert.Equal(t, 5, report.Elements)
	assert.Equal(t, int64(6), report.LastRevision)
}

func TestCheck_ReportsTwoHeads(t *testing.T) {
	f := newFixture(t)
	seedCustomers(f)
	f.update("c1", 1, map[string]ir.Values{"name": str("Cat")}, nil)

	_, err := f.store.db.Exec(`
		UPDATE property_value_lists SET next_revision = ?
		WHERE element_id = 'c1' AND property = 'name'
	`, ir.MaxRevision)
	require.NoError(t, err)

	report, err := f.store.Check(t.Context())
	require.NoError(t, err)
	require.Len(t, report.Problems, 1)
	assert.Equal(t, "c1", report.Problems[0].ElementID)
	assert.True(t, ir.IsCorruption(report.Problems[0].Err))
}

func TestCheck_ReportsMissingModification(t *testing.T) {
	f := newFixture(t)
	seedCustomers(f)

	_, err := f.store.db.Exec(`DELETE FROM table_modifications WHERE element_id = 'c2'`)
	require.NoError(t, err)

	report, err := f.store.Check(t.Context())
	require.NoError(t, err)
	require.Len(t, report.Problems, 1)
	assert.Equal(t, "c2", report.Problems[0].ElementID)
}
