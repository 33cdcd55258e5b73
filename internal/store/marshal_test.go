package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/elementstore/internal/ir"
	"github.com/roach88/elementstore/internal/querysql"
)

func TestMarshalValue_SelectsOneColumn(t *testing.T) {
	dec, err := ir.NewDecimal("0.10")
	require.NoError(t, err)

	tests := []struct {
		value ir.Value
		cols  map[string]any
	}{
		{ir.String("x"), map[string]any{querysql.ColString: "x"}},
		{ir.CDATA("y"), map[string]any{querysql.ColText: "y"}},
		{ir.Long(5), map[string]any{querysql.ColLong: int64(5)}},
		{ir.Integer(6), map[string]any{querysql.ColInt: int64(6)}},
		{ir.Double(1.5), map[string]any{querysql.ColDouble: 1.5}},
		{dec, map[string]any{querysql.ColDecimal: 0.1, querysql.ColDecimalExact: "0.10"}},
		{ir.DateFromMillis(1000), map[string]any{querysql.ColDate: int64(1000)}},
		{ir.Boolean(true), map[string]any{querysql.ColBool: int64(1)}},
	}
	for _, tt := range tests {
		t.Run(string(tt.value.Kind()), func(t *testing.T) {
			row, err := marshalValue(tt.value)
			require.NoError(t, err)
			require.Len(t, row, len(valueColumns))
			for i, col := range valueColumns {
				assert.Equal(t, tt.cols[col], row[i], col)
			}
		})
	}
}

func TestMarshalValue_RejectsRaw(t *testing.T) {
	_, err := marshalValue(ir.Raw("1"))
	assert.Error(t, err)
}

func TestUnmarshalValue(t *testing.T) {
	var r valueRow
	r.Date.Valid, r.Date.Int64 = true, time.Date(2024, 2, 3, 0, 0, 0, 0, time.UTC).UnixMilli()
	v, err := r.unmarshalValue(ir.KindDate)
	require.NoError(t, err)
	assert.Equal(t, "2024-02-03T00:00:00Z", v.String())

	_, err = r.unmarshalValue(ir.KindString)
	assert.True(t, ir.IsCorruption(err))

	_, err = r.unmarshalValue(ir.Kind("blob"))
	assert.True(t, ir.IsCorruption(err))
}

func TestDims(t *testing.T) {
	assert.Equal(t, "", marshalDims(nil))
	assert.Equal(t, "2,3", marshalDims([]int{2, 3}))

	dims, err := unmarshalDims("2,3")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, dims)

	dims, err = unmarshalDims("")
	require.NoError(t, err)
	assert.Nil(t, dims)

	_, err = unmarshalDims("2,x")
	assert.True(t, ir.IsCorruption(err))
}
