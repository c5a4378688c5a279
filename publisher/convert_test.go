package publisher

import (
	"math"
	"testing"
	"time"

	"github.com/maxpert/commitlog-cdc/codec"
	"github.com/maxpert/commitlog-cdc/row"
	"github.com/stretchr/testify/assert"
)

func TestRowValues(t *testing.T) {
	assert.Nil(t, RowValues(nil))

	ts := time.UnixMilli(1700000000123).UTC()
	r := row.NewRow(
		row.Cell{Name: "id", Value: int32(7), Kind: row.Partition},
		row.Cell{Name: "seen", Value: ts},
		row.Cell{Name: "gone", Deleted: true, DeletionTS: 99},
	)

	assert.Equal(t, map[string]any{
		"id":   int32(7),
		"seen": int64(1700000000123),
		"gone": nil,
	}, RowValues(r))
}

func TestConvertValue(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"text", "abc", "abc"},
		{"float", float32(1.5), float32(1.5)},
		{"nan", math.NaN(), "NaN"},
		{"inf", float32(math.Inf(1)), "Infinity"},
		{"neg inf", math.Inf(-1), "-Infinity"},
		{"list", []any{time.UnixMilli(5), "x"}, []any{int64(5), "x"}},
		{
			"text keyed map",
			[]codec.MapEntry{{Key: "a", Value: math.NaN()}},
			map[string]any{"a": "NaN"},
		},
		{
			"int keyed map",
			[]codec.MapEntry{{Key: int32(1), Value: "one"}},
			[]map[string]any{{"key": int32(1), "value": "one"}},
		},
		{"empty map", []codec.MapEntry{}, map[string]any{}},
		{"nil", nil, nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ConvertValue(tc.in))
		})
	}
}

func TestTopic(t *testing.T) {
	assert.Equal(t, "app.users", Topic("", "app", "users"))
	assert.Equal(t, "cdc.app.users", Topic("cdc", "app", "users"))
}
