package publisher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGlobFilter(t *testing.T) {
	filter, err := NewGlobFilter([]string{"users", "orders"}, []string{"shop", "billing"})
	require.NoError(t, err)
	require.NotNil(t, filter)

	assert.Len(t, filter.tableGlobs, 2)
	assert.Len(t, filter.keyspaceGlobs, 2)
}

func TestGlobFilterEmptyPatterns(t *testing.T) {
	filter, err := NewGlobFilter(nil, nil)
	require.NoError(t, err)

	assert.True(t, filter.Match("any_ks", "any_table"))
	assert.True(t, filter.Match("", ""))
}

func TestGlobFilterMatch(t *testing.T) {
	tests := []struct {
		name      string
		tables    []string
		keyspaces []string
		keyspace  string
		table     string
		want      bool
	}{
		{"exact", []string{"users"}, []string{"shop"}, "shop", "users", true},
		{"exact wrong keyspace", []string{"users"}, []string{"shop"}, "billing", "users", false},
		{"exact wrong table", []string{"users"}, []string{"shop"}, "shop", "orders", false},
		{"wildcard", []string{"user*"}, []string{"shop*"}, "shop_eu", "user_accounts", true},
		{"alternatives", []string{"user_{accounts,profiles}"}, nil, "shop", "user_profiles", true},
		{"alternatives miss", []string{"user_{accounts,profiles}"}, nil, "shop", "user_settings", false},
		{"only keyspaces", nil, []string{"shop"}, "shop", "anything", true},
		{"only keyspaces miss", nil, []string{"shop"}, "system", "anything", false},
		{"only tables", []string{"users"}, nil, "anything", "users", true},
		{"qualified table", []string{"shop.users"}, nil, "shop", "users", true},
		{"qualified table other keyspace", []string{"shop.users"}, nil, "billing", "users", false},
		{"qualified wildcard", []string{"shop.*"}, nil, "shop", "orders", true},
		{"case sensitive", []string{"Users"}, nil, "shop", "users", false},
		{"single char", []string{"user?"}, []string{"ks?"}, "ks1", "users", true},
		{"single char miss", []string{"user?"}, []string{"ks?"}, "ks12", "users", false},
		{"range", []string{"events_[0-9]"}, nil, "shop", "events_7", true},
		{"range miss", []string{"events_[0-9]"}, nil, "shop", "events_x", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			filter, err := NewGlobFilter(tc.tables, tc.keyspaces)
			require.NoError(t, err)
			assert.Equal(t, tc.want, filter.Match(tc.keyspace, tc.table))
		})
	}
}

func TestGlobFilterInvalidPattern(t *testing.T) {
	_, err := NewGlobFilter([]string{"users", "user["}, nil)
	assert.ErrorContains(t, err, `invalid table pattern "user["`)

	_, err = NewGlobFilter(nil, []string{"ks["})
	assert.ErrorContains(t, err, `invalid keyspace pattern "ks["`)
}

func BenchmarkGlobFilterMatch(b *testing.B) {
	filter, err := NewGlobFilter([]string{"user*", "order*", "product*"}, []string{"shop", "billing"})
	require.NoError(b, err)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		filter.Match("shop", "users")
	}
}

func BenchmarkGlobFilterMatchMiss(b *testing.B) {
	filter, err := NewGlobFilter([]string{"user*", "order*"}, []string{"shop", "billing"})
	require.NoError(b, err)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		filter.Match("system", "inventory")
	}
}
