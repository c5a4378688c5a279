package schema

import (
	"testing"

	"github.com/maxpert/commitlog-cdc/cfg"
	"github.com/maxpert/commitlog-cdc/codec"
	"github.com/maxpert/commitlog-cdc/row"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var users = TableID{Keyspace: "app", Table: "users"}

func usersConfig() []cfg.TableConfiguration {
	return []cfg.TableConfiguration{{
		Keyspace: "app",
		Table:    "users",
		Columns: []cfg.ColumnConfiguration{
			{Name: "id", Type: "uuid", Kind: "partition"},
			{Name: "created", Type: "timestamp", Kind: "clustering"},
			{Name: "tags", Type: "frozen<set<text>>"},
			{Name: "attrs", Type: "map<text, int>", Kind: "regular"},
		},
	}}
}

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) ColumnsOf(id TableID) ([]row.Column, error) {
	args := m.Called(id)
	if cols := args.Get(0); cols != nil {
		return cols.([]row.Column), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestParseTableID(t *testing.T) {
	id, err := ParseTableID("app.users")
	require.NoError(t, err)
	assert.Equal(t, users, id)
	assert.Equal(t, "app.users", id.String())

	for _, bad := range []string{"", "users", ".users", "app."} {
		_, err := ParseTableID(bad)
		assert.Error(t, err, bad)
	}
}

func TestFromConfig(t *testing.T) {
	s, err := FromConfig(usersConfig())
	require.NoError(t, err)

	cols, err := s.ColumnsOf(users)
	require.NoError(t, err)
	require.Len(t, cols, 4)

	assert.Equal(t, row.Column{Name: "id", Type: codec.Native(codec.KindUUID), Kind: row.Partition}, cols[0])
	assert.Equal(t, row.Clustering, cols[1].Kind)
	assert.Equal(t, codec.SetOf(codec.Native(codec.KindText)), cols[2].Type)
	assert.Equal(t, row.Regular, cols[2].Kind)
	assert.Equal(t, "map<text, int>", cols[3].Type.String())
	assert.Equal(t, []TableID{users}, s.Tables())
}

func TestFromConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		col  cfg.ColumnConfiguration
	}{
		{"bad type", cfg.ColumnConfiguration{Name: "x", Type: "list<"}},
		{"unsupported type", cfg.ColumnConfiguration{Name: "x", Type: "duration"}},
		{"bad kind", cfg.ColumnConfiguration{Name: "x", Type: "int", Kind: "static"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tables := usersConfig()
			tables[0].Columns = append(tables[0].Columns, tc.col)
			_, err := FromConfig(tables)
			assert.Error(t, err)
		})
	}
}

func TestStatic_Put(t *testing.T) {
	s := NewStatic()
	id := codec.Native(codec.KindInt)

	assert.Error(t, s.Put(users, nil))
	assert.Error(t, s.Put(users, []row.Column{{Name: "v", Type: id}}), "no partition key")
	assert.Error(t, s.Put(users, []row.Column{
		{Name: "id", Type: id, Kind: row.Partition},
		{Name: "id", Type: id},
	}))

	cols := []row.Column{{Name: "id", Type: id, Kind: row.Partition}}
	require.NoError(t, s.Put(users, cols))

	// Callers cannot mutate what the provider holds
	cols[0].Name = "changed"
	got, err := s.ColumnsOf(users)
	require.NoError(t, err)
	assert.Equal(t, "id", got[0].Name)

	s.Drop(users)
	_, err = s.ColumnsOf(users)
	assert.ErrorIs(t, err, ErrUnknownTable)
}

func TestStatic_UnknownTable(t *testing.T) {
	_, err := NewStatic().ColumnsOf(TableID{Keyspace: "app", Table: "missing"})
	assert.ErrorIs(t, err, ErrUnknownTable)
	assert.Contains(t, err.Error(), "app.missing")
}

func TestCached_HitsCache(t *testing.T) {
	cols := []row.Column{{Name: "id", Type: codec.Native(codec.KindInt), Kind: row.Partition}}
	next := new(mockProvider)
	next.On("ColumnsOf", users).Return(cols, nil).Once()

	c, err := NewCached(next, 8)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		got, err := c.ColumnsOf(users)
		require.NoError(t, err)
		assert.Equal(t, cols, got)
	}
	next.AssertNumberOfCalls(t, "ColumnsOf", 1)
	assert.Equal(t, 1, c.Len())
}

func TestCached_UnknownTableNotCached(t *testing.T) {
	missing := TableID{Keyspace: "app", Table: "missing"}
	next := new(mockProvider)
	next.On("ColumnsOf", missing).Return(nil, ErrUnknownTable).Twice()

	c, err := NewCached(next, 8)
	require.NoError(t, err)

	_, err = c.ColumnsOf(missing)
	assert.ErrorIs(t, err, ErrUnknownTable)
	_, err = c.ColumnsOf(missing)
	assert.ErrorIs(t, err, ErrUnknownTable)

	next.AssertExpectations(t)
	assert.Equal(t, 0, c.Len())
}

func TestCached_InvalidateAndEviction(t *testing.T) {
	s, err := FromConfig(usersConfig())
	require.NoError(t, err)
	other := TableID{Keyspace: "app", Table: "orders"}
	require.NoError(t, s.Put(other, []row.Column{{Name: "id", Type: codec.Native(codec.KindBigint), Kind: row.Partition}}))

	c, err := NewCached(s, 1)
	require.NoError(t, err)

	_, err = c.ColumnsOf(users)
	require.NoError(t, err)
	_, err = c.ColumnsOf(other)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())

	// A schema change is picked up after invalidation
	require.NoError(t, s.Put(other, []row.Column{
		{Name: "id", Type: codec.Native(codec.KindBigint), Kind: row.Partition},
		{Name: "total", Type: codec.Native(codec.KindDecimal)},
	}))
	cols, _ := c.ColumnsOf(other)
	assert.Len(t, cols, 1)

	c.Invalidate(other)
	cols, err = c.ColumnsOf(other)
	require.NoError(t, err)
	assert.Len(t, cols, 2)

	c.Purge()
	assert.Equal(t, 0, c.Len())
}

func TestNewCached_Validation(t *testing.T) {
	_, err := NewCached(nil, 1)
	assert.Error(t, err)

	c, err := NewCached(NewStatic(), 0)
	require.NoError(t, err)
	assert.NotNil(t, c)
}
