package storage

import (
	"testing"

	"github.com/poiesic/basicdb/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshalUint64(t *testing.T) {
	tests := []struct {
		name string
		v    uint64
	}{
		{"zero", 0},
		{"small", 42},
		{"max safe integer", 1 << 53},
		{"max uint64", 18446744073709551615},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := MarshalUint64(tt.v)
			require.Len(t, data, 8)

			decoded, err := UnmarshalUint64(data)
			require.NoError(t, err)
			assert.Equal(t, tt.v, decoded)
		})
	}
}

func TestUnmarshalUint64_Invalid(t *testing.T) {
	_, err := UnmarshalUint64([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrTruncatedData)
}

func TestMarshalUnmarshalCatalog(t *testing.T) {
	tests := []struct {
		name    string
		catalog *Catalog
	}{
		{
			name:    "empty database",
			catalog: &Catalog{Name: "db", Version: 1},
		},
		{
			name: "store without indexes",
			catalog: &Catalog{
				Name:    "contacts",
				Version: 3,
				NextID:  1,
				Stores: []StoreMeta{
					{ID: 1, Name: "people", KeyPath: []string{"id"}, AutoIncrement: true},
				},
			},
		},
		{
			name: "stores with indexes",
			catalog: &Catalog{
				Name:    "library",
				Version: 7,
				NextID:  5,
				Stores: []StoreMeta{
					{
						ID:      1,
						Name:    "books",
						KeyPath: []string{"isbn"},
						Indexes: []IndexMeta{
							{ID: 2, Name: "byTitle", KeyPath: []string{"title"}},
							{ID: 3, Name: "byAuthor", KeyPath: []string{"author.last", "author.first"}, Unique: true},
							{ID: 4, Name: "byTag", KeyPath: []string{"tags"}, MultiEntry: true},
						},
					},
					{ID: 5, Name: "loose"},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := MarshalCatalog(tt.catalog)
			require.NotEmpty(t, data)

			decoded, err := UnmarshalCatalog(data)
			require.NoError(t, err)
			assert.Equal(t, tt.catalog, decoded)
		})
	}
}

func TestUnmarshalCatalog_Invalid(t *testing.T) {
	full := MarshalCatalog(&Catalog{
		Name:    "db",
		Version: 2,
		Stores:  []StoreMeta{{ID: 1, Name: "s", KeyPath: []string{"id"}}},
	})

	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{"empty data", []byte{}, ErrTruncatedData},
		{"unknown format", []byte{0x7f, 0x00}, ErrSerializationFailed},
		{"truncated", full[:len(full)-3], ErrSerializationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UnmarshalCatalog(tt.data)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCatalog_Lookups(t *testing.T) {
	c := &Catalog{Name: "db"}
	id := c.AllocID()
	c.Stores = append(c.Stores, StoreMeta{ID: id, Name: "zeta"})
	c.Stores = append(c.Stores, StoreMeta{ID: c.AllocID(), Name: "alpha", Indexes: []IndexMeta{{ID: c.AllocID(), Name: "b"}, {Name: "a"}}})

	assert.Equal(t, []string{"alpha", "zeta"}, c.StoreNames())
	assert.Equal(t, uint64(3), c.NextID)

	s, ok := c.Store("alpha")
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, s.IndexNames())

	ix, ok := s.Index("b")
	require.True(t, ok)
	assert.Equal(t, uint64(3), ix.ID)

	_, ok = c.Store("missing")
	assert.False(t, ok)

	clone := c.Clone()
	clone.Stores[1].Indexes[0].Name = "changed"
	assert.Equal(t, "b", c.Stores[1].Indexes[0].Name)
}

func TestMarshalUnmarshalRecord(t *testing.T) {
	r := core.Record{
		"id":     float64(1),
		"name":   "ada",
		"nested": map[string]any{"list": []any{"a", float64(2), nil, true}},
	}

	data, err := MarshalRecord(r)
	require.NoError(t, err)

	decoded, err := UnmarshalRecord(data)
	require.NoError(t, err)
	assert.Equal(t, r, decoded)
}

func TestUnmarshalRecord_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"not json", []byte("{nope")},
		{"null", []byte("null")},
		{"array", []byte("[1,2]")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UnmarshalRecord(tt.data)
			assert.ErrorIs(t, err, ErrSerializationFailed)
		})
	}
}

func TestPrefixEnd(t *testing.T) {
	assert.Equal(t, []byte{'a', 'c'}, PrefixEnd([]byte("ab")))
	assert.Equal(t, []byte{'b'}, PrefixEnd([]byte{'a', 0xFF}))
	assert.Nil(t, PrefixEnd([]byte{0xFF, 0xFF}))
	assert.Nil(t, PrefixEnd(nil))
}
