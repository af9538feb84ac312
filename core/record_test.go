package core

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type contact struct {
	ID      int       `json:"id"`
	Name    string    `json:"name"`
	Email   string    `json:"email,omitempty"`
	Created time.Time `json:"created"`
}

func TestCloneRecord(t *testing.T) {
	src := map[string]any{
		"name":  "ada",
		"count": 3,
		"tags":  []string{"x", "y"},
		"inner": map[string]any{"ok": true},
	}

	r, err := CloneRecord(src)
	require.NoError(t, err)
	assert.Equal(t, Record{
		"name":  "ada",
		"count": float64(3),
		"tags":  []any{"x", "y"},
		"inner": map[string]any{"ok": true},
	}, r)

	// The clone shares nothing with the source.
	r["inner"].(map[string]any)["ok"] = false
	assert.Equal(t, true, src["inner"].(map[string]any)["ok"])
}

func TestCloneRecord_Struct(t *testing.T) {
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	r, err := CloneRecord(contact{ID: 7, Name: "grace", Created: created})
	require.NoError(t, err)
	assert.Equal(t, float64(7), r["id"])
	assert.Equal(t, "grace", r["name"])
	assert.NotContains(t, r, "email")
	assert.Equal(t, "2024-01-02T03:04:05Z", r["created"])
}

func TestCloneRecord_Errors(t *testing.T) {
	tests := []struct {
		name    string
		value   any
		wantErr error
	}{
		{name: "nil", value: nil, wantErr: ErrNotAnObject},
		{name: "string", value: "hello", wantErr: ErrNotAnObject},
		{name: "array", value: []any{1, 2}, wantErr: ErrNotAnObject},
		{name: "function field", value: map[string]any{"f": func() {}}, wantErr: ErrDataClone},
		{name: "channel field", value: map[string]any{"c": make(chan int)}, wantErr: ErrDataClone},
		{name: "NaN field", value: map[string]any{"n": math.NaN()}, wantErr: ErrDataClone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CloneRecord(tt.value)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRecord_Decode(t *testing.T) {
	r := Record{
		"id":      float64(12),
		"name":    "ada",
		"created": "2024-01-02T03:04:05Z",
		"extra":   "ignored",
	}

	var c contact
	require.NoError(t, r.Decode(&c))
	assert.Equal(t, 12, c.ID)
	assert.Equal(t, "ada", c.Name)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), c.Created.UTC())
}
