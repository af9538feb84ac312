package core

import (
	"testing"

	"github.com/BurntSushi/toml"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"
)

func TestKeyPath_Evaluate(t *testing.T) {
	r := Record{
		"id":   float64(3),
		"name": "ada",
		"author": map[string]any{
			"name": "grace",
			"address": map[string]any{
				"city": "nyc",
			},
		},
		"tags": []any{"a", "b"},
	}

	tests := []struct {
		name      string
		path      KeyPath
		want      any
		wantFound bool
	}{
		{name: "top level", path: Path("id"), want: float64(3), wantFound: true},
		{name: "nested", path: Path("author.name"), want: "grace", wantFound: true},
		{name: "deep", path: Path("author.address.city"), want: "nyc", wantFound: true},
		{name: "missing", path: Path("email"), wantFound: false},
		{name: "through scalar", path: Path("name.first"), wantFound: false},
		{name: "compound", path: CompoundPath("name", "author.name"), want: []any{"ada", "grace"}, wantFound: true},
		{name: "compound with missing member", path: CompoundPath("name", "email"), wantFound: false},
		{name: "empty path", path: nil, wantFound: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := tt.path.Evaluate(r)
			assert.Equal(t, tt.wantFound, found)
			if tt.wantFound {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestKeyPath_Extract(t *testing.T) {
	r := Record{"id": float64(1), "flag": true, "pair": []any{"x", float64(2)}}

	k, found, err := Path("id").Extract(r)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, float64(1), k)

	_, found, err = Path("nope").Extract(r)
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = Path("flag").Extract(r)
	assert.True(t, found)
	assert.ErrorIs(t, err, ErrInvalidKey)

	k, found, err = Path("pair").Extract(r)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []any{"x", float64(2)}, k)
}

func TestKeyPath_Inject(t *testing.T) {
	r := Record{"name": "ada"}
	require.NoError(t, Path("id").Inject(r, float64(9)))
	assert.Equal(t, float64(9), r["id"])

	require.NoError(t, Path("meta.seq").Inject(r, float64(4)))
	assert.Equal(t, map[string]any{"seq": float64(4)}, r["meta"])

	err := Path("name.first").Inject(r, float64(1))
	assert.ErrorIs(t, err, ErrInvalidKeyPath)

	err = CompoundPath("a", "b").Inject(r, float64(1))
	assert.ErrorIs(t, err, ErrInvalidKeyPath)
}

func TestKeyPath_String(t *testing.T) {
	assert.Equal(t, "", KeyPath(nil).String())
	assert.Equal(t, "a.b", Path("a.b").String())
	assert.Equal(t, "[a,b]", CompoundPath("a", "b").String())
}

type keyPathHolder struct {
	Single   KeyPath `json:"single" toml:"single" yaml:"single"`
	Compound KeyPath `json:"compound" toml:"compound" yaml:"compound"`
}

func TestKeyPath_Decoding(t *testing.T) {
	want := keyPathHolder{
		Single:   Path("author.name"),
		Compound: CompoundPath("last", "first"),
	}

	t.Run("toml", func(t *testing.T) {
		var got keyPathHolder
		_, err := toml.Decode("single = \"author.name\"\ncompound = [\"last\", \"first\"]\n", &got)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("yaml", func(t *testing.T) {
		var got keyPathHolder
		err := yaml.Unmarshal([]byte("single: author.name\ncompound: [last, first]\n"), &got)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("json", func(t *testing.T) {
		var got keyPathHolder
		err := json.Unmarshal([]byte(`{"single":"author.name","compound":["last","first"]}`), &got)
		require.NoError(t, err)
		assert.Equal(t, want, got)

		out, err := json.Marshal(got)
		require.NoError(t, err)
		assert.JSONEq(t, `{"single":"author.name","compound":["last","first"]}`, string(out))
	})

	t.Run("invalid member", func(t *testing.T) {
		var got keyPathHolder
		err := json.Unmarshal([]byte(`{"single":[1]}`), &got)
		assert.ErrorIs(t, err, ErrInvalidKeyPath)
	})
}
