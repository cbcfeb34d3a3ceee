package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeta_RoundTripKeepsOrder(t *testing.T) {
	in := `{"zeta":"1","alpha":{"nested":[1,2]},"mid":null}`

	var m Meta
	require.NoError(t, json.Unmarshal([]byte(in), &m))
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, m.Keys())

	out, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Equal(t, in, string(out))
}

func TestMeta_UnmarshalRejectsNonObject(t *testing.T) {
	var m Meta
	assert.Error(t, json.Unmarshal([]byte(`["a"]`), &m))
}

func TestMeta_DuplicateKeyKeepsFirstPosition(t *testing.T) {
	var m Meta
	require.NoError(t, json.Unmarshal([]byte(`{"a":1,"b":2,"a":3}`), &m))
	assert.Equal(t, []string{"a", "b"}, m.Keys())
	v, _ := m.Get("a")
	assert.JSONEq(t, `3`, string(v))
}

func TestMeta_OmittedWhenEmpty(t *testing.T) {
	p := struct {
		SEO Meta `json:"seo,omitempty"`
	}{}
	out, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(out))
}

func TestMergeMeta(t *testing.T) {
	local := Meta{
		{Key: "title", Value: json.RawMessage(`"Local title"`)},
		{Key: "desc", Value: json.RawMessage(`""`)},
	}
	incoming := Meta{
		{Key: "title", Value: json.RawMessage(`"Hub title"`)},
		{Key: "desc", Value: json.RawMessage(`"Hub desc"`)},
		{Key: "robots", Value: json.RawMessage(`"index"`)},
	}

	tests := []struct {
		name      string
		override  bool
		wantTitle string
		written   []string
	}{
		{"no override keeps local values", false, `"Local title"`, []string{"desc", "robots"}},
		{"override writes everything", true, `"Hub title"`, []string{"title", "desc", "robots"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			merged, written := MergeMeta(local, incoming, tt.override)
			title, _ := merged.Get("title")
			assert.Equal(t, tt.wantTitle, string(title))
			assert.Equal(t, tt.written, written)
			assert.Equal(t, []string{"title", "desc", "robots"}, merged.Keys())
		})
	}

	// local is left untouched
	v, _ := local.Get("desc")
	assert.Equal(t, `""`, string(v))
}
