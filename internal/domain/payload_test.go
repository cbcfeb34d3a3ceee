package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlexID_Unmarshal(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    FlexID
		wantErr bool
	}{
		{"number", `{"origin_id": 42}`, "42", false},
		{"string", `{"origin_id": "42"}`, "42", false},
		{"padded string", `{"origin_id": " 7 "}`, "7", false},
		{"null", `{"origin_id": null}`, "", false},
		{"bool kept for validation", `{"origin_id": true}`, "true", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p Payload
			err := json.Unmarshal([]byte(tt.input), &p)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.OriginID)
		})
	}
}

func TestFlexID_MarshalNumeric(t *testing.T) {
	out, err := json.Marshal(struct {
		ID FlexID `json:"id"`
	}{ID: NewFlexID(12)})
	require.NoError(t, err)
	assert.Equal(t, `{"id":12}`, string(out))
}

func TestPayload_Identity(t *testing.T) {
	p := Payload{OriginURL: "https://hub.example.com/", OriginID: "99"}
	id, err := p.Identity()
	require.NoError(t, err)
	assert.Equal(t, Identity{OriginURL: "https://hub.example.com", OriginID: 99}, id)

	p.OriginID = "abc"
	_, err = p.Identity()
	assert.Error(t, err)
}

func TestValidationError(t *testing.T) {
	err := &ValidationError{Errors: []FieldError{
		{Field: "title", Message: "is required"},
		{Field: "origin_id", Message: "must be numeric"},
	}}
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Contains(t, err.Error(), "title: is required")
	assert.Contains(t, err.Error(), "origin_id: must be numeric")
}

func TestJoinURL(t *testing.T) {
	assert.Equal(t, "https://a.example/receive", JoinURL("https://a.example/", "/receive"))
	assert.Equal(t, "https://a.example", JoinURL(" https://a.example// ", ""))
	assert.Equal(t, "https://a.example/media/5", MediaURL("https://a.example", 5))
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "deleted (abc)", DisplayName(nil, "abc"))
	assert.Equal(t, "Blog", DisplayName(&Connection{Name: "Blog"}, "abc"))
}
