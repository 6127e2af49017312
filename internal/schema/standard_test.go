package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestStandardResponseWireShape pins the exact wire examples from spec §8
// scenario 1, so a future refactor can't silently drift the field names.
func TestStandardResponseWireShape(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		json string
	}{
		{"text", `{"type":"text","value":"demo"}`},
		{"selected", `{"type":"selected","values":["minimal"]}`},
		{"confirmed", `{"type":"confirmed","value":true}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var resp StandardResponse
			require.NoError(t, json.Unmarshal([]byte(tc.json), &resp))
			assert.Equal(t, tc.name, resp.Type)
		})
	}
}

func TestStandardResponseAsText(t *testing.T) {
	t.Parallel()
	resp := StandardResponse{Type: "text", Value: mustJSON(t, "demo")}
	v, err := resp.AsText()
	require.NoError(t, err)
	assert.Equal(t, "demo", v)

	_, err = resp.AsBool()
	assert.Error(t, err)
}

func TestStandardResponseAsBool(t *testing.T) {
	t.Parallel()
	resp := StandardResponse{Type: "confirmed", Value: mustJSON(t, true)}
	v, err := resp.AsBool()
	require.NoError(t, err)
	assert.True(t, v)
}

func TestStandardResponseAsSelected(t *testing.T) {
	t.Parallel()
	resp := StandardResponse{Type: "selected", Values: []string{"minimal"}}
	v, err := resp.AsSelected()
	require.NoError(t, err)
	assert.Equal(t, []string{"minimal"}, v)
}

func TestStandardResponseIsCancelled(t *testing.T) {
	t.Parallel()
	resp := StandardResponse{Type: "cancelled"}
	assert.True(t, resp.IsCancelled())
	assert.False(t, StandardResponse{Type: "text"}.IsCancelled())
}

func TestConfirmRoundTripMatchesRequestedDefault(t *testing.T) {
	t.Parallel()
	def := true
	req := NewConfirmRequest("Proceed?", &def)
	assert.Equal(t, "confirm", req.Type)
	require.NotNil(t, req.Confirm.Default)
	assert.True(t, *req.Confirm.Default)
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}
