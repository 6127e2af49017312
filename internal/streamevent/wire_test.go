package streamevent

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hypermemetic/plexus-substrate/internal/provenance"
)

func TestMarshalUnmarshalRoundTripEveryKind(t *testing.T) {
	t.Parallel()

	prov := provenance.Root("bash").Extend("run")
	fraction := 0.5

	events := []Event{
		NewData(prov, "hash1", "bash.run_result", json.RawMessage(`{"ok":true}`)),
		NewProgress(prov, "hash1", "running", &fraction),
		NewProgress(prov, "hash1", "starting", nil),
		NewError(prov, "hash1", "boom", true),
		NewDone(prov, "hash1"),
		NewRequest("hash1", "req-1", json.RawMessage(`{"q":"name?"}`), 30000),
		NewGuidance(prov, "hash1", "activation_not_found", "call plexus_schema", "bash", "run", []string{"wizard", "imaging"}),
	}

	for _, ev := range events {
		body, err := Marshal(ev)
		require.NoError(t, err)

		decoded, err := Unmarshal(body)
		require.NoError(t, err)

		assert.Equal(t, ev.Kind(), decoded.Kind())
		assert.Equal(t, ev.SchemaHash(), decoded.SchemaHash())
		assert.Equal(t, ev.Provenance().Segments(), decoded.Provenance().Segments())
		assert.Equal(t, ev, decoded)
	}
}

func TestRequestEventCarriesNilProvenance(t *testing.T) {
	t.Parallel()
	req := NewRequest("hash1", "req-1", json.RawMessage(`{}`), 5000)
	assert.True(t, req.Provenance().Empty())
}

func TestUnmarshalRejectsUnknownKind(t *testing.T) {
	t.Parallel()
	_, err := Unmarshal([]byte(`{"type":"bogus"}`))
	assert.Error(t, err)
}

func TestDoneHasNoTypeSpecificFields(t *testing.T) {
	t.Parallel()
	body, err := Marshal(NewDone(provenance.Root("bash"), "hash1"))
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(body, &raw))
	assert.NotContains(t, raw, "data")
	assert.NotContains(t, raw, "error")
	assert.NotContains(t, raw, "request_id")
}
