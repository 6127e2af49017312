package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateMissingSchemaAlwaysSucceeds(t *testing.T) {
	t.Parallel()
	v := NewValidator()
	assert.NoError(t, v.Validate("bash_run", []byte(`{"anything":true}`)))
}

func TestValidateCompileAndCheck(t *testing.T) {
	t.Parallel()
	v := NewValidator()
	schemaDoc := []byte(`{
		"type": "object",
		"properties": {"command": {"type": "string"}},
		"required": ["command"]
	}`)
	require.NoError(t, v.Compile("bash_run", schemaDoc))

	assert.NoError(t, v.Validate("bash_run", []byte(`{"command":"ls"}`)))
	assert.Error(t, v.Validate("bash_run", []byte(`{}`)))
}

func TestCompileEmptySchemaClearsPreviousRegistration(t *testing.T) {
	t.Parallel()
	v := NewValidator()
	schemaDoc := []byte(`{"type":"object","required":["command"]}`)
	require.NoError(t, v.Compile("bash_run", schemaDoc))
	assert.Error(t, v.Validate("bash_run", []byte(`{}`)))

	require.NoError(t, v.Compile("bash_run", nil))
	assert.NoError(t, v.Validate("bash_run", []byte(`{}`)))
}
