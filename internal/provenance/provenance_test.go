package provenance

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRootExtend(t *testing.T) {
	t.Parallel()

	root := Root("shell")
	assert.Equal(t, Chain{"shell"}, root)
	assert.False(t, root.Empty())

	extended := root.Extend("bash")
	assert.Equal(t, Chain{"shell", "bash"}, extended)
	// Extend must not mutate the receiver.
	assert.Equal(t, Chain{"shell"}, root)
}

func TestEmptyChain(t *testing.T) {
	t.Parallel()

	var c Chain
	assert.True(t, c.Empty())
	assert.Empty(t, c.Segments())
}

func TestSegmentsIsACopy(t *testing.T) {
	t.Parallel()

	c := Root("shell").Extend("bash")
	segs := c.Segments()
	segs[0] = "mutated"
	assert.Equal(t, "shell", c[0])
}

func TestString(t *testing.T) {
	t.Parallel()

	c := Root("shell").Extend("bash").Extend("run")
	assert.Equal(t, "shell > bash > run", c.String())
}
