package schema

import (
	"encoding/json"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTree(methodDescription string) *Node {
	root := &Node{}
	root.Children = append(root.Children, &Node{
		Namespace: "bash",
		Methods: []Method{
			{Name: "run", Description: methodDescription, Returns: "RunResult"},
		},
	})
	root.SortMethods()
	root.Rehash()
	return root
}

func TestHashRoundTripThroughPlexusHash(t *testing.T) {
	t.Parallel()

	root := buildTree("execute a shell command")
	payload, err := json.Marshal(root)
	require.NoError(t, err)
	var decoded struct {
		Hash string `json:"hash"`
	}
	require.NoError(t, json.Unmarshal(payload, &decoded))
	// plexus_hash must equal schema().hash (spec §3 invariant).
	assert.Equal(t, root.Hash(), decoded.Hash)
	assert.Len(t, root.Hash(), 16)
}

func TestChangingMethodDescriptionChangesRootHashButNotUnrelatedLeaves(t *testing.T) {
	t.Parallel()

	before := buildTree("execute a shell command")
	h1 := before.Hash()
	bashHash1 := before.Children[0].Hash()
	runHash1 := before.Children[0].Methods[0].Hash()

	unrelated := &Node{Namespace: "wizard", Methods: []Method{{Name: "run", Description: "unrelated"}}}
	before.Children = append(before.Children, unrelated)
	before.SortMethods()
	before.Rehash()
	unrelatedHashBefore := unrelated.Hash()

	after := buildTree("execute a shell command, now documented differently")
	h2 := after.Hash()
	bashHash2 := after.Children[0].Hash()
	runHash2 := after.Children[0].Methods[0].Hash()

	assert.NotEqual(t, h1, h2, "root hash must change when any leaf changes")
	assert.NotEqual(t, bashHash1, bashHash2, "containing namespace hash must change")
	assert.NotEqual(t, runHash1, runHash2, "the edited method's own hash must change")

	// Editing bash.run must not perturb the sibling wizard node: the same
	// wizard node placed beside the edited bash node hashes identically.
	unrelatedAfter := &Node{Namespace: "wizard", Methods: []Method{{Name: "run", Description: "unrelated"}}}
	after.Children = append(after.Children, unrelatedAfter)
	after.SortMethods()
	after.Rehash()
	assert.Equal(t, unrelatedHashBefore, unrelatedAfter.Hash())
}

func TestSchemaJSONExposesHashOnEveryNode(t *testing.T) {
	t.Parallel()

	root := buildTree("execute a shell command")
	payload, err := json.Marshal(root)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(payload, &decoded))

	require.Contains(t, decoded, "hash")
	assert.NotEmpty(t, decoded["hash"])

	children := decoded["children"].([]any)
	require.Len(t, children, 1)
	child := children[0].(map[string]any)
	require.Contains(t, child, "hash")
	assert.NotEmpty(t, child["hash"])

	methods := child["methods"].([]any)
	require.Len(t, methods, 1)
	method := methods[0].(map[string]any)
	require.Contains(t, method, "hash")
	assert.NotEmpty(t, method["hash"])
}

func TestValidateRejectsBadIdentifiers(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		node *Node
		ok   bool
	}{
		{"valid", &Node{Namespace: "bash_shell", Methods: []Method{{Name: "run"}}}, true},
		{"uppercase namespace", &Node{Namespace: "Bash", Methods: []Method{{Name: "run"}}}, false},
		{"empty namespace", &Node{Namespace: "", Methods: []Method{{Name: "run"}}}, false},
		{"duplicate method", &Node{Namespace: "bash", Methods: []Method{{Name: "run"}, {Name: "run"}}}, false},
		{"leading digit method", &Node{Namespace: "bash", Methods: []Method{{Name: "9run"}}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			root := &Node{Children: []*Node{tc.node}}
			err := root.Validate(true)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

// TestIdentifierAllowsInternalUnderscores covers spec §3's addressing rule
// indirectly: identifiers containing underscores remain valid, since the
// split-at-first-underscore rule lives in the dispatcher, not here.
func TestIdentifierAllowsInternalUnderscores(t *testing.T) {
	t.Parallel()
	assert.True(t, validIdent("run_to_completion"))
	assert.False(t, validIdent("_leading"))
	assert.False(t, validIdent(""))
}

// TestRehashIsDeterministicProperty verifies that rehashing an unchanged
// tree always yields the same root hash, and that changing any single
// method's description always changes the root hash — the core content-
// addressing invariant from spec §3.
func TestRehashIsDeterministicProperty(t *testing.T) {
	t.Parallel()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("rehashing twice with no change yields the same hash", prop.ForAll(
		func(desc string) bool {
			root := buildTree(desc)
			h1 := root.Hash()
			root.Rehash()
			return h1 == root.Hash()
		},
		gen.AlphaString(),
	))

	properties.Property("changing description changes the root hash", prop.ForAll(
		func(a, b string) bool {
			if a == b {
				return true
			}
			h1 := buildTree(a).Hash()
			h2 := buildTree(b).Hash()
			return h1 != h2
		},
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
