// Package schema defines the plexus introspection tree: the content-
// addressed, hierarchical description of every namespace and method
// registered with the dispatcher (spec §3 "Schema node").
package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

type (
	// Param describes a single named input or output field for a method's
	// schema, used both for the introspection tree and for compiling a
	// JSON Schema document for validation.
	Param struct {
		Name        string `json:"name"`
		Type        string `json:"type"`
		Description string `json:"description"`
	}

	// Method is a leaf of the schema tree: one RPC method addressable on
	// the wire as "<namespace>_<name>".
	Method struct {
		Name        string
		Description string
		Params      []Param
		Returns     string

		// Streaming reports whether the method produces many Data events
		// before Done, versus exactly one Data then Done.
		Streaming bool
		// Bidirectional reports whether the method may inject Request
		// events mid-stream.
		Bidirectional bool
		// RequestSchema/ResponseSchema name the bidirectional request and
		// response shapes for client codegen. Empty for non-bidirectional
		// methods.
		RequestSchema  string
		ResponseSchema string

		// hash is computed once at registration time by Node.Rehash.
		hash string
	}

	// Node is one level of the schema tree. The root node's Namespace is
	// the empty string; every other node corresponds to one registered
	// activation.
	Node struct {
		Namespace string
		Methods   []Method
		Children  []*Node

		hash string
	}

	// methodWire is Method's JSON wire shape (spec §3 "Schema node"):
	// unlike the Go struct, the hash is visible on the wire even though it
	// is only ever set by Node.Rehash.
	methodWire struct {
		Name           string  `json:"name"`
		Description    string  `json:"description"`
		Params         []Param `json:"params,omitempty"`
		Returns        string  `json:"returns,omitempty"`
		Streaming      bool    `json:"streaming"`
		Bidirectional  bool    `json:"bidirectional"`
		RequestSchema  string  `json:"request_schema,omitempty"`
		ResponseSchema string  `json:"response_schema,omitempty"`
		Hash           string  `json:"hash"`
	}

	// nodeWire is Node's JSON wire shape.
	nodeWire struct {
		Namespace string  `json:"namespace"`
		Methods   []Method `json:"methods,omitempty"`
		Children  []*Node  `json:"children,omitempty"`
		Hash      string   `json:"hash"`
	}
)

// MarshalJSON emits the hash alongside Method's exported fields, since the
// hash field itself is unexported (only Node.Rehash may set it).
func (m Method) MarshalJSON() ([]byte, error) {
	return json.Marshal(methodWire{
		Name:           m.Name,
		Description:    m.Description,
		Params:         m.Params,
		Returns:        m.Returns,
		Streaming:      m.Streaming,
		Bidirectional:  m.Bidirectional,
		RequestSchema:  m.RequestSchema,
		ResponseSchema: m.ResponseSchema,
		Hash:           m.hash,
	})
}

// MarshalJSON emits the hash alongside Node's exported fields.
func (n *Node) MarshalJSON() ([]byte, error) {
	return json.Marshal(nodeWire{
		Namespace: n.Namespace,
		Methods:   n.Methods,
		Children:  n.Children,
		Hash:      n.hash,
	})
}

// Hash returns the method's 16-hex-digit content hash, computed from
// (name, description, stringified parameters, stringified return type) per
// spec §3.
func (m Method) Hash() string { return m.hash }

// Hash returns the node's 16-hex-digit content hash: for a method node (a
// child with no further children), derived from its own methods; for an
// interior node, derived from the ordered concatenation of its methods'
// hashes followed by its children's hashes. Any change to any method
// anywhere in the tree changes every ancestor's hash, including the root.
func (n *Node) Hash() string { return n.hash }

func hash16(parts ...string) string {
	h := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(h[:8])
}

func paramString(p Param) string {
	return p.Name + ":" + p.Type + ":" + p.Description
}

func methodHash(m Method) string {
	var params []string
	for _, p := range m.Params {
		params = append(params, paramString(p))
	}
	return hash16(m.Name, m.Description, strings.Join(params, ","), m.Returns)
}

// Rehash recomputes every hash in the tree rooted at n, bottom-up. The
// dispatcher calls this once per registration (spec §4.1: "schema hashing
// is performed at registration time, not per call").
func (n *Node) Rehash() {
	for i := range n.Methods {
		n.Methods[i].hash = methodHash(n.Methods[i])
	}
	for _, c := range n.Children {
		c.Rehash()
	}
	var parts []string
	for _, m := range n.Methods {
		parts = append(parts, m.hash)
	}
	for _, c := range n.Children {
		parts = append(parts, c.hash)
	}
	n.hash = hash16(parts...)
}

// MethodByName returns the named method and true if present.
func (n *Node) MethodByName(name string) (Method, bool) {
	for _, m := range n.Methods {
		if m.Name == name {
			return m, true
		}
	}
	return Method{}, false
}

// SortMethods orders methods by name for deterministic hashing and display.
// Registration code should call this before Rehash when method order isn't
// otherwise guaranteed.
func (n *Node) SortMethods() {
	sort.Slice(n.Methods, func(i, j int) bool { return n.Methods[i].Name < n.Methods[j].Name })
	for _, c := range n.Children {
		c.SortMethods()
	}
}

// Validate checks structural invariants on the node: non-empty namespace
// (except at the root), unique method names, and identifier shape
// ([a-z][a-z0-9_]* per spec §3).
func (n *Node) Validate(isRoot bool) error {
	if !isRoot && n.Namespace == "" {
		return fmt.Errorf("schema: child node missing namespace")
	}
	if !isRoot && !validIdent(n.Namespace) {
		return fmt.Errorf("schema: namespace %q does not match [a-z][a-z0-9_]*", n.Namespace)
	}
	seen := make(map[string]bool, len(n.Methods))
	for _, m := range n.Methods {
		if !validIdent(m.Name) {
			return fmt.Errorf("schema: method %q does not match [a-z][a-z0-9_]*", m.Name)
		}
		if seen[m.Name] {
			return fmt.Errorf("schema: duplicate method %q in namespace %q", m.Name, n.Namespace)
		}
		seen[m.Name] = true
	}
	for _, c := range n.Children {
		if err := c.Validate(false); err != nil {
			return err
		}
	}
	return nil
}

func validIdent(s string) bool {
	if s == "" {
		return false
	}
	if s[0] < 'a' || s[0] > 'z' {
		return false
	}
	for i := 1; i < len(s); i++ {
		c := s[i]
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') && c != '_' {
			return false
		}
	}
	return true
}
