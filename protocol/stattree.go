package protocol

import (
	"fmt"
	"sort"
	"strings"
)

// MaxStatDepth caps StatTree nesting. Deeper trees are rejected by Validate
// to bound both stack usage and payload size.
const MaxStatDepth = 64

// StatTree is a recursive container of named scalar Values plus named nested
// trees, representing hierarchical instrumentation (e.g. gpu > memory > used).
// A tree is built fresh on every stats tick and must not be mutated after it
// has been handed to a response or a stream.
type StatTree struct {
	Attributes map[string]Value     `json:"attributes,omitempty"`
	Children   map[string]*StatTree `json:"children,omitempty"`
}

// NewStatTree returns an empty tree ready for Set/Child calls.
func NewStatTree() *StatTree {
	return &StatTree{
		Attributes: make(map[string]Value),
		Children:   make(map[string]*StatTree),
	}
}

// Set stores an attribute, returning the tree for chaining.
func (t *StatTree) Set(name string, v Value) *StatTree {
	if t.Attributes == nil {
		t.Attributes = make(map[string]Value)
	}
	t.Attributes[name] = v
	return t
}

// Child returns the named child tree, creating it if needed.
func (t *StatTree) Child(name string) *StatTree {
	if t.Children == nil {
		t.Children = make(map[string]*StatTree)
	}
	c, ok := t.Children[name]
	if !ok {
		c = NewStatTree()
		t.Children[name] = c
	}
	return c
}

// Lookup walks a path like "memory/used" and returns the Value at the leaf.
func (t *StatTree) Lookup(path string) (Value, bool) {
	parts := strings.Split(path, "/")
	cur := t
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur.Children[p]
		if !ok || next == nil {
			return Value{}, false
		}
		cur = next
	}
	v, ok := cur.Attributes[parts[len(parts)-1]]
	return v, ok
}

// Validate checks every attribute Value and enforces the depth cap.
func (t *StatTree) Validate() error {
	return t.validate(1)
}

func (t *StatTree) validate(depth int) error {
	if depth > MaxStatDepth {
		return fmt.Errorf("stat tree exceeds max depth %d", MaxStatDepth)
	}
	for name, v := range t.Attributes {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("attribute %q: %w", name, err)
		}
	}
	for name, c := range t.Children {
		if c == nil {
			continue
		}
		if err := c.validate(depth + 1); err != nil {
			return fmt.Errorf("child %q: %w", name, err)
		}
	}
	return nil
}

// Flatten returns sorted "path = value" lines, for diagnostics pages and logs.
func (t *StatTree) Flatten() []string {
	var out []string
	t.flatten("", &out)
	sort.Strings(out)
	return out
}

func (t *StatTree) flatten(prefix string, out *[]string) {
	for name, v := range t.Attributes {
		*out = append(*out, prefix+name+" = "+v.String())
	}
	for name, c := range t.Children {
		if c != nil {
			c.flatten(prefix+name+"/", out)
		}
	}
}
