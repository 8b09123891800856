package tally

// Reserved keys inside a Node.
const (
	// TextKey holds the character data of an element that also carries
	// attributes or child elements.
	TextKey = "#text"

	// AttrPrefix prefixes attribute names so they never collide with tags.
	AttrPrefix = "@"
)

// Node is one parsed XML element. Children are grouped by tag name and kept
// in the order their tag was first seen. A value is a string (leaf element),
// a *Node (element with attributes or children) or a []any when the tag was
// repeated. A tag seen once is never wrapped in a slice, so callers must treat
// a single value and a one-element slice the same way (see Each).
type Node struct {
	keys []string
	vals map[string]any
}

// NewNode returns an empty node.
func NewNode() *Node {
	return &Node{vals: make(map[string]any)}
}

// Add appends a value under key. A second value under the same key turns the
// entry into a sequence.
func (n *Node) Add(key string, v any) {
	cur, ok := n.vals[key]
	if !ok {
		n.keys = append(n.keys, key)
		n.vals[key] = v
		return
	}
	if seq, isSeq := cur.([]any); isSeq {
		n.vals[key] = append(seq, v)
		return
	}
	n.vals[key] = []any{cur, v}
}

// Get returns the value stored under key, or nil.
func (n *Node) Get(key string) any {
	if n == nil {
		return nil
	}
	return n.vals[key]
}

// Has reports whether key is present.
func (n *Node) Has(key string) bool {
	if n == nil {
		return false
	}
	_, ok := n.vals[key]
	return ok
}

// Keys returns the keys in first-seen order.
func (n *Node) Keys() []string {
	if n == nil {
		return nil
	}
	out := make([]string, len(n.keys))
	copy(out, n.keys)
	return out
}

// Len returns the number of distinct keys.
func (n *Node) Len() int {
	if n == nil {
		return 0
	}
	return len(n.keys)
}

// field returns v[key] when v is a node.
func field(v any, key string) any {
	if n, ok := v.(*Node); ok {
		return n.Get(key)
	}
	return nil
}

// Each normalizes a value to a slice: nil gives an empty slice, a sequence is
// returned as is, anything else becomes a one-element slice.
func Each(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	default:
		return []any{t}
	}
}
