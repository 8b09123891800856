package tally

// Collect returns every value stored under tag anywhere in tree, flattened
// into one slice.
//
// At each node the node's own matches are appended first, then every nested
// node or sequence is searched in key order, depth first. Matched values are
// searched too, so a LEDGER nested inside a LEDGER is found as well. A tag
// seen once and a repeated tag are treated alike. The tree is not modified.
func Collect(tree any, tag string) []any {
	var acc []any
	return collect(tree, tag, acc)
}

func collect(v any, tag string, acc []any) []any {
	switch t := v.(type) {
	case *Node:
		if t == nil {
			return acc
		}
		if t.Has(tag) {
			acc = append(acc, Each(t.Get(tag))...)
		}
		for _, k := range t.keys {
			switch child := t.vals[k].(type) {
			case *Node, []any:
				acc = collect(child, tag, acc)
			}
		}
	case []any:
		for _, item := range t {
			switch item.(type) {
			case *Node, []any:
				acc = collect(item, tag, acc)
			}
		}
	}
	return acc
}
