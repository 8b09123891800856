package reconcile

import "github.com/ginjaninja78/tally-import/internal/types"

// Index maps lower-cased customer names to records. It belongs to a single
// run and is updated after every customer create or update, so later
// fragments in the same run see earlier writes.
type Index struct {
	byName map[string]types.Customer
}

// NewIndex builds an index from existing records. When two records share a
// name (ignoring case) the first one wins.
func NewIndex(customers []types.Customer) *Index {
	idx := &Index{byName: make(map[string]types.Customer, len(customers))}
	for _, c := range customers {
		key := types.NameKey(c.Name)
		if _, dup := idx.byName[key]; dup {
			continue
		}
		idx.byName[key] = c
	}
	return idx
}

// Lookup finds a customer by name, ignoring case and surrounding spaces.
func (i *Index) Lookup(name string) (types.Customer, bool) {
	c, ok := i.byName[types.NameKey(name)]
	return c, ok
}

// Put inserts or replaces the entry for c.
func (i *Index) Put(c types.Customer) {
	i.byName[types.NameKey(c.Name)] = c
}

// Replace swaps the entry stored under oldName for c. The key changes only
// when the name itself changed.
func (i *Index) Replace(oldName string, c types.Customer) {
	delete(i.byName, types.NameKey(oldName))
	i.Put(c)
}
