package schema

// OrderNode records, for one element template, the declaration order of the
// child element names that may appear under it.
type OrderNode struct {
	names    []string
	ranks    map[string]int
	children map[string]*OrderNode
}

func newOrderNode() *OrderNode {
	return &OrderNode{
		ranks:    make(map[string]int),
		children: make(map[string]*OrderNode),
	}
}

func (o *OrderNode) descend(names []string) *OrderNode {
	cur := o
	for _, name := range names {
		next, ok := cur.children[name]
		if !ok {
			next = newOrderNode()
			cur.ranks[name] = len(cur.names)
			cur.names = append(cur.names, name)
			cur.children[name] = next
		}
		cur = next
	}
	return cur
}

// Child returns the template of a child element, or nil if name may not
// appear here.
func (o *OrderNode) Child(name string) *OrderNode {
	return o.children[name]
}

// Rank returns the declaration position of a child element name
func (o *OrderNode) Rank(name string) (int, bool) {
	r, ok := o.ranks[name]
	return r, ok
}

// Names returns child element names in declaration order
func (o *OrderNode) Names() []string {
	return append([]string(nil), o.names...)
}
