package schema

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/multierr"

	"github.com/rezonia/facturx/internal/codelist"
	"github.com/rezonia/facturx/internal/model"
)

// Namespace is a prefix declaration carried by the document root
type Namespace struct {
	Prefix string
	URI    string
}

// Profile is a compiled, read-only field tree plus the metadata needed to
// serialize and embed documents of that profile.
type Profile struct {
	ID                 string
	Name               string
	ConformanceLevel   string
	SpecificationID    string
	AttachmentFileName string
	DocumentType       string
	Version            string
	RootElement        string
	Namespaces         []Namespace
	Root               *Node

	order    *OrderNode
	leaves   int
	compiled bool
}

// Order returns the element order template of the document root
func (p *Profile) Order() *OrderNode { return p.order }

// Compiled reports whether Compile succeeded for this profile
func (p *Profile) Compiled() bool { return p.compiled }

// Leaves returns the number of scalar nodes in the tree
func (p *Profile) Leaves() int { return p.leaves }

// NamespaceURI resolves a declared prefix
func (p *Profile) NamespaceURI(prefix string) (string, bool) {
	for _, ns := range p.Namespaces {
		if ns.Prefix == prefix {
			return ns.URI, true
		}
	}
	return "", false
}

// AbsolutePath concatenates the anchor paths of n's ancestors, starting at
// the document root element.
func (p *Profile) AbsolutePath(n *Node) Path {
	var chain []*Node
	for cur := n; cur != nil; cur = cur.parent {
		chain = append(chain, cur)
	}
	abs := Path{Elements: []string{p.RootElement}}
	for i := len(chain) - 1; i >= 0; i-- {
		abs = abs.Join(chain[i].path)
	}
	return abs
}

// Walk visits every node depth-first in declaration order. Returning false
// from fn skips the node's children.
func (p *Profile) Walk(fn func(n *Node) bool) {
	var walk func(n *Node)
	walk = func(n *Node) {
		if !fn(n) {
			return
		}
		for _, c := range Children(n) {
			walk(c)
		}
	}
	walk(p.Root)
}

// Compile checks the profile definition, resolves code sets and sibling
// order, and freezes the tree. Any problem makes the profile unusable and is
// reported as a *model.MalformedSchemaError listing every problem found.
func Compile(p *Profile, codes *codelist.Registry) (*Profile, error) {
	if p.compiled {
		return p, nil
	}

	c := &compiler{profile: p, codes: codes}
	c.header()
	if p.Root != nil {
		root := newOrderNode()
		if p.Root.kind == KindScalar {
			c.problem("root", "root must be an object")
		} else if !p.Root.path.IsSelf() {
			c.problem("root", "root path must be \".\"")
		}
		c.node(p.Root, nil, "", root)
		p.order = root
	}

	if c.err != nil {
		return nil, model.NewMalformedSchemaError(p.ID, c.err)
	}

	p.leaves = c.leaves
	p.compiled = true
	return p, nil
}

// MustCompile is like Compile but panics on error
func MustCompile(p *Profile, codes *codelist.Registry) *Profile {
	compiled, err := Compile(p, codes)
	if err != nil {
		panic(err)
	}
	return compiled
}

type compiler struct {
	profile *Profile
	codes   *codelist.Registry
	err     error
	leaves  int
}

func (c *compiler) problem(where, format string, args ...any) {
	if where == "" {
		where = "root"
	}
	c.err = multierr.Append(c.err, fmt.Errorf("%s: %s", where, fmt.Sprintf(format, args...)))
}

func (c *compiler) header() {
	p := c.profile
	if p.ID == "" {
		c.problem("profile", "missing identifier")
	}
	if p.AttachmentFileName == "" {
		c.problem("profile", "missing attachment file name")
	}
	if p.Root == nil {
		c.problem("profile", "missing root node")
	}
	seen := make(map[string]bool)
	for _, ns := range p.Namespaces {
		if ns.Prefix == "" || ns.URI == "" {
			c.problem("profile", "namespace declaration needs prefix and URI")
			continue
		}
		if seen[ns.Prefix] {
			c.problem("profile", "namespace prefix %q declared twice", ns.Prefix)
		}
		seen[ns.Prefix] = true
	}
	if p.RootElement == "" {
		c.problem("profile", "missing root element name")
	} else {
		c.qualified("profile", p.RootElement)
	}
}

func (c *compiler) qualified(where, name string) {
	prefix, ok := prefixOf(name)
	if !ok {
		c.problem(where, "element %q is not namespace-qualified", name)
		return
	}
	if _, ok := c.profile.NamespaceURI(prefix); !ok {
		c.problem(where, "undeclared namespace prefix %q", prefix)
	}
}

func (c *compiler) checkPath(where string, p Path) {
	for _, el := range p.Elements {
		c.qualified(where, el)
	}
	if prefix, ok := prefixOf(p.Attr); ok {
		if _, declared := c.profile.NamespaceURI(prefix); !declared {
			c.problem(where, "undeclared namespace prefix %q", prefix)
		}
	}
}

func (c *compiler) node(n *Node, parent *Node, key string, anchor *OrderNode) {
	where := key
	if parent != nil {
		where = joinKey(parent.DataPath(), key)
	}

	if n.frozen || n.parent != nil {
		c.problem(where, "node is used more than once")
		return
	}
	n.key = key
	n.parent = parent

	if n.pathErr != nil {
		c.problem(where, "%v", n.pathErr)
	} else {
		c.checkPath(where, n.path)
	}

	if n.kind == KindScalar {
		c.leaf(n, where, anchor)
	} else {
		c.composite(n, where, anchor)
	}
	n.frozen = true
}

func (c *compiler) leaf(n *Node, where string, anchor *OrderNode) {
	c.leaves++
	if n.group != "" || n.sibling != "" {
		c.problem(where, "only objects and arrays may be grouped")
	}
	if n.typ == TypeEnum {
		if c.codes == nil {
			c.problem(where, "no code list registry for enum %q", n.codeSet)
		} else if set, ok := c.codes.Get(n.codeSet); ok {
			n.codes = set
		} else {
			c.problem(where, "unknown code list %q", n.codeSet)
		}
	}
	if n.hasDef {
		c.checkDefault(n, where)
	}

	own := anchor.descend(n.path.Elements)
	for _, lit := range n.literals {
		if lit.err != nil {
			c.problem(where, "literal: %v", lit.err)
			continue
		}
		if lit.Path.IsSelf() {
			c.problem(where, "literal %q must name an element or attribute", lit.raw)
			continue
		}
		if n.path.Attr != "" && len(lit.Path.Elements) > 0 {
			c.problem(where, "literal %q cannot add elements below an attribute leaf", lit.raw)
			continue
		}
		c.checkPath(where, lit.Path)
		own.descend(lit.Path.Elements)
	}
}

func (c *compiler) checkDefault(n *Node, where string) {
	switch n.typ {
	case TypeBoolean:
		if _, ok := n.def.(bool); !ok {
			c.problem(where, "default %v is not a boolean", n.def)
		}
	case TypeEnum:
		s, ok := n.def.(string)
		if !ok {
			c.problem(where, "default %v is not a code", n.def)
		} else if n.codes != nil && !n.codes.Contains(s) {
			c.problem(where, "default %q is not in code list %s", s, n.codeSet)
		}
	default:
		if n.def == nil {
			c.problem(where, "default is nil")
		}
	}
}

func (c *compiler) composite(n *Node, where string, parentOrder *OrderNode) {
	if len(n.entries) == 0 {
		c.problem(where, "%s has an empty shape", n.kind)
	}
	if n.path.Attr != "" {
		c.problem(where, "anchor path %q may not end in an attribute", n.rawPath)
	}
	if n.kind == KindArray && len(n.path.Elements) == 0 {
		c.problem(where, "array needs an element path")
	}
	if n.hasDef {
		c.problem(where, "defaults are only supported on scalars")
	}
	if len(n.literals) > 0 {
		c.problem(where, "use Fixed entries for literals on composites")
	}

	anchor := parentOrder.descend(n.path.Elements)
	keys := make(map[string]*Node)
	for _, e := range n.entries {
		switch {
		case e.Literal != nil:
			lit := e.Literal
			if lit.err != nil {
				c.problem(where, "literal: %v", lit.err)
				continue
			}
			if lit.Path.IsSelf() {
				c.problem(where, "literal %q must name an element or attribute", lit.raw)
				continue
			}
			c.checkPath(where, lit.Path)
			anchor.descend(lit.Path.Elements)
		case e.Node != nil:
			if e.Key == "" {
				c.problem(where, "field with empty key")
				continue
			}
			if _, dup := keys[e.Key]; dup {
				c.problem(where, "duplicate key %q", e.Key)
				continue
			}
			keys[e.Key] = e.Node
			c.node(e.Node, n, e.Key, anchor)
		default:
			c.problem(where, "empty entry")
		}
	}

	groups := c.groups(n, where, keys)
	n.plan = buildPlan(n, groups)
}

// groups validates the sibling relations of n's shape and returns each group
// label mapped to its members in emission order.
func (c *compiler) groups(n *Node, where string, keys map[string]*Node) map[string][]*Node {
	members := make(map[string][]*Node)
	var labels []string
	for _, child := range Children(n) {
		if child.sibling != "" && child.group == "" {
			c.problem(joinKey(where, child.key), "sibling %q set without a group", child.sibling)
		}
		if child.group == "" {
			continue
		}
		if child.kind == KindScalar {
			continue
		}
		if _, ok := members[child.group]; !ok {
			labels = append(labels, child.group)
		}
		members[child.group] = append(members[child.group], child)
	}

	resolved := make(map[string][]*Node, len(labels))
	for _, label := range labels {
		group := members[label]
		gwhere := joinKey(where, "["+label+"]")
		ok := true

		for _, m := range group {
			if m.sibling == "" {
				continue
			}
			target, exists := keys[m.sibling]
			switch {
			case !exists:
				c.problem(joinKey(where, m.key), "dangling sibling reference %q", m.sibling)
				ok = false
			case target.group == "":
				c.problem(joinKey(where, m.key), "sibling %q has no group", m.sibling)
				ok = false
			case target.group != label:
				c.problem(joinKey(where, m.key), "sibling %q belongs to group %q", m.sibling, target.group)
				ok = false
			}
		}

		if len(group) > 1 && !compatible(group) {
			c.problem(gwhere, "members have incompatible shapes: they need the same anchor element and a common discriminator literal")
			ok = false
		}
		if !ok {
			continue
		}

		order, acyclic := resolveSiblings(group)
		if !acyclic {
			c.problem(gwhere, "sibling references form a cycle")
			continue
		}
		resolved[label] = order
	}
	return resolved
}

func compatible(group []*Node) bool {
	anchor := strings.Join(group[0].path.Elements, "/")
	common := discriminators(group[0])
	for _, m := range group[1:] {
		if strings.Join(m.path.Elements, "/") != anchor {
			return false
		}
		mine := discriminators(m)
		for k := range common {
			if !mine[k] {
				delete(common, k)
			}
		}
	}
	return len(common) > 0
}

func discriminators(n *Node) map[string]bool {
	out := make(map[string]bool)
	for _, e := range n.entries {
		if e.Literal != nil && e.Literal.err == nil {
			out[e.Literal.Path.String()] = true
		}
	}
	return out
}

// resolveSiblings orders group members so that every member follows the one
// it names as sibling. Ties keep declaration order.
func resolveSiblings(group []*Node) ([]*Node, bool) {
	index := make(map[string]int, len(group))
	for i, m := range group {
		index[m.key] = i
	}
	indegree := make([]int, len(group))
	next := make([][]int, len(group))
	for i, m := range group {
		if m.sibling == "" {
			continue
		}
		j := index[m.sibling]
		next[j] = append(next[j], i)
		indegree[i]++
	}

	var ready []int
	for i := range group {
		if indegree[i] == 0 {
			ready = append(ready, i)
		}
	}

	order := make([]*Node, 0, len(group))
	for len(ready) > 0 {
		sort.Ints(ready)
		i := ready[0]
		ready = ready[1:]
		order = append(order, group[i])
		for _, j := range next[i] {
			indegree[j]--
			if indegree[j] == 0 {
				ready = append(ready, j)
			}
		}
	}
	return order, len(order) == len(group)
}

func buildPlan(n *Node, groups map[string][]*Node) []Step {
	var plan []Step
	emitted := make(map[string]bool)
	for _, e := range n.entries {
		switch {
		case e.Literal != nil:
			plan = append(plan, Step{Literal: e.Literal})
		case e.Node != nil:
			label := e.Node.group
			if label == "" || e.Node.kind == KindScalar {
				plan = append(plan, Step{Node: e.Node})
				continue
			}
			if emitted[label] {
				continue
			}
			emitted[label] = true
			if order, ok := groups[label]; ok {
				plan = append(plan, Step{Group: order})
			}
		}
	}
	return plan
}

func joinKey(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "." + key
}
