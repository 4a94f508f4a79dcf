// Package schema describes a profile's invoice field tree: where each value
// comes from in caller data and where it lands in the CII document.
package schema

import (
	"fmt"

	"github.com/rezonia/facturx/internal/codelist"
)

// Kind is the structural kind of a node
type Kind int

const (
	KindScalar Kind = iota
	KindObject
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	default:
		return "unknown"
	}
}

// ScalarType is the value type of a scalar node
type ScalarType int

const (
	TypeString ScalarType = iota
	TypeNumber
	TypeBoolean
	TypeDate
	TypeEnum
)

func (t ScalarType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeNumber:
		return "number"
	case TypeBoolean:
		return "boolean"
	case TypeDate:
		return "date"
	case TypeEnum:
		return "enum"
	default:
		return "unknown"
	}
}

// Literal is a fixed value emitted whenever its anchor element exists
type Literal struct {
	Path  Path
	Value string

	raw string
	err error
}

func newLiteral(path, value string) *Literal {
	p, err := ParsePath(path)
	return &Literal{Path: p, Value: value, raw: path, err: err}
}

// Entry is one item of a composite shape: a keyed child node or an inline
// literal.
type Entry struct {
	Key     string
	Node    *Node
	Literal *Literal
}

// Field declares a keyed child
func Field(key string, n *Node) Entry {
	return Entry{Key: key, Node: n}
}

// Fixed declares a literal below the enclosing anchor. An empty value on an
// element path keeps that element in the output even when it stays empty.
func Fixed(path, value string) Entry {
	return Entry{Literal: newLiteral(path, value)}
}

// Node is one node of a profile's field tree. Nodes are built with the
// constructors below, then frozen by Compile.
type Node struct {
	kind      Kind
	typ       ScalarType
	codeSet   string
	rawPath   string
	path      Path
	pathErr   error
	required  bool
	def       any
	hasDef    bool
	transform func(any) any
	validator func(any) error
	literals  []*Literal
	group     string
	sibling   string
	entries   []Entry

	key    string
	parent *Node
	codes  codelist.Set
	plan   []Step
	frozen bool
}

func newNode(kind Kind, path string) *Node {
	p, err := ParsePath(path)
	return &Node{kind: kind, rawPath: path, path: p, pathErr: err, required: true}
}

func scalar(t ScalarType, path string) *Node {
	n := newNode(KindScalar, path)
	n.typ = t
	return n
}

// String declares a text leaf
func String(path string) *Node { return scalar(TypeString, path) }

// Number declares a numeric leaf
func Number(path string) *Node { return scalar(TypeNumber, path) }

// Boolean declares a boolean leaf
func Boolean(path string) *Node { return scalar(TypeBoolean, path) }

// Date declares a calendar date leaf
func Date(path string) *Node { return scalar(TypeDate, path) }

// Enum declares a leaf whose value must belong to the named code set
func Enum(codeSet, path string) *Node {
	n := scalar(TypeEnum, path)
	n.codeSet = codeSet
	return n
}

// Object declares a single composite. Path "." shares the parent anchor.
func Object(path string, entries ...Entry) *Node {
	n := newNode(KindObject, path)
	n.entries = entries
	return n
}

// Array declares a repeated composite; each element gets its own anchor.
func Array(path string, entries ...Entry) *Node {
	n := newNode(KindArray, path)
	n.entries = entries
	return n
}

func (n *Node) mutable() {
	if n.frozen {
		panic(fmt.Sprintf("schema: node %q modified after compile", n.key))
	}
}

// Optional marks the node as not required
func (n *Node) Optional() *Node {
	n.mutable()
	n.required = false
	return n
}

// Default sets the value substituted when the field is absent. A node with a
// default is never reported missing.
func (n *Node) Default(v any) *Node {
	n.mutable()
	n.def = v
	n.hasDef = true
	return n
}

// Transform sets a pure function applied to a type-checked value
func (n *Node) Transform(fn func(any) any) *Node {
	n.mutable()
	n.transform = fn
	return n
}

// Validate sets an extra predicate over the normalized value
func (n *Node) Validate(fn func(any) error) *Node {
	n.mutable()
	n.validator = fn
	return n
}

// MinItems requires an array to hold at least min elements
func (n *Node) MinItems(count int) *Node {
	return n.Validate(func(v any) error {
		items, _ := v.([]map[string]any)
		if len(items) < count {
			return fmt.Errorf("array must contain at least %d element(s)", count)
		}
		return nil
	})
}

// XML adds a literal relative to the leaf's own element, emitted only when
// the leaf has a value.
func (n *Node) XML(path, value string) *Node {
	n.mutable()
	n.literals = append(n.literals, newLiteral(path, value))
	return n
}

// InGroup places a composite in a merged sibling sequence
func (n *Node) InGroup(label string) *Node {
	n.mutable()
	n.group = label
	return n
}

// After orders this grouped node after the sibling with the given key
func (n *Node) After(key string) *Node {
	n.mutable()
	n.sibling = key
	return n
}

// Kind returns whether the node is an object, an array or a scalar
func (n *Node) Kind() Kind { return n.kind }

// Type returns the scalar type; it is meaningless for composites
func (n *Node) Type() ScalarType { return n.typ }

// CodeSet returns the code list name of an enum node
func (n *Node) CodeSet() string { return n.codeSet }

// Codes returns the code set bound at compile time, nil before
func (n *Node) Codes() codelist.Set { return n.codes }

// Path returns the XML path relative to the parent's anchor
func (n *Node) Path() Path { return n.path }

// Required reports whether the field must be present. A field with a
// default never is.
func (n *Node) Required() bool { return n.required && !n.hasDef }

// Group returns the sibling group label, empty when ungrouped
func (n *Node) Group() string { return n.group }

// Sibling returns the key of the group member this node follows
func (n *Node) Sibling() string { return n.sibling }

// Key returns the data key under the parent, set at compile time
func (n *Node) Key() string { return n.key }

// Parent returns the enclosing composite, nil for the root
func (n *Node) Parent() *Node { return n.parent }

// Entries returns fields and fixed literals in declaration order
func (n *Node) Entries() []Entry { return n.entries }

// Literals returns the fixed attributes and text set with XML
func (n *Node) Literals() []*Literal { return n.literals }

// Plan returns the compiled emission order of a composite
func (n *Node) Plan() []Step { return n.plan }

// DefaultValue returns the default and whether one is set
func (n *Node) DefaultValue() (any, bool) {
	return n.def, n.hasDef
}

// Apply runs the node's transform, if any
func (n *Node) Apply(v any) any {
	if n.transform == nil {
		return v
	}
	return n.transform(v)
}

// Check runs the node's validator, if any
func (n *Node) Check(v any) error {
	if n.validator == nil {
		return nil
	}
	return n.validator(v)
}

// DataPath returns the dotted key path of the node from the root
func (n *Node) DataPath() string {
	if n.parent == nil {
		return ""
	}
	parent := n.parent.DataPath()
	if parent == "" {
		return n.key
	}
	return parent + "." + n.key
}

// Children returns the keyed children of a composite in declaration order
func Children(n *Node) []*Node {
	var out []*Node
	for _, e := range n.entries {
		if e.Node != nil {
			out = append(out, e.Node)
		}
	}
	return out
}

// IsLeaf reports whether n is a scalar
func IsLeaf(n *Node) bool {
	return n.kind == KindScalar
}

// Step is one unit of a composite's output plan: a single field, a literal,
// or a whole sibling group in emission order.
type Step struct {
	Node    *Node
	Group   []*Node
	Literal *Literal
}
