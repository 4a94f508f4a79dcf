// Package projection turns a normalized value tree into an ordered CII
// element tree, following the anchors, groups and literals of a profile.
package projection

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"

	"github.com/rezonia/facturx/internal/model"
	"github.com/rezonia/facturx/internal/schema"
)

// Tree is a projected document. It is built fresh per projection and owned
// by the caller.
type Tree struct {
	profile *schema.Profile
	doc     *etree.Document
}

// Profile returns the profile the tree was projected with
func (t *Tree) Profile() *schema.Profile { return t.profile }

// Document returns the underlying element tree
func (t *Tree) Document() *etree.Document { return t.doc }

// Root returns the document element
func (t *Tree) Root() *etree.Element { return t.doc.Root() }

// Project builds the element tree for data, which must have been produced by
// validating against the same profile. Errors returned here are engine or
// schema defects, never data problems.
func Project(p *schema.Profile, data map[string]any) (*Tree, error) {
	if p == nil || !p.Compiled() {
		return nil, model.NewProjectionError("", "profile is not compiled")
	}

	doc := etree.NewDocument()
	root := etree.NewElement(p.RootElement)
	doc.SetRoot(root)

	pr := &projector{
		order:  map[*etree.Element]*schema.OrderNode{root: p.Order()},
		shared: make(map[*etree.Element]map[string]*etree.Element),
		pinned: make(map[*etree.Element]bool),
	}
	if err := pr.steps(p.Root, data, root); err != nil {
		return nil, err
	}
	pr.prune(root)

	return &Tree{profile: p, doc: doc}, nil
}

type projector struct {
	// order maps each created element to its declaration-order template
	order map[*etree.Element]*schema.OrderNode
	// shared holds get-or-create children; fresh array anchors are never
	// registered here
	shared map[*etree.Element]map[string]*etree.Element
	pinned map[*etree.Element]bool
}

func (pr *projector) steps(n *schema.Node, data map[string]any, anchor *etree.Element) error {
	for _, step := range n.Plan() {
		switch {
		case step.Literal != nil:
			if err := pr.literal(anchor, step.Literal, n); err != nil {
				return err
			}
		case step.Group != nil:
			for _, member := range step.Group {
				if err := pr.field(member, data[member.Key()], anchor, true); err != nil {
					return err
				}
			}
		case step.Node != nil:
			if err := pr.field(step.Node, data[step.Node.Key()], anchor, false); err != nil {
				return err
			}
		}
	}
	return nil
}

// field projects one keyed value. Grouped objects get a fresh anchor like
// array elements do, so members never merge into each other.
func (pr *projector) field(n *schema.Node, v any, anchor *etree.Element, grouped bool) error {
	if v == nil {
		return nil
	}
	switch n.Kind() {
	case schema.KindScalar:
		return pr.leaf(n, v, anchor)
	case schema.KindObject:
		m, ok := v.(map[string]any)
		if !ok {
			return model.NewProjectionError(n.DataPath(), fmt.Sprintf("expected object, got %T", v))
		}
		return pr.composite(n, m, anchor, grouped)
	case schema.KindArray:
		items, err := items(n, v)
		if err != nil {
			return err
		}
		for _, item := range items {
			if err := pr.composite(n, item, anchor, true); err != nil {
				return err
			}
		}
	}
	return nil
}

func (pr *projector) composite(n *schema.Node, data map[string]any, parent *etree.Element, fresh bool) error {
	anchor := parent
	elems := n.Path().Elements
	for i, name := range elems {
		var err error
		anchor, err = pr.child(anchor, name, fresh && i == len(elems)-1, n)
		if err != nil {
			return err
		}
	}
	return pr.steps(n, data, anchor)
}

func (pr *projector) leaf(n *schema.Node, v any, anchor *etree.Element) error {
	text, err := format(v)
	if err != nil {
		return model.NewProjectionError(n.DataPath(), err.Error())
	}
	if text == "" {
		return nil
	}

	el, err := pr.walk(anchor, n.Path().Elements, n)
	if err != nil {
		return err
	}
	if attr := n.Path().Attr; attr != "" {
		el.CreateAttr(attr, text)
	} else {
		el.SetText(text)
	}

	for _, lit := range n.Literals() {
		if err := pr.literal(el, lit, n); err != nil {
			return err
		}
	}
	return nil
}

// literal writes a fixed value and pins its target element so pruning keeps
// it even when the value is empty.
func (pr *projector) literal(anchor *etree.Element, lit *schema.Literal, owner *schema.Node) error {
	el, err := pr.walk(anchor, lit.Path.Elements, owner)
	if err != nil {
		return err
	}
	if lit.Path.Attr != "" {
		el.CreateAttr(lit.Path.Attr, lit.Value)
	} else if lit.Value != "" {
		el.SetText(lit.Value)
	}
	pr.pinned[el] = true
	return nil
}

func (pr *projector) walk(el *etree.Element, names []string, owner *schema.Node) (*etree.Element, error) {
	for _, name := range names {
		var err error
		el, err = pr.child(el, name, false, owner)
		if err != nil {
			return nil, err
		}
	}
	return el, nil
}

// child returns the shared child element name of parent, creating it at its
// declared position when missing. With fresh set a new element is always
// created and never shared.
func (pr *projector) child(parent *etree.Element, name string, fresh bool, owner *schema.Node) (*etree.Element, error) {
	if !fresh {
		if el := pr.shared[parent][name]; el != nil {
			return el, nil
		}
	}

	tmpl := pr.order[parent]
	if tmpl == nil {
		return nil, model.NewProjectionError(owner.DataPath(), "element "+parent.FullTag()+" has no order template")
	}
	next := tmpl.Child(name)
	if next == nil {
		return nil, model.NewProjectionError(owner.DataPath(), fmt.Sprintf("element %s is not declared under %s", name, parent.FullTag()))
	}
	rank, _ := tmpl.Rank(name)

	el := etree.NewElement(name)
	parent.InsertChildAt(insertIndex(parent, tmpl, rank), el)
	pr.order[el] = next

	if !fresh {
		byName := pr.shared[parent]
		if byName == nil {
			byName = make(map[string]*etree.Element)
			pr.shared[parent] = byName
		}
		byName[name] = el
	}
	return el, nil
}

// insertIndex places a new child after every existing sibling whose declared
// rank is lower or equal, so equal ranks keep emission order.
func insertIndex(parent *etree.Element, tmpl *schema.OrderNode, rank int) int {
	for i, tok := range parent.Child {
		el, ok := tok.(*etree.Element)
		if !ok {
			continue
		}
		if r, _ := tmpl.Rank(el.FullTag()); r > rank {
			return i
		}
	}
	return len(parent.Child)
}

// prune drops elements left without attributes, text or children, unless a
// literal targets them.
func (pr *projector) prune(el *etree.Element) {
	for _, c := range el.ChildElements() {
		pr.prune(c)
		if pr.pinned[c] || len(c.Attr) > 0 || len(c.ChildElements()) > 0 || c.Text() != "" {
			continue
		}
		el.RemoveChild(c)
	}
}

func items(n *schema.Node, v any) ([]map[string]any, error) {
	switch l := v.(type) {
	case []map[string]any:
		return l, nil
	case []any:
		out := make([]map[string]any, 0, len(l))
		for _, item := range l {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, model.NewProjectionError(n.DataPath(), fmt.Sprintf("expected object element, got %T", item))
			}
			out = append(out, m)
		}
		return out, nil
	}
	return nil, model.NewProjectionError(n.DataPath(), fmt.Sprintf("expected array, got %T", v))
}

func format(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case decimal.Decimal:
		return x.String(), nil
	case bool:
		return strconv.FormatBool(x), nil
	case time.Time:
		return x.Format("20060102"), nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case fmt.Stringer:
		return strings.TrimSpace(x.String()), nil
	}
	return "", fmt.Errorf("cannot render %T as text", v)
}
