// Package validate checks caller data against a compiled profile and
// produces the normalized value tree used for projection.
package validate

import (
	"fmt"
	"regexp"
	"time"
	"unicode/utf8"

	"github.com/rezonia/facturx/internal/decimal"
	"github.com/rezonia/facturx/internal/model"
	"github.com/rezonia/facturx/internal/schema"
)

// Tree is a normalized value tree. Scalars are string, decimal.Decimal,
// bool or time.Time (or whatever a node transform returns); composites are
// map[string]any and []map[string]any.
type Tree = map[string]any

// DateLayout is the fixed-width calendar date form (CII format 102)
const DateLayout = "20060102"

var (
	compactDate = regexp.MustCompile(`^\d{8}$`)
	isoDate     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// Validate walks input against the profile. It never stops at the first
// problem: on failure the returned error is a model.ValidationErrors holding
// every problem found, and no tree is returned.
func Validate(p *schema.Profile, input any) (Tree, error) {
	if p == nil || !p.Compiled() {
		return nil, fmt.Errorf("validate: profile is not compiled")
	}

	w := &walker{}
	raw, ok := asObject(input)
	if !ok {
		w.add(model.NewInvalidType("", input, "object"))
		return nil, w.errs
	}

	tree := w.object(p.Root, raw, "")
	if len(w.errs) > 0 {
		return nil, w.errs
	}
	return tree, nil
}

type walker struct {
	errs model.ValidationErrors
}

func (w *walker) add(err *model.ValidationError) {
	if err.Path == "" {
		err.Path = "$"
	}
	w.errs = append(w.errs, err)
}

func (w *walker) object(n *schema.Node, raw map[string]any, path string) map[string]any {
	out := make(map[string]any)
	for _, child := range schema.Children(n) {
		key := child.Key()
		cpath := join(path, key)

		v, present := raw[key]
		if v == nil {
			present = false
		}
		if !present {
			if def, ok := child.DefaultValue(); ok {
				v, present = def, true
			} else if child.Required() {
				w.add(model.NewMissingRequiredField(cpath))
			}
		}
		if !present {
			continue
		}

		if nv, ok := w.value(child, v, cpath); ok {
			out[key] = nv
		}
	}
	return out
}

func (w *walker) value(n *schema.Node, v any, path string) (any, bool) {
	var (
		out any
		ok  bool
	)
	switch n.Kind() {
	case schema.KindScalar:
		out, ok = w.scalar(n, v, path)
		if ok {
			out = n.Apply(out)
		}
	case schema.KindObject:
		raw, isObj := asObject(v)
		if !isObj {
			w.add(model.NewInvalidType(path, v, "object"))
			return nil, false
		}
		before := len(w.errs)
		out = n.Apply(w.object(n, raw, path))
		ok = len(w.errs) == before
	case schema.KindArray:
		items, isList := asList(v)
		if !isList {
			w.add(model.NewInvalidType(path, v, "array"))
			return nil, false
		}
		before := len(w.errs)
		list := make([]map[string]any, 0, len(items))
		for i, item := range items {
			ipath := fmt.Sprintf("%s[%d]", path, i)
			raw, isObj := asObject(item)
			if !isObj {
				w.add(model.NewInvalidType(ipath, item, "object"))
				continue
			}
			list = append(list, w.object(n, raw, ipath))
		}
		out = n.Apply(list)
		ok = len(w.errs) == before
	}

	if !ok {
		return nil, false
	}
	if err := n.Check(out); err != nil {
		w.add(model.NewConstraintViolation(path, err.Error()))
		return nil, false
	}
	return out, true
}

func (w *walker) scalar(n *schema.Node, v any, path string) (any, bool) {
	switch n.Type() {
	case schema.TypeString:
		s, ok := v.(string)
		if !ok {
			w.add(model.NewInvalidType(path, v, "string"))
			return nil, false
		}
		if !xmlText(s) {
			w.add(model.NewInvalidText(path, s))
			return nil, false
		}
		return s, true

	case schema.TypeNumber:
		d, err := decimal.Coerce(v)
		if err != nil {
			w.add(model.NewInvalidNumber(path, v))
			return nil, false
		}
		return d, true

	case schema.TypeBoolean:
		b, ok := v.(bool)
		if !ok {
			w.add(model.NewInvalidType(path, v, "boolean"))
			return nil, false
		}
		return b, true

	case schema.TypeDate:
		t, ok := ParseDate(v)
		if !ok {
			w.add(model.NewInvalidDate(path, v))
			return nil, false
		}
		return t, true

	case schema.TypeEnum:
		s, ok := v.(string)
		if !ok || n.Codes() == nil || !n.Codes().Contains(s) {
			w.add(model.NewInvalidEnumValue(path, v, n.CodeSet()))
			return nil, false
		}
		return s, true
	}

	w.add(model.NewInvalidType(path, v, n.Type().String()))
	return nil, false
}

// xmlText reports whether s is valid UTF-8 made of XML 1.0 characters
func xmlText(s string) bool {
	if !utf8.ValidString(s) {
		return false
	}
	for _, r := range s {
		switch {
		case r == '\t', r == '\n', r == '\r':
		case r >= 0x20 && r <= 0xD7FF:
		case r >= 0xE000 && r <= 0xFFFD:
		case r >= 0x10000 && r <= 0x10FFFF:
		default:
			return false
		}
	}
	return true
}

// ParseDate accepts a time.Time, an 8-digit YYYYMMDD string or an ISO
// YYYY-MM-DD string, rejecting dates that do not exist on the calendar.
func ParseDate(v any) (time.Time, bool) {
	switch d := v.(type) {
	case time.Time:
		if d.IsZero() {
			return time.Time{}, false
		}
		y, m, day := d.Date()
		return time.Date(y, m, day, 0, 0, 0, 0, time.UTC), true
	case *time.Time:
		if d == nil {
			return time.Time{}, false
		}
		return ParseDate(*d)
	case string:
		layout := ""
		switch {
		case compactDate.MatchString(d):
			layout = DateLayout
		case isoDate.MatchString(d):
			layout = time.DateOnly
		default:
			return time.Time{}, false
		}
		t, err := time.Parse(layout, d)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	}
	return time.Time{}, false
}

// FormatDate renders a date in the fixed-width YYYYMMDD form. Used as the
// transform of date leaves.
func FormatDate(v any) any {
	if t, ok := v.(time.Time); ok {
		return t.Format(DateLayout)
	}
	return v
}

func asObject(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			key, ok := k.(string)
			if !ok {
				key = fmt.Sprint(k)
			}
			out[key] = val
		}
		return out, true
	}
	return nil, false
}

func asList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []map[string]any:
		out := make([]any, len(l))
		for i, m := range l {
			out[i] = m
		}
		return out, true
	}
	return nil, false
}

func join(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "." + key
}
