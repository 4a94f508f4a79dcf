package schema

import (
	"errors"
	"fmt"
	"strings"
)

// Path locates a value relative to an anchor element. An empty Elements list
// with no Attr addresses the anchor itself.
type Path struct {
	Elements []string
	Attr     string
}

// Self is the path of the anchor element itself
var Self = Path{}

var errEmptyPath = errors.New("path is empty")

// ParsePath parses "a/b", "a/b/@attr", "@attr" or "." (the anchor itself).
func ParsePath(s string) (Path, error) {
	if s == "" {
		return Path{}, errEmptyPath
	}
	if s == "." {
		return Self, nil
	}

	var p Path
	segments := strings.Split(s, "/")
	for i, seg := range segments {
		if seg == "" {
			return Path{}, fmt.Errorf("path %q has an empty segment", s)
		}
		if strings.ContainsAny(seg, " \t\r\n[]") {
			return Path{}, fmt.Errorf("path %q has an invalid segment %q", s, seg)
		}
		if strings.HasPrefix(seg, "@") {
			if i != len(segments)-1 {
				return Path{}, fmt.Errorf("path %q: attribute must be the last segment", s)
			}
			if len(seg) == 1 {
				return Path{}, fmt.Errorf("path %q has an empty attribute name", s)
			}
			p.Attr = seg[1:]
			continue
		}
		p.Elements = append(p.Elements, seg)
	}
	return p, nil
}

// MustParsePath is like ParsePath but panics on error
func MustParsePath(s string) Path {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

// IsSelf reports whether the path addresses the anchor itself
func (p Path) IsSelf() bool {
	return len(p.Elements) == 0 && p.Attr == ""
}

// Join appends other below p. The attribute of p is dropped.
func (p Path) Join(other Path) Path {
	elems := make([]string, 0, len(p.Elements)+len(other.Elements))
	elems = append(elems, p.Elements...)
	elems = append(elems, other.Elements...)
	return Path{Elements: elems, Attr: other.Attr}
}

func (p Path) String() string {
	if p.IsSelf() {
		return "."
	}
	s := strings.Join(p.Elements, "/")
	if p.Attr != "" {
		if s != "" {
			s += "/"
		}
		s += "@" + p.Attr
	}
	return s
}

func prefixOf(qname string) (string, bool) {
	i := strings.IndexByte(qname, ':')
	if i <= 0 || i == len(qname)-1 {
		return "", false
	}
	return qname[:i], true
}
