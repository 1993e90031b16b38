package ddbexpr

import (
	"strings"
)

// Segment is one element of a field path. Index segments address list
// elements and never receive an alias.
type Segment struct {
	Name  string
	index bool
}

func (s Segment) IsIndex() bool {
	return s.index
}

// Path is a parsed field path.
type Path []Segment

// ParsePath splits s on sep. Purely numeric segments and bracketed
// suffixes (a[2]) become index segments.
func ParsePath(s, sep string) Path {
	if sep == "" {
		sep = DefaultSeparator
	}
	var path Path
	for _, part := range strings.Split(s, sep) {
		for part != "" {
			open := strings.IndexByte(part, '[')
			if open < 0 {
				path = append(path, Segment{Name: part, index: isInteger(part)})
				break
			}
			if open > 0 {
				path = append(path, Segment{Name: part[:open], index: isInteger(part[:open])})
			}
			end := strings.IndexByte(part[open:], ']')
			if end < 0 {
				// unbalanced bracket, keep the remainder as a name
				path = append(path, Segment{Name: part[open:]})
				break
			}
			idx := part[open+1 : open+end]
			path = append(path, Segment{Name: idx, index: isInteger(idx)})
			part = part[open+end+1:]
		}
	}
	return path
}

// IndexSegment builds a list index segment.
func IndexSegment(i string) Segment {
	return Segment{Name: i, index: true}
}

// NameSegment builds an attribute name segment.
func NameSegment(name string) Segment {
	return Segment{Name: name}
}

func (p Path) String() string {
	var sb strings.Builder
	for i, seg := range p {
		if seg.index {
			sb.WriteString("[" + seg.Name + "]")
			continue
		}
		if i > 0 {
			sb.WriteByte('.')
		}
		sb.WriteString(seg.Name)
	}
	return sb.String()
}

func isInteger(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
