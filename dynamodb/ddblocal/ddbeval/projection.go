package ddbeval

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Projection is a parsed projection expression.
type Projection struct {
	paths []Path
}

// ParseProjection parses a comma-separated list of document paths. An empty
// expression projects the whole item.
func ParseProjection(expr string, env *Env) (*Projection, error) {
	if expr == "" {
		return &Projection{}, nil
	}
	p, err := newParser(expr)
	if err != nil {
		return nil, err
	}
	proj := &Projection{}
	for {
		path, err := p.parsePath(env)
		if err != nil {
			return nil, err
		}
		proj.paths = append(proj.paths, path)
		if p.peek().kind != tokComma {
			break
		}
		p.next()
	}
	if err := p.done(); err != nil {
		return nil, err
	}
	for i, a := range proj.paths {
		for _, b := range proj.paths[i+1:] {
			if overlaps(a, b) {
				return nil, fmt.Errorf("two document paths overlap with each other: [%s], [%s]", a, b)
			}
		}
	}
	return proj, nil
}

func (p *Projection) Paths() []Path {
	if p == nil {
		return nil
	}
	return p.paths
}

// Apply returns the projected copy of item.
func (p *Projection) Apply(item Item) Item {
	if p == nil || len(p.paths) == 0 {
		return CloneItem(item)
	}
	out := Item{}
	for _, path := range p.paths {
		v, ok := path.Get(item)
		if !ok {
			continue
		}
		if len(path) == 1 {
			out[path.Top()] = Clone(v)
			continue
		}
		top, ok := out[path.Top()]
		var err error
		out[path.Top()], err = merge(top, ok, item[path.Top()], path[1:], v)
		if err != nil {
			delete(out, path.Top())
		}
	}
	return out
}

// merge grafts leaf into dst following rest, shaping containers after src.
func merge(dst types.AttributeValue, exists bool, src types.AttributeValue, rest Path, leaf types.AttributeValue) (types.AttributeValue, error) {
	if len(rest) == 0 {
		return Clone(leaf), nil
	}
	e := rest[0]
	switch s := src.(type) {
	case *types.AttributeValueMemberM:
		m, _ := dst.(*types.AttributeValueMemberM)
		if !exists || m == nil {
			m = &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{}}
		}
		child, ok := m.Value[e.Name]
		v, err := merge(child, ok, s.Value[e.Name], rest[1:], leaf)
		if err != nil {
			return nil, err
		}
		m.Value[e.Name] = v
		return m, nil
	case *types.AttributeValueMemberL:
		l, _ := dst.(*types.AttributeValueMemberL)
		if !exists || l == nil {
			l = &types.AttributeValueMemberL{}
		}
		v, err := merge(nil, false, s.Value[e.Index], rest[1:], leaf)
		if err != nil {
			return nil, err
		}
		// Projected list elements are compacted in path order.
		l.Value = append(l.Value, v)
		return l, nil
	}
	return nil, fmt.Errorf("path does not match item shape")
}
