package ddbeval

import (
	"bytes"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// PathElem is one step of a document path: a map key or a list index.
type PathElem struct {
	Name    string
	Index   int
	IsIndex bool
}

// Path is a resolved document path; aliases are already substituted.
type Path []PathElem

// Top returns the top-level attribute name.
func (p Path) Top() string {
	if len(p) == 0 {
		return ""
	}
	return p[0].Name
}

func (p Path) String() string {
	var b strings.Builder
	for i, e := range p {
		switch {
		case e.IsIndex:
			b.WriteString("[" + strconv.Itoa(e.Index) + "]")
		case i > 0:
			b.WriteString("." + e.Name)
		default:
			b.WriteString(e.Name)
		}
	}
	return b.String()
}

// Get resolves p against item.
func (p Path) Get(item Item) (types.AttributeValue, bool) {
	if len(p) == 0 || p[0].IsIndex {
		return nil, false
	}
	cur, ok := item[p[0].Name]
	if !ok {
		return nil, false
	}
	for _, e := range p[1:] {
		switch v := cur.(type) {
		case *types.AttributeValueMemberM:
			if e.IsIndex {
				return nil, false
			}
			if cur, ok = v.Value[e.Name]; !ok {
				return nil, false
			}
		case *types.AttributeValueMemberL:
			if !e.IsIndex || e.Index >= len(v.Value) {
				return nil, false
			}
			cur = v.Value[e.Index]
		default:
			return nil, false
		}
	}
	return cur, true
}

// operand yields a value; ok is false when it refers to a missing attribute.
type operand interface {
	value(item Item) (v types.AttributeValue, ok bool, err error)
}

type pathOperand struct{ path Path }

func (o pathOperand) value(item Item) (types.AttributeValue, bool, error) {
	v, ok := o.path.Get(item)
	return v, ok, nil
}

type valueOperand struct{ v types.AttributeValue }

func (o valueOperand) value(Item) (types.AttributeValue, bool, error) {
	return o.v, true, nil
}

type sizeOperand struct{ path Path }

func (o sizeOperand) value(item Item) (types.AttributeValue, bool, error) {
	v, ok := o.path.Get(item)
	if !ok {
		return nil, false, nil
	}
	var n int
	switch av := v.(type) {
	case *types.AttributeValueMemberS:
		n = utf8.RuneCountInString(av.Value)
	case *types.AttributeValueMemberB:
		n = len(av.Value)
	case *types.AttributeValueMemberSS:
		n = len(av.Value)
	case *types.AttributeValueMemberNS:
		n = len(av.Value)
	case *types.AttributeValueMemberBS:
		n = len(av.Value)
	case *types.AttributeValueMemberL:
		n = len(av.Value)
	case *types.AttributeValueMemberM:
		n = len(av.Value)
	default:
		return nil, false, fmt.Errorf("size() is not defined for type %s", TypeName(v))
	}
	return &types.AttributeValueMemberN{Value: strconv.Itoa(n)}, true, nil
}

type condNode interface {
	eval(item Item) (bool, error)
}

type andNode struct{ l, r condNode }

func (n andNode) eval(item Item) (bool, error) {
	ok, err := n.l.eval(item)
	if err != nil || !ok {
		return false, err
	}
	return n.r.eval(item)
}

type orNode struct{ l, r condNode }

func (n orNode) eval(item Item) (bool, error) {
	ok, err := n.l.eval(item)
	if err != nil || ok {
		return ok, err
	}
	return n.r.eval(item)
}

type notNode struct{ c condNode }

func (n notNode) eval(item Item) (bool, error) {
	ok, err := n.c.eval(item)
	return !ok, err
}

type compareNode struct {
	op   string
	l, r operand
}

func (n compareNode) eval(item Item) (bool, error) {
	lv, lok, err := n.l.value(item)
	if err != nil {
		return false, err
	}
	rv, rok, err := n.r.value(item)
	if err != nil {
		return false, err
	}
	if !lok || !rok {
		// A missing attribute is unequal to everything.
		return n.op == "<>", nil
	}
	switch n.op {
	case "=":
		return Equal(lv, rv), nil
	case "<>":
		return !Equal(lv, rv), nil
	}
	c, ok := Compare(lv, rv)
	if !ok {
		return false, nil
	}
	switch n.op {
	case "<":
		return c < 0, nil
	case "<=":
		return c <= 0, nil
	case ">":
		return c > 0, nil
	case ">=":
		return c >= 0, nil
	}
	return false, fmt.Errorf("unknown comparator %q", n.op)
}

type betweenNode struct{ v, lo, hi operand }

func (n betweenNode) eval(item Item) (bool, error) {
	vals := make([]types.AttributeValue, 3)
	for i, o := range []operand{n.v, n.lo, n.hi} {
		v, ok, err := o.value(item)
		if err != nil || !ok {
			return false, err
		}
		vals[i] = v
	}
	lo, ok := Compare(vals[0], vals[1])
	if !ok {
		return false, nil
	}
	hi, ok := Compare(vals[0], vals[2])
	if !ok {
		return false, nil
	}
	return lo >= 0 && hi <= 0, nil
}

type inNode struct {
	v    operand
	list []operand
}

func (n inNode) eval(item Item) (bool, error) {
	v, ok, err := n.v.value(item)
	if err != nil || !ok {
		return false, err
	}
	for _, o := range n.list {
		cand, ok, err := o.value(item)
		if err != nil {
			return false, err
		}
		if ok && Equal(v, cand) {
			return true, nil
		}
	}
	return false, nil
}

type existsNode struct {
	path   Path
	negate bool
}

func (n existsNode) eval(item Item) (bool, error) {
	_, ok := n.path.Get(item)
	return ok != n.negate, nil
}

type typeNode struct {
	path Path
	typ  operand
}

func (n typeNode) eval(item Item) (bool, error) {
	v, ok := n.path.Get(item)
	if !ok {
		return false, nil
	}
	t, _, err := n.typ.value(item)
	if err != nil {
		return false, err
	}
	s, isS := t.(*types.AttributeValueMemberS)
	if !isS {
		return false, fmt.Errorf("attribute_type expects a string type descriptor")
	}
	return TypeName(v) == s.Value, nil
}

type beginsWithNode struct {
	path   Path
	prefix operand
}

func (n beginsWithNode) eval(item Item) (bool, error) {
	v, ok := n.path.Get(item)
	if !ok {
		return false, nil
	}
	p, ok, err := n.prefix.value(item)
	if err != nil || !ok {
		return false, err
	}
	switch av := v.(type) {
	case *types.AttributeValueMemberS:
		ps, isS := p.(*types.AttributeValueMemberS)
		return isS && strings.HasPrefix(av.Value, ps.Value), nil
	case *types.AttributeValueMemberB:
		pb, isB := p.(*types.AttributeValueMemberB)
		return isB && bytes.HasPrefix(av.Value, pb.Value), nil
	}
	return false, nil
}

type containsNode struct {
	path Path
	elem operand
}

func (n containsNode) eval(item Item) (bool, error) {
	v, ok := n.path.Get(item)
	if !ok {
		return false, nil
	}
	e, ok, err := n.elem.value(item)
	if err != nil || !ok {
		return false, err
	}
	switch av := v.(type) {
	case *types.AttributeValueMemberS:
		es, isS := e.(*types.AttributeValueMemberS)
		return isS && strings.Contains(av.Value, es.Value), nil
	case *types.AttributeValueMemberB:
		eb, isB := e.(*types.AttributeValueMemberB)
		return isB && bytes.Contains(av.Value, eb.Value), nil
	case *types.AttributeValueMemberSS:
		es, isS := e.(*types.AttributeValueMemberS)
		return isS && slices.Contains(av.Value, es.Value), nil
	case *types.AttributeValueMemberNS:
		en, isN := e.(*types.AttributeValueMemberN)
		return isN && slices.ContainsFunc(av.Value, func(s string) bool {
			return Equal(&types.AttributeValueMemberN{Value: s}, en)
		}), nil
	case *types.AttributeValueMemberBS:
		eb, isB := e.(*types.AttributeValueMemberB)
		return isB && slices.ContainsFunc(av.Value, func(b []byte) bool { return bytes.Equal(b, eb.Value) }), nil
	case *types.AttributeValueMemberL:
		return slices.ContainsFunc(av.Value, func(x types.AttributeValue) bool { return Equal(x, e) }), nil
	}
	return false, nil
}
