package ddbeval

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Update is a parsed update expression.
type Update struct {
	sets    []setAction
	removes []Path
	adds    []setAction
	deletes []setAction
}

type setAction struct {
	path Path
	val  operand
}

type arithOperand struct {
	op   string
	l, r operand
}

func (o arithOperand) value(item Item) (types.AttributeValue, bool, error) {
	l, err := required(o.l, item)
	if err != nil {
		return nil, false, err
	}
	r, err := required(o.r, item)
	if err != nil {
		return nil, false, err
	}
	ln, lok := l.(*types.AttributeValueMemberN)
	rn, rok := r.(*types.AttributeValueMemberN)
	if !lok || !rok {
		return nil, false, fmt.Errorf("incorrect operand type for operator %s", o.op)
	}
	a, err := ParseNumber(ln.Value)
	if err != nil {
		return nil, false, err
	}
	b, err := ParseNumber(rn.Value)
	if err != nil {
		return nil, false, err
	}
	if o.op == "-" {
		b.Neg(b)
	}
	return &types.AttributeValueMemberN{Value: FormatNumber(a.Add(a, b))}, true, nil
}

type ifNotExistsOperand struct {
	path Path
	def  operand
}

func (o ifNotExistsOperand) value(item Item) (types.AttributeValue, bool, error) {
	if v, ok := o.path.Get(item); ok {
		return v, true, nil
	}
	return o.def.value(item)
}

type listAppendOperand struct{ l, r operand }

func (o listAppendOperand) value(item Item) (types.AttributeValue, bool, error) {
	l, err := required(o.l, item)
	if err != nil {
		return nil, false, err
	}
	r, err := required(o.r, item)
	if err != nil {
		return nil, false, err
	}
	ll, lok := l.(*types.AttributeValueMemberL)
	rl, rok := r.(*types.AttributeValueMemberL)
	if !lok || !rok {
		return nil, false, fmt.Errorf("list_append expects two lists")
	}
	return &types.AttributeValueMemberL{Value: append(slices.Clone(ll.Value), rl.Value...)}, true, nil
}

func required(o operand, item Item) (types.AttributeValue, error) {
	v, ok, err := o.value(item)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("the provided expression refers to an attribute that does not exist in the item")
	}
	return v, nil
}

// ParseUpdate parses SET, REMOVE, ADD and DELETE clauses in any order, each
// at most once.
func ParseUpdate(expr string, env *Env) (*Update, error) {
	p, err := newParser(expr)
	if err != nil {
		return nil, err
	}
	u := &Update{}
	seen := map[string]bool{}
	for p.peek().kind != tokEOF {
		kw := p.next()
		if kw.kind != tokIdent {
			return nil, fmt.Errorf("expected update clause, got %s", kw)
		}
		clause := kw.text
		for _, c := range []string{"SET", "REMOVE", "ADD", "DELETE"} {
			if kw.keyword(c) {
				clause = c
			}
		}
		if seen[clause] {
			return nil, fmt.Errorf("the %s section can only be used once in an update expression", clause)
		}
		seen[clause] = true
		for {
			path, err := p.parsePath(env)
			if err != nil {
				return nil, err
			}
			switch clause {
			case "SET":
				if t := p.next(); t.kind != tokCmp || t.text != "=" {
					return nil, fmt.Errorf("expected '=' in SET, got %s", t)
				}
				v, err := p.parseSetValue(env)
				if err != nil {
					return nil, err
				}
				u.sets = append(u.sets, setAction{path, v})
			case "REMOVE":
				u.removes = append(u.removes, path)
			case "ADD", "DELETE":
				t, err := p.expect(tokValue, "value placeholder")
				if err != nil {
					return nil, err
				}
				v, err := env.value(t.text)
				if err != nil {
					return nil, err
				}
				if clause == "ADD" {
					u.adds = append(u.adds, setAction{path, valueOperand{v}})
				} else {
					u.deletes = append(u.deletes, setAction{path, valueOperand{v}})
				}
			default:
				return nil, fmt.Errorf("unknown update clause %s", kw)
			}
			if p.peek().kind != tokComma {
				break
			}
			p.next()
		}
	}
	if len(seen) == 0 {
		return nil, fmt.Errorf("empty update expression")
	}
	if err := u.checkOverlap(); err != nil {
		return nil, err
	}
	return u, nil
}

func (p *parser) parseSetValue(env *Env) (operand, error) {
	l, err := p.parseSetTerm(env)
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind == tokPlus || t.kind == tokMinus {
		p.next()
		r, err := p.parseSetTerm(env)
		if err != nil {
			return nil, err
		}
		return arithOperand{t.text, l, r}, nil
	}
	return l, nil
}

func (p *parser) parseSetTerm(env *Env) (operand, error) {
	t := p.peek()
	if t.kind == tokIdent && p.peekN(1).kind == tokLParen {
		switch {
		case t.keyword("if_not_exists"):
			p.next()
			p.next()
			path, err := p.parsePath(env)
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(tokComma, "','"); err != nil {
				return nil, err
			}
			def, err := p.parseSetTerm(env)
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(tokRParen, "')'"); err != nil {
				return nil, err
			}
			return ifNotExistsOperand{path, def}, nil
		case t.keyword("list_append"):
			p.next()
			p.next()
			l, err := p.parseSetTerm(env)
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(tokComma, "','"); err != nil {
				return nil, err
			}
			r, err := p.parseSetTerm(env)
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(tokRParen, "')'"); err != nil {
				return nil, err
			}
			return listAppendOperand{l, r}, nil
		}
		return nil, fmt.Errorf("unknown function %s in update expression", t)
	}
	return p.parseOperand(env)
}

// Paths lists every path the update writes.
func (u *Update) Paths() []Path {
	var out []Path
	for _, s := range u.sets {
		out = append(out, s.path)
	}
	out = append(out, u.removes...)
	for _, s := range u.adds {
		out = append(out, s.path)
	}
	for _, s := range u.deletes {
		out = append(out, s.path)
	}
	return out
}

func (u *Update) checkOverlap() error {
	paths := u.Paths()
	for i, a := range paths {
		for _, b := range paths[i+1:] {
			if overlaps(a, b) {
				return fmt.Errorf("two document paths overlap with each other: [%s], [%s]", a, b)
			}
		}
	}
	return nil
}

func overlaps(a, b Path) bool {
	n := min(len(a), len(b))
	return slices.Equal(a[:n], b[:n])
}

// Apply returns the updated copy of item. Values are evaluated against the
// item as it was before the update.
func (u *Update) Apply(item Item) (Item, error) {
	before := item
	out := CloneItem(item)
	if out == nil {
		out = Item{}
	}
	for _, s := range u.sets {
		v, err := required(s.val, before)
		if err != nil {
			return nil, err
		}
		if err := setPath(out, s.path, Clone(v)); err != nil {
			return nil, err
		}
	}
	removes := slices.Clone(u.removes)
	// Later list indices first so earlier removals do not shift them.
	slices.SortStableFunc(removes, func(a, b Path) int {
		ea, eb := a[len(a)-1], b[len(b)-1]
		if ea.IsIndex && eb.IsIndex {
			return cmp.Compare(eb.Index, ea.Index)
		}
		return 0
	})
	for _, path := range removes {
		removePath(out, path)
	}
	for _, s := range u.adds {
		if err := addPath(out, s, before); err != nil {
			return nil, err
		}
	}
	for _, s := range u.deletes {
		if err := deletePath(out, s, before); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func setPath(item Item, path Path, v types.AttributeValue) error {
	if len(path) == 1 {
		item[path[0].Name] = v
		return nil
	}
	parent, ok := path[:len(path)-1].Get(item)
	if !ok {
		return fmt.Errorf("the document path provided in the update expression is invalid for update: %s", path)
	}
	last := path[len(path)-1]
	switch pv := parent.(type) {
	case *types.AttributeValueMemberM:
		if last.IsIndex {
			break
		}
		pv.Value[last.Name] = v
		return nil
	case *types.AttributeValueMemberL:
		if !last.IsIndex {
			break
		}
		if last.Index < len(pv.Value) {
			pv.Value[last.Index] = v
		} else {
			pv.Value = append(pv.Value, v)
		}
		return nil
	}
	return fmt.Errorf("the document path provided in the update expression is invalid for update: %s", path)
}

func removePath(item Item, path Path) {
	if len(path) == 1 {
		delete(item, path[0].Name)
		return
	}
	parent, ok := path[:len(path)-1].Get(item)
	if !ok {
		return
	}
	last := path[len(path)-1]
	switch pv := parent.(type) {
	case *types.AttributeValueMemberM:
		delete(pv.Value, last.Name)
	case *types.AttributeValueMemberL:
		if last.IsIndex && last.Index < len(pv.Value) {
			pv.Value = slices.Delete(pv.Value, last.Index, last.Index+1)
		}
	}
}

func addPath(item Item, s setAction, before Item) error {
	delta, err := required(s.val, before)
	if err != nil {
		return err
	}
	cur, exists := s.path.Get(before)
	if !exists {
		return setPath(item, s.path, Clone(delta))
	}
	switch d := delta.(type) {
	case *types.AttributeValueMemberN:
		if _, ok := cur.(*types.AttributeValueMemberN); !ok {
			break
		}
		sum, _, err := arithOperand{"+", valueOperand{cur}, valueOperand{d}}.value(nil)
		if err != nil {
			return err
		}
		return setPath(item, s.path, sum)
	case *types.AttributeValueMemberSS:
		if c, ok := cur.(*types.AttributeValueMemberSS); ok {
			return setPath(item, s.path, &types.AttributeValueMemberSS{Value: union(c.Value, d.Value, func(a, b string) bool { return a == b })})
		}
	case *types.AttributeValueMemberNS:
		if c, ok := cur.(*types.AttributeValueMemberNS); ok {
			return setPath(item, s.path, &types.AttributeValueMemberNS{Value: union(c.Value, d.Value, numEqual)})
		}
	case *types.AttributeValueMemberBS:
		if c, ok := cur.(*types.AttributeValueMemberBS); ok {
			return setPath(item, s.path, &types.AttributeValueMemberBS{Value: union(c.Value, d.Value, bytesEqual)})
		}
	}
	return fmt.Errorf("an operand in the update expression has an incorrect data type for ADD: %s", s.path)
}

func deletePath(item Item, s setAction, before Item) error {
	delta, err := required(s.val, before)
	if err != nil {
		return err
	}
	cur, exists := s.path.Get(before)
	if !exists {
		return nil
	}
	var remaining int
	var next types.AttributeValue
	switch d := delta.(type) {
	case *types.AttributeValueMemberSS:
		c, ok := cur.(*types.AttributeValueMemberSS)
		if !ok {
			return fmt.Errorf("an operand in the update expression has an incorrect data type for DELETE: %s", s.path)
		}
		v := difference(c.Value, d.Value, func(a, b string) bool { return a == b })
		remaining, next = len(v), &types.AttributeValueMemberSS{Value: v}
	case *types.AttributeValueMemberNS:
		c, ok := cur.(*types.AttributeValueMemberNS)
		if !ok {
			return fmt.Errorf("an operand in the update expression has an incorrect data type for DELETE: %s", s.path)
		}
		v := difference(c.Value, d.Value, numEqual)
		remaining, next = len(v), &types.AttributeValueMemberNS{Value: v}
	case *types.AttributeValueMemberBS:
		c, ok := cur.(*types.AttributeValueMemberBS)
		if !ok {
			return fmt.Errorf("an operand in the update expression has an incorrect data type for DELETE: %s", s.path)
		}
		v := difference(c.Value, d.Value, bytesEqual)
		remaining, next = len(v), &types.AttributeValueMemberBS{Value: v}
	default:
		return fmt.Errorf("DELETE expects a set operand: %s", s.path)
	}
	if remaining == 0 {
		removePath(item, s.path)
		return nil
	}
	return setPath(item, s.path, next)
}

func numEqual(a, b string) bool {
	c, err := compareNumbers(a, b)
	return err == nil && c == 0
}

func bytesEqual(a, b []byte) bool {
	return string(a) == string(b)
}

func union[T any](a, b []T, eq func(T, T) bool) []T {
	out := slices.Clone(a)
	for _, x := range b {
		if !slices.ContainsFunc(out, func(y T) bool { return eq(x, y) }) {
			out = append(out, x)
		}
	}
	return out
}

func difference[T any](a, b []T, eq func(T, T) bool) []T {
	var out []T
	for _, x := range a {
		if !slices.ContainsFunc(b, func(y T) bool { return eq(x, y) }) {
			out = append(out, x)
		}
	}
	return out
}
