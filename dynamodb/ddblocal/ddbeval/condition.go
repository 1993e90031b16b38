package ddbeval

import (
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Condition is a parsed condition, filter or key condition expression.
type Condition struct {
	root condNode
}

// ParseCondition parses a condition expression. An empty expression matches
// every item.
func ParseCondition(expr string, env *Env) (*Condition, error) {
	if expr == "" {
		return &Condition{}, nil
	}
	p, err := newParser(expr)
	if err != nil {
		return nil, err
	}
	root, err := p.parseOr(env)
	if err != nil {
		return nil, err
	}
	if err := p.done(); err != nil {
		return nil, err
	}
	return &Condition{root: root}, nil
}

// Match evaluates the condition against item. A nil item is an absent one.
func (c *Condition) Match(item Item) (bool, error) {
	if c == nil || c.root == nil {
		return true, nil
	}
	return c.root.eval(item)
}

// Equality returns the value a top-level conjunct pins attribute name to,
// as in "pk = :v AND ...".
func (c *Condition) Equality(name string) (types.AttributeValue, bool) {
	if c == nil {
		return nil, false
	}
	return equality(c.root, name)
}

func equality(n condNode, name string) (types.AttributeValue, bool) {
	switch n := n.(type) {
	case andNode:
		if v, ok := equality(n.l, name); ok {
			return v, true
		}
		return equality(n.r, name)
	case compareNode:
		if n.op != "=" {
			return nil, false
		}
		l, lok := n.l.(pathOperand)
		r, rok := n.r.(valueOperand)
		if !lok || !rok {
			// Operands may be written in either order.
			if l2, ok := n.r.(pathOperand); ok {
				if r2, ok := n.l.(valueOperand); ok {
					l, r, lok, rok = l2, r2, true, true
				}
			}
		}
		if lok && rok && len(l.path) == 1 && l.path.Top() == name {
			return r.v, true
		}
	}
	return nil, false
}

func (p *parser) parseOr(env *Env) (condNode, error) {
	left, err := p.parseAnd(env)
	if err != nil {
		return nil, err
	}
	for p.peek().keyword("OR") {
		p.next()
		right, err := p.parseAnd(env)
		if err != nil {
			return nil, err
		}
		left = orNode{left, right}
	}
	return left, nil
}

func (p *parser) parseAnd(env *Env) (condNode, error) {
	left, err := p.parseNot(env)
	if err != nil {
		return nil, err
	}
	for p.peek().keyword("AND") {
		p.next()
		right, err := p.parseNot(env)
		if err != nil {
			return nil, err
		}
		left = andNode{left, right}
	}
	return left, nil
}

func (p *parser) parseNot(env *Env) (condNode, error) {
	if p.peek().keyword("NOT") {
		p.next()
		c, err := p.parseNot(env)
		if err != nil {
			return nil, err
		}
		return notNode{c}, nil
	}
	return p.parsePrimary(env)
}

func (p *parser) parsePrimary(env *Env) (condNode, error) {
	t := p.peek()
	if t.kind == tokLParen {
		p.next()
		c, err := p.parseOr(env)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, "')'"); err != nil {
			return nil, err
		}
		return c, nil
	}
	if t.kind == tokIdent && p.peekN(1).kind == tokLParen {
		switch {
		case t.keyword("attribute_exists"), t.keyword("attribute_not_exists"):
			args, err := p.parseArgs(env, 1)
			if err != nil {
				return nil, err
			}
			path, err := pathArg(t.text, args[0])
			if err != nil {
				return nil, err
			}
			return existsNode{path: path, negate: t.keyword("attribute_not_exists")}, nil
		case t.keyword("attribute_type"), t.keyword("begins_with"), t.keyword("contains"):
			args, err := p.parseArgs(env, 2)
			if err != nil {
				return nil, err
			}
			path, err := pathArg(t.text, args[0])
			if err != nil {
				return nil, err
			}
			switch {
			case t.keyword("attribute_type"):
				return typeNode{path, args[1]}, nil
			case t.keyword("begins_with"):
				return beginsWithNode{path, args[1]}, nil
			}
			return containsNode{path, args[1]}, nil
		}
	}

	left, err := p.parseOperand(env)
	if err != nil {
		return nil, err
	}
	switch t := p.next(); {
	case t.kind == tokCmp:
		right, err := p.parseOperand(env)
		if err != nil {
			return nil, err
		}
		return compareNode{t.text, left, right}, nil
	case t.keyword("BETWEEN"):
		lo, err := p.parseOperand(env)
		if err != nil {
			return nil, err
		}
		if and := p.next(); !and.keyword("AND") {
			return nil, fmt.Errorf("expected AND in BETWEEN, got %s", and)
		}
		hi, err := p.parseOperand(env)
		if err != nil {
			return nil, err
		}
		return betweenNode{left, lo, hi}, nil
	case t.keyword("IN"):
		if _, err := p.expect(tokLParen, "'(' after IN"); err != nil {
			return nil, err
		}
		var list []operand
		for {
			o, err := p.parseOperand(env)
			if err != nil {
				return nil, err
			}
			list = append(list, o)
			if p.peek().kind != tokComma {
				break
			}
			p.next()
		}
		if _, err := p.expect(tokRParen, "')'"); err != nil {
			return nil, err
		}
		if len(list) > 100 {
			return nil, fmt.Errorf("IN accepts at most 100 operands, got %d", len(list))
		}
		return inNode{left, list}, nil
	default:
		return nil, fmt.Errorf("expected comparator, got %s", t)
	}
}

// parseArgs parses "(a, b, ...)" following a function name.
func (p *parser) parseArgs(env *Env, n int) ([]operand, error) {
	name := p.next()
	if _, err := p.expect(tokLParen, "'('"); err != nil {
		return nil, err
	}
	args := make([]operand, 0, n)
	for i := range n {
		if i > 0 {
			if _, err := p.expect(tokComma, "','"); err != nil {
				return nil, err
			}
		}
		o, err := p.parseOperand(env)
		if err != nil {
			return nil, err
		}
		args = append(args, o)
	}
	if _, err := p.expect(tokRParen, "')'"); err != nil {
		return nil, fmt.Errorf("%s: %w", name.text, err)
	}
	return args, nil
}

func pathArg(fn string, o operand) (Path, error) {
	po, ok := o.(pathOperand)
	if !ok {
		return nil, fmt.Errorf("%s: first operand must be an attribute path", fn)
	}
	return po.path, nil
}

// parseOperand parses a path, a value placeholder or size(path).
func (p *parser) parseOperand(env *Env) (operand, error) {
	t := p.peek()
	switch {
	case t.kind == tokValue:
		p.next()
		v, err := env.value(t.text)
		if err != nil {
			return nil, err
		}
		return valueOperand{v}, nil
	case t.keyword("size") && p.peekN(1).kind == tokLParen:
		args, err := p.parseArgs(env, 1)
		if err != nil {
			return nil, err
		}
		path, err := pathArg("size", args[0])
		if err != nil {
			return nil, err
		}
		return sizeOperand{path}, nil
	case t.kind == tokIdent || t.kind == tokName:
		path, err := p.parsePath(env)
		if err != nil {
			return nil, err
		}
		return pathOperand{path}, nil
	}
	return nil, fmt.Errorf("expected operand, got %s", t)
}

func (p *parser) parsePath(env *Env) (Path, error) {
	var path Path
	first := true
	for {
		t := p.peek()
		switch {
		case first || t.kind == tokDot:
			if !first {
				p.next()
				t = p.peek()
			}
			first = false
			p.next()
			switch t.kind {
			case tokIdent:
				path = append(path, PathElem{Name: t.text})
			case tokName:
				n, err := env.name(t.text)
				if err != nil {
					return nil, err
				}
				path = append(path, PathElem{Name: n})
			default:
				return nil, fmt.Errorf("expected attribute name, got %s", t)
			}
		case t.kind == tokLBracket:
			p.next()
			num, err := p.expect(tokNumber, "list index")
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(tokRBracket, "']'"); err != nil {
				return nil, err
			}
			idx, err := strconv.Atoi(num.text)
			if err != nil {
				return nil, fmt.Errorf("invalid list index %s", num)
			}
			path = append(path, PathElem{Index: idx, IsIndex: true})
		default:
			return path, nil
		}
	}
}
