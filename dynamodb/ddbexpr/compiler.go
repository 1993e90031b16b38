package ddbexpr

import (
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Alias prefixes used by the compiler stages.
const (
	PrefixProjection  = "#pr"
	PrefixUpdateKey   = "#upk"
	PrefixUpdateDeep  = "#ups"
	PrefixUpdateValue = ":upv"
	PrefixCondition   = "#k"
	PrefixSearch      = "#sr"
	PrefixFilterValue = ":flt"
	PrefixBuiltName   = "#bn"
	PrefixBuiltValue  = ":bv"
)

// Compiler holds the alias state for one request. It is not safe for
// concurrent use; concurrent callers should compile separate Params.
type Compiler struct {
	params *Params
	next   map[string]int
	names  map[string]string // attribute name -> alias
}

// NewCompiler binds a compiler to p. Counters start past every alias p
// already holds, and names p already aliases are reused.
func NewCompiler(p *Params) *Compiler {
	c := &Compiler{
		params: p,
		next:   make(map[string]int),
		names:  make(map[string]string, len(p.ExpressionAttributeNames)),
	}
	for alias, name := range p.ExpressionAttributeNames {
		c.observe(alias)
		if prev, ok := c.names[name]; !ok || alias < prev {
			c.names[name] = alias
		}
	}
	for alias := range p.ExpressionAttributeValues {
		c.observe(alias)
	}
	return c
}

// Params returns the request the compiler writes into.
func (c *Compiler) Params() *Params {
	return c.params
}

// observe bumps the counter of the prefix alias belongs to, if any.
func (c *Compiler) observe(alias string) {
	i := len(alias)
	for i > 0 && alias[i-1] >= '0' && alias[i-1] <= '9' {
		i--
	}
	if i == len(alias) || i == 0 {
		return
	}
	n, err := strconv.Atoi(alias[i:])
	if err != nil {
		return
	}
	prefix := alias[:i]
	if n+1 > c.next[prefix] {
		c.next[prefix] = n + 1
	}
}

func (c *Compiler) allocate(prefix string) string {
	n := c.next[prefix]
	c.next[prefix] = n + 1
	return prefix + strconv.Itoa(n)
}

// nameAlias returns the alias for an attribute name, allocating one under
// prefix if the name has none yet.
func (c *Compiler) nameAlias(prefix, name string) string {
	if alias, ok := c.names[name]; ok {
		return alias
	}
	alias := c.allocate(prefix)
	c.names[name] = alias
	if c.params.ExpressionAttributeNames == nil {
		c.params.ExpressionAttributeNames = make(map[string]string)
	}
	c.params.ExpressionAttributeNames[alias] = name
	return alias
}

// valueAlias always allocates a fresh alias.
func (c *Compiler) valueAlias(prefix string, v types.AttributeValue) string {
	alias := c.allocate(prefix)
	if c.params.ExpressionAttributeValues == nil {
		c.params.ExpressionAttributeValues = make(map[string]types.AttributeValue)
	}
	c.params.ExpressionAttributeValues[alias] = v
	return alias
}

// renderPath turns a path into its aliased expression form, e.g.
// #pr0.#pr1[2].#pr2
func (c *Compiler) renderPath(prefix string, path Path) string {
	var sb strings.Builder
	for i, seg := range path {
		if seg.IsIndex() {
			sb.WriteByte('[')
			sb.WriteString(seg.Name)
			sb.WriteByte(']')
			continue
		}
		if i > 0 {
			sb.WriteByte('.')
		}
		sb.WriteString(c.nameAlias(prefix, seg.Name))
	}
	return sb.String()
}

func andExpr(existing *string, expr string) *string {
	if existing == nil || *existing == "" {
		return &expr
	}
	return ptr("(" + *existing + ") AND (" + expr + ")")
}
