package ddbexpr

import (
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type updateOpts struct {
	separator string
}

type UpdateOption func(*updateOpts)

// WithSeparator sets the separator used to split patch keys and delete
// paths into segments.
func WithSeparator(sep string) UpdateOption {
	return func(o *updateOpts) {
		o.separator = sep
	}
}

// Update compiles a flat patch. Each patch key (split on the separator) is
// assigned its value; each delete path is removed. When neither produces an
// action the UpdateExpression is cleared and [Params.HasUpdate] reports false.
func (c *Compiler) Update(patch map[string]types.AttributeValue, deletePaths []string, opts ...UpdateOption) *Params {
	o := updateOpts{separator: DefaultSeparator}
	for _, opt := range opts {
		opt(&o)
	}
	removes := c.removeActions(PrefixUpdateKey, deletePaths, o.separator)
	var sets []string
	for _, key := range sortedKeys(patch) {
		path := c.renderPath(PrefixUpdateKey, ParsePath(key, o.separator))
		sets = append(sets, path+" = "+c.valueAlias(PrefixUpdateValue, patch[key]))
	}
	return c.setUpdate(removes, sets)
}

// DeepUpdate compiles a nested patch into one assignment per leaf, so map
// keys and list elements absent from the patch are preserved.
func (c *Compiler) DeepUpdate(patch map[string]types.AttributeValue, deletePaths []string, opts ...UpdateOption) *Params {
	o := updateOpts{separator: DefaultSeparator}
	for _, opt := range opts {
		opt(&o)
	}
	removes := c.removeActions(PrefixUpdateDeep, deletePaths, o.separator)
	var sets []string
	for _, leaf := range Leaves(patch) {
		path := c.renderPath(PrefixUpdateDeep, leaf.Path)
		sets = append(sets, path+" = "+c.valueAlias(PrefixUpdateValue, leaf.Value))
	}
	return c.setUpdate(removes, sets)
}

func (c *Compiler) removeActions(prefix string, deletePaths []string, sep string) []string {
	var removes []string
	for _, p := range deletePaths {
		if p == "" {
			continue
		}
		removes = append(removes, c.renderPath(prefix, ParsePath(p, sep)))
	}
	return removes
}

func (c *Compiler) setUpdate(removes, sets []string) *Params {
	var clauses []string
	if len(removes) > 0 {
		clauses = append(clauses, "REMOVE "+strings.Join(removes, ", "))
	}
	if len(sets) > 0 {
		clauses = append(clauses, "SET "+strings.Join(sets, ", "))
	}
	if len(clauses) == 0 {
		c.params.UpdateExpression = nil
		return c.params
	}
	c.params.UpdateExpression = ptr(strings.Join(clauses, " "))
	return c.params
}

// Leaf is a non-container value found at Path inside a patch.
type Leaf struct {
	Path  Path
	Value types.AttributeValue
}

// Leaves walks map and list nodes of a wire-encoded patch and returns every
// leaf in deterministic order. Empty maps and lists are leaves themselves.
func Leaves(patch map[string]types.AttributeValue) []Leaf {
	var leaves []Leaf
	for _, key := range sortedKeys(patch) {
		leaves = collectLeaves(leaves, Path{NameSegment(key)}, patch[key])
	}
	return leaves
}

func collectLeaves(acc []Leaf, prefix Path, v types.AttributeValue) []Leaf {
	switch node := v.(type) {
	case *types.AttributeValueMemberM:
		if len(node.Value) == 0 {
			break
		}
		for _, key := range sortedKeys(node.Value) {
			acc = collectLeaves(acc, extend(prefix, NameSegment(key)), node.Value[key])
		}
		return acc
	case *types.AttributeValueMemberL:
		if len(node.Value) == 0 {
			break
		}
		for i, item := range node.Value {
			acc = collectLeaves(acc, extend(prefix, IndexSegment(strconv.Itoa(i))), item)
		}
		return acc
	}
	return append(acc, Leaf{Path: prefix, Value: v})
}

// extend copies so sibling branches never share a backing array.
func extend(p Path, seg Segment) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, seg)
}
