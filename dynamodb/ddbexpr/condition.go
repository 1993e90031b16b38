package ddbexpr

import (
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Condition guards the request on the existence of keyField:
// attribute_exists when invert is false, attribute_not_exists otherwise.
// The guard is ANDed after any existing condition.
func (c *Compiler) Condition(keyField string, invert bool) *Params {
	fn := "attribute_exists"
	if invert {
		fn = "attribute_not_exists"
	}
	alias := c.nameAlias(PrefixCondition, keyField)
	c.params.ConditionExpression = andExpr(c.params.ConditionExpression, fn+"("+alias+")")
	return c.params
}

// Search describes a case-insensitive substring filter over shadow fields.
type Search struct {
	// Searchable lists the fields that carry a lower-cased shadow copy.
	Searchable map[string]bool
	// Scope narrows Searchable when non-nil.
	Scope map[string]bool
	// ShadowPrefix defaults to "-search-".
	ShadowPrefix string
}

const DefaultShadowPrefix = "-search-"

// Filter ORs one contains() predicate per qualifying searchable field and
// ANDs the result onto any existing FilterExpression. Empty text, or no
// qualifying field, leaves the params unchanged.
func (c *Compiler) Filter(text string, f Search) *Params {
	if text == "" {
		return c.params
	}
	var fields []string
	for _, name := range sortedKeys(f.Searchable) {
		if !f.Searchable[name] {
			continue
		}
		if f.Scope != nil && !f.Scope[name] {
			continue
		}
		fields = append(fields, name)
	}
	if len(fields) == 0 {
		return c.params
	}
	prefix := f.ShadowPrefix
	if prefix == "" {
		prefix = DefaultShadowPrefix
	}
	value := c.valueAlias(PrefixFilterValue, stringValue(strings.ToLower(text)))
	preds := make([]string, 0, len(fields))
	for _, name := range fields {
		preds = append(preds, "contains("+c.nameAlias(PrefixSearch, prefix+name)+", "+value+")")
	}
	c.params.FilterExpression = andExpr(c.params.FilterExpression, strings.Join(preds, " OR "))
	return c.params
}

func stringValue(s string) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: s}
}
