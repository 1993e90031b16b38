package ddbexpr

import (
	"regexp"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
)

var builtToken = regexp.MustCompile(`[#:][0-9]+\b`)

// MergeBuilt folds an expression produced by the SDK expression builder into
// the params. The builder numbers its placeholders from zero (#0, :0), so
// they are re-aliased through the compiler before the clauses are ANDed onto
// whatever the params already hold.
func (c *Compiler) MergeBuilt(expr expression.Expression) *Params {
	names := expr.Names()
	values := expr.Values()
	rename := make(map[string]string, len(names)+len(values))
	for _, alias := range sortedKeys(names) {
		rename[alias] = c.nameAlias(PrefixBuiltName, names[alias])
	}
	for _, alias := range sortedKeys(values) {
		rename[alias] = c.valueAlias(PrefixBuiltValue, values[alias])
	}
	rewrite := func(s *string) string {
		return builtToken.ReplaceAllStringFunc(*s, func(tok string) string {
			if r, ok := rename[tok]; ok {
				return r
			}
			return tok
		})
	}

	if kc := expr.KeyCondition(); kc != nil {
		c.params.KeyConditionExpression = andExpr(c.params.KeyConditionExpression, rewrite(kc))
	}
	if f := expr.Filter(); f != nil {
		c.params.FilterExpression = andExpr(c.params.FilterExpression, rewrite(f))
	}
	if cond := expr.Condition(); cond != nil {
		c.params.ConditionExpression = andExpr(c.params.ConditionExpression, rewrite(cond))
	}
	if proj := expr.Projection(); proj != nil {
		p := rewrite(proj)
		if c.params.ProjectionExpression != nil && *c.params.ProjectionExpression != "" {
			p = *c.params.ProjectionExpression + ", " + p
		}
		c.params.ProjectionExpression = &p
	}
	return c.params
}
