package ddbexpr

import (
	"regexp"
	"sync"
)

// Cleanup drops every name and value alias that no expression references
// as a whole token. Maps left empty are removed because the wire API rejects
// empty attribute maps.
func Cleanup(p *Params) *Params {
	nameExprs := []*string{
		p.KeyConditionExpression, p.ConditionExpression, p.UpdateExpression,
		p.ProjectionExpression, p.FilterExpression,
	}
	valueExprs := []*string{
		p.KeyConditionExpression, p.ConditionExpression, p.UpdateExpression,
		p.FilterExpression,
	}
	for alias := range p.ExpressionAttributeNames {
		if !referenced(alias, nameExprs) {
			delete(p.ExpressionAttributeNames, alias)
		}
	}
	if len(p.ExpressionAttributeNames) == 0 {
		p.ExpressionAttributeNames = nil
	}
	for alias := range p.ExpressionAttributeValues {
		if !referenced(alias, valueExprs) {
			delete(p.ExpressionAttributeValues, alias)
		}
	}
	if len(p.ExpressionAttributeValues) == 0 {
		p.ExpressionAttributeValues = nil
	}
	return p
}

func referenced(alias string, exprs []*string) bool {
	re := tokenPattern(alias)
	for _, e := range exprs {
		if e != nil && re.MatchString(*e) {
			return true
		}
	}
	return false
}

var patterns sync.Map // alias -> *regexp.Regexp

// tokenPattern matches alias as a whole token: #pr1 must not match inside
// #pr10 or x#pr1.
func tokenPattern(alias string) *regexp.Regexp {
	if re, ok := patterns.Load(alias); ok {
		return re.(*regexp.Regexp)
	}
	re := regexp.MustCompile(`(?:^|[^\w#:])` + regexp.QuoteMeta(alias) + `(?:$|[^\w])`)
	patterns.Store(alias, re)
	return re
}
