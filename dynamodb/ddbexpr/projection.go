package ddbexpr

import (
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type projectionOpts struct {
	rename     map[string]string
	separator  string
	skipSelect bool
}

type ProjectionOption func(*projectionOpts)

// WithRename remaps field names before they are compiled.
func WithRename(rename map[string]string) ProjectionOption {
	return func(o *projectionOpts) {
		o.rename = rename
	}
}

// WithFieldSeparator overrides [DefaultSeparator] for field paths.
func WithFieldSeparator(sep string) ProjectionOption {
	return func(o *projectionOpts) {
		o.separator = sep
	}
}

// SkipSelect leaves Select untouched, for callers that will derive a
// COUNT variant of the request.
func SkipSelect() ProjectionOption {
	return func(o *projectionOpts) {
		o.skipSelect = true
	}
}

// Projection appends fields to the ProjectionExpression. Every distinct
// segment gets one alias, shared by all paths that contain it, and paths
// already projected are not repeated. An empty field list is a no-op.
func (c *Compiler) Projection(fields []string, opts ...ProjectionOption) *Params {
	o := projectionOpts{separator: DefaultSeparator}
	for _, opt := range opts {
		opt(&o)
	}
	fields = NormalizeFields(fields, o.rename, o.separator)
	if len(fields) == 0 {
		return c.params
	}

	var compiled []string
	seen := make(map[string]struct{})
	if p := c.params.ProjectionExpression; p != nil && *p != "" {
		for _, part := range strings.Split(*p, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if _, dup := seen[part]; !dup {
				seen[part] = struct{}{}
				compiled = append(compiled, part)
			}
		}
	}
	for _, f := range fields {
		expr := c.renderPath(PrefixProjection, ParsePath(f, o.separator))
		if _, dup := seen[expr]; dup {
			continue
		}
		seen[expr] = struct{}{}
		compiled = append(compiled, expr)
	}

	c.params.ProjectionExpression = ptr(strings.Join(compiled, ", "))
	if !o.skipSelect {
		c.params.Select = types.SelectSpecificAttributes
	}
	return c.params
}
