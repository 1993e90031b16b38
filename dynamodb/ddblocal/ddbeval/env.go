package ddbeval

import (
	"fmt"
	"slices"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Env carries the placeholder maps of one request. It records which
// placeholders the parsed expressions reference so unused ones can be
// rejected the way DynamoDB does.
type Env struct {
	Names  map[string]string
	Values map[string]types.AttributeValue

	usedNames  map[string]bool
	usedValues map[string]bool
}

func NewEnv(names map[string]string, values map[string]types.AttributeValue) *Env {
	return &Env{Names: names, Values: values}
}

func (e *Env) name(alias string) (string, error) {
	n, ok := e.Names[alias]
	if !ok {
		return "", fmt.Errorf("an expression attribute name used in the document path is not defined; attribute name: %s", alias)
	}
	if e.usedNames == nil {
		e.usedNames = map[string]bool{}
	}
	e.usedNames[alias] = true
	return n, nil
}

func (e *Env) value(alias string) (types.AttributeValue, error) {
	v, ok := e.Values[alias]
	if !ok {
		return nil, fmt.Errorf("an expression attribute value used in expression is not defined; attribute value: %s", alias)
	}
	if e.usedValues == nil {
		e.usedValues = map[string]bool{}
	}
	e.usedValues[alias] = true
	return v, nil
}

// Unused reports placeholders supplied but never referenced.
func (e *Env) Unused() error {
	var names, values []string
	for k := range e.Names {
		if !e.usedNames[k] {
			names = append(names, k)
		}
	}
	for k := range e.Values {
		if !e.usedValues[k] {
			values = append(values, k)
		}
	}
	switch {
	case len(names) > 0:
		slices.Sort(names)
		return fmt.Errorf("value provided in ExpressionAttributeNames unused in expressions: keys: {%s}", strings.Join(names, ", "))
	case len(values) > 0:
		slices.Sort(values)
		return fmt.Errorf("value provided in ExpressionAttributeValues unused in expressions: keys: {%s}", strings.Join(values, ", "))
	}
	return nil
}
