package ddbeval

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func s(v string) types.AttributeValue { return &types.AttributeValueMemberS{Value: v} }
func n(v string) types.AttributeValue { return &types.AttributeValueMemberN{Value: v} }

func sampleItem() Item {
	return Item{
		"pk":    s("user#1"),
		"name":  s("Alice Smith"),
		"age":   n("30"),
		"tags":  &types.AttributeValueMemberSS{Value: []string{"admin", "ops"}},
		"flag":  &types.AttributeValueMemberBOOL{Value: true},
		"score": n("7.5"),
		"info": &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{
			"city": s("Oslo"),
			"pets": &types.AttributeValueMemberL{Value: []types.AttributeValue{s("cat"), s("dog")}},
		}},
	}
}

func match(t *testing.T, expr string, names map[string]string, values map[string]types.AttributeValue, item Item) bool {
	t.Helper()
	env := NewEnv(names, values)
	c, err := ParseCondition(expr, env)
	require.NoError(t, err)
	require.NoError(t, env.Unused())
	ok, err := c.Match(item)
	require.NoError(t, err)
	return ok
}

func TestCondition(t *testing.T) {
	item := sampleItem()
	vals := map[string]types.AttributeValue{
		":a":   n("30.0"),
		":b":   n("40"),
		":s":   s("Alice"),
		":c":   s("Oslo"),
		":t":   s("SS"),
		":tag": s("ops"),
		":pet": s("dog"),
	}

	tests := []struct {
		name string
		expr string
		vals []string
		want bool
	}{
		{"numeric equality ignores formatting", "age = :a", []string{":a"}, true},
		{"not equal", "age <> :a", []string{":a"}, false},
		{"less than", "age < :b", []string{":b"}, true},
		{"between", "age BETWEEN :a AND :b", []string{":a", ":b"}, true},
		{"in list", "age IN (:b, :a)", []string{":a", ":b"}, true},
		{"begins_with", "begins_with(#n, :s)", []string{":s"}, true},
		{"contains substring", "contains(#n, :s)", []string{":s"}, true},
		{"contains set member", "contains(tags, :tag)", []string{":tag"}, true},
		{"contains list element", "contains(info.pets, :pet)", []string{":pet"}, true},
		{"nested path", "info.city = :c", []string{":c"}, true},
		{"list index", "info.pets[1] = :pet", []string{":pet"}, true},
		{"attribute_type", "attribute_type(tags, :t)", []string{":t"}, true},
		{"attribute_exists", "attribute_exists(flag)", nil, true},
		{"attribute_not_exists", "attribute_not_exists(missing)", nil, true},
		{"missing compares unequal", "missing = :a", []string{":a"}, false},
		{"missing is not equal", "missing <> :a", []string{":a"}, true},
		{"size", "size(tags) < :b", []string{":b"}, true},
		{"precedence NOT > AND > OR", "NOT age = :a AND flag = flag OR age = :b", []string{":a", ":b"}, false},
		{"parentheses", "NOT (age = :b OR missing = :b)", []string{":b"}, true},
		{"mixed types never order", "name < :a", []string{":a"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values := map[string]types.AttributeValue{}
			for _, k := range tt.vals {
				values[k] = vals[k]
			}
			names := map[string]string{}
			if tt.name == "begins_with" || tt.name == "contains substring" {
				names["#n"] = "name"
			}
			assert.Equal(t, tt.want, match(t, tt.expr, names, values, item))
		})
	}
}

func TestCondition_BuilderOutput(t *testing.T) {
	cond := expression.Name("age").GreaterThanEqual(expression.Value(18)).
		And(expression.Name("info.city").Equal(expression.Value("Oslo"))).
		And(expression.AttributeNotExists(expression.Name("deleted")))
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	require.NoError(t, err)

	assert.True(t, match(t, *expr.Condition(), expr.Names(), expr.Values(), sampleItem()))
}

func TestCondition_Errors(t *testing.T) {
	t.Run("undefined name", func(t *testing.T) {
		_, err := ParseCondition("#x = :v", NewEnv(nil, map[string]types.AttributeValue{":v": n("1")}))
		require.Error(t, err)
	})
	t.Run("undefined value", func(t *testing.T) {
		_, err := ParseCondition("a = :v", NewEnv(nil, nil))
		require.Error(t, err)
	})
	t.Run("trailing tokens", func(t *testing.T) {
		_, err := ParseCondition("a = b c", NewEnv(nil, nil))
		require.Error(t, err)
	})
	t.Run("unused value is reported", func(t *testing.T) {
		env := NewEnv(nil, map[string]types.AttributeValue{":v": n("1"), ":w": n("2")})
		_, err := ParseCondition("a = :v", env)
		require.NoError(t, err)
		require.ErrorContains(t, env.Unused(), ":w")
	})
	t.Run("unused name is reported", func(t *testing.T) {
		env := NewEnv(map[string]string{"#a": "a", "#b": "b"}, nil)
		_, err := ParseCondition("attribute_exists(#a)", env)
		require.NoError(t, err)
		require.ErrorContains(t, env.Unused(), "#b")
	})
}

func TestCondition_Equality(t *testing.T) {
	env := NewEnv(map[string]string{"#pk": "pk"}, map[string]types.AttributeValue{
		":pk": s("user#1"),
		":sk": s("order#"),
	})
	c, err := ParseCondition("begins_with(sk, :sk) AND :pk = #pk", env)
	require.NoError(t, err)

	v, ok := c.Equality("pk")
	require.True(t, ok)
	assert.Equal(t, s("user#1"), v)

	_, ok = c.Equality("sk")
	assert.False(t, ok)
}

func TestCondition_EmptyMatchesAll(t *testing.T) {
	c, err := ParseCondition("", NewEnv(nil, nil))
	require.NoError(t, err)
	ok, err := c.Match(nil)
	require.NoError(t, err)
	assert.True(t, ok)
}
