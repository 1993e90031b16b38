package ddbeval

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func apply(t *testing.T, expr string, names map[string]string, values map[string]types.AttributeValue, item Item) Item {
	t.Helper()
	env := NewEnv(names, values)
	u, err := ParseUpdate(expr, env)
	require.NoError(t, err)
	require.NoError(t, env.Unused())
	out, err := u.Apply(item)
	require.NoError(t, err)
	return out
}

func TestUpdate(t *testing.T) {
	t.Run("SET and REMOVE in any order", func(t *testing.T) {
		out := apply(t, "REMOVE flag SET #n = :n, info.city = :c", map[string]string{"#n": "name"},
			map[string]types.AttributeValue{":n": s("Bob"), ":c": s("Bergen")}, sampleItem())

		assert.Equal(t, s("Bob"), out["name"])
		assert.NotContains(t, out, "flag")
		city, _ := Path{{Name: "info"}, {Name: "city"}}.Get(out)
		assert.Equal(t, s("Bergen"), city)
	})

	t.Run("does not mutate the input", func(t *testing.T) {
		item := sampleItem()
		apply(t, "SET info.city = :c", nil, map[string]types.AttributeValue{":c": s("Bergen")}, item)
		city, _ := Path{{Name: "info"}, {Name: "city"}}.Get(item)
		assert.Equal(t, s("Oslo"), city)
	})

	t.Run("arithmetic", func(t *testing.T) {
		out := apply(t, "SET age = age + :one, score = score - :half", nil,
			map[string]types.AttributeValue{":one": n("1"), ":half": n("0.25")}, sampleItem())
		assert.Equal(t, n("31"), out["age"])
		assert.Equal(t, n("7.25"), out["score"])
	})

	t.Run("right hand side sees the original item", func(t *testing.T) {
		out := apply(t, "SET a = age, age = :z", nil, map[string]types.AttributeValue{":z": n("0")}, sampleItem())
		assert.Equal(t, n("30"), out["a"])
		assert.Equal(t, n("0"), out["age"])
	})

	t.Run("if_not_exists and list_append", func(t *testing.T) {
		out := apply(t, "SET visits = if_not_exists(visits, :zero), info.pets = list_append(info.pets, :more)", nil,
			map[string]types.AttributeValue{
				":zero": n("0"),
				":more": &types.AttributeValueMemberL{Value: []types.AttributeValue{s("fish")}},
			}, sampleItem())
		assert.Equal(t, n("0"), out["visits"])
		pets, _ := Path{{Name: "info"}, {Name: "pets"}}.Get(out)
		assert.Len(t, pets.(*types.AttributeValueMemberL).Value, 3)
	})

	t.Run("ADD and DELETE on sets and numbers", func(t *testing.T) {
		out := apply(t, "ADD age :two, tags :add DELETE flagset :drop", nil,
			map[string]types.AttributeValue{
				":two":  n("2"),
				":add":  &types.AttributeValueMemberSS{Value: []string{"ops", "dev"}},
				":drop": &types.AttributeValueMemberSS{Value: []string{"x"}},
			}, sampleItem())
		assert.Equal(t, n("32"), out["age"])
		assert.ElementsMatch(t, []string{"admin", "ops", "dev"}, out["tags"].(*types.AttributeValueMemberSS).Value)
	})

	t.Run("DELETE of every element removes the attribute", func(t *testing.T) {
		out := apply(t, "DELETE tags :all", nil, map[string]types.AttributeValue{
			":all": &types.AttributeValueMemberSS{Value: []string{"admin", "ops"}},
		}, sampleItem())
		assert.NotContains(t, out, "tags")
	})

	t.Run("REMOVE list indices", func(t *testing.T) {
		item := Item{"l": &types.AttributeValueMemberL{Value: []types.AttributeValue{s("a"), s("b"), s("c")}}}
		out := apply(t, "REMOVE l[0], l[2]", nil, nil, item)
		assert.Equal(t, []types.AttributeValue{s("b")}, out["l"].(*types.AttributeValueMemberL).Value)
	})

	t.Run("builder output", func(t *testing.T) {
		upd := expression.Set(expression.Name("info.city"), expression.Value("Bergen")).
			Remove(expression.Name("flag"))
		expr, err := expression.NewBuilder().WithUpdate(upd).Build()
		require.NoError(t, err)

		out := apply(t, *expr.Update(), expr.Names(), expr.Values(), sampleItem())
		assert.NotContains(t, out, "flag")
	})
}

func TestUpdate_Errors(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{"repeated clause", "SET a = :v SET b = :v"},
		{"overlapping paths", "SET a = :v REMOVE a"},
		{"empty", ""},
		{"unknown function", "SET a = nope(:v)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseUpdate(tt.expr, NewEnv(nil, map[string]types.AttributeValue{":v": n("1")}))
			require.Error(t, err)
		})
	}

	t.Run("nested SET requires the parent", func(t *testing.T) {
		u, err := ParseUpdate("SET nope.x = :v", NewEnv(nil, map[string]types.AttributeValue{":v": n("1")}))
		require.NoError(t, err)
		_, err = u.Apply(sampleItem())
		require.Error(t, err)
	})

	t.Run("arithmetic on a missing attribute", func(t *testing.T) {
		u, err := ParseUpdate("SET c = c + :v", NewEnv(nil, map[string]types.AttributeValue{":v": n("1")}))
		require.NoError(t, err)
		_, err = u.Apply(Item{})
		require.Error(t, err)
	})
}

func TestProjection(t *testing.T) {
	env := NewEnv(map[string]string{"#n": "name"}, nil)
	p, err := ParseProjection("#n, info.city, info.pets[1]", env)
	require.NoError(t, err)
	require.NoError(t, env.Unused())

	out := p.Apply(sampleItem())
	assert.Equal(t, Item{
		"name": s("Alice Smith"),
		"info": &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{
			"city": s("Oslo"),
			"pets": &types.AttributeValueMemberL{Value: []types.AttributeValue{s("dog")}},
		}},
	}, out)

	t.Run("empty projects everything", func(t *testing.T) {
		p, err := ParseProjection("", NewEnv(nil, nil))
		require.NoError(t, err)
		assert.Equal(t, sampleItem(), p.Apply(sampleItem()))
	})
}

func TestFormatNumber(t *testing.T) {
	for in, want := range map[string]string{"3": "3", "0.30": "0.3", "-1.5": "-1.5", "10.000": "10"} {
		r, err := ParseNumber(in)
		require.NoError(t, err)
		assert.Equal(t, want, FormatNumber(r))
	}
}
