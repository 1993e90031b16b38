package table

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var numericTable = PrimaryKeyDefinition{
	PartitionKey: KeyDef{Name: "id", Kind: KeyKindN},
}

func TestPrimaryKeyDDB(t *testing.T) {
	t.Run("renders partition and sort keys", func(t *testing.T) {
		pk := PrimaryKey{Definition: pkAndSKTable.KeyDefinitions, Values: PrimaryKeyValues{PartitionKey: "a", SortKey: "b"}}
		got, err := pk.DDB()
		require.NoError(t, err)
		assert.Equal(t, map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: "a"},
			"sk": &types.AttributeValueMemberS{Value: "b"},
		}, got)
	})
	t.Run("numbers accept ints and strings", func(t *testing.T) {
		for _, v := range []any{42, "42", int64(42)} {
			got, err := PrimaryKey{Definition: numericTable, Values: PrimaryKeyValues{PartitionKey: v}}.DDB()
			require.NoError(t, err)
			assert.Equal(t, &types.AttributeValueMemberN{Value: "42"}, got["id"])
		}
	})
	t.Run("missing sort key is an error", func(t *testing.T) {
		_, err := PrimaryKey{Definition: pkAndSKTable.KeyDefinitions, Values: PrimaryKeyValues{PartitionKey: "a"}}.DDB()
		require.ErrorContains(t, err, "sort key")
	})
	t.Run("wrong value type is an error", func(t *testing.T) {
		_, err := PrimaryKey{Definition: pkOnlyTable.KeyDefinitions, Values: PrimaryKeyValues{PartitionKey: 1}}.DDB()
		require.Error(t, err)
	})
}

func TestExtractPrimaryKey(t *testing.T) {
	doc := map[string]types.AttributeValue{
		"pk":    &types.AttributeValueMemberS{Value: "a"},
		"sk":    &types.AttributeValueMemberS{Value: "b"},
		"other": &types.AttributeValueMemberBOOL{Value: true},
	}
	t.Run("round trips through DDB", func(t *testing.T) {
		pk, err := pkAndSKTable.ExtractPrimaryKey(doc)
		require.NoError(t, err)
		key, err := pk.DDB()
		require.NoError(t, err)
		assert.Len(t, key, 2)
		assert.Equal(t, doc["sk"], key["sk"])
	})
	t.Run("kind mismatch is an error", func(t *testing.T) {
		_, err := numericTable.ExtractPrimaryKey(map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: "x"}})
		require.Error(t, err)
	})
	t.Run("missing sort key is an error", func(t *testing.T) {
		_, err := pkAndSKTable.ExtractPrimaryKey(map[string]types.AttributeValue{"pk": doc["pk"]})
		require.ErrorContains(t, err, "not found")
	})
	t.Run("key names list partition first", func(t *testing.T) {
		assert.Equal(t, []string{"pk", "sk"}, pkAndSKTable.KeyDefinitions.KeyNames())
		assert.Equal(t, []string{"id"}, numericTable.KeyNames())
	})
}

func TestFmtKeyer(t *testing.T) {
	t.Run("missing keys render empty", func(t *testing.T) {
		v, err := FmtKeyer("A#%s#%s", "x", "y").Key(map[string]types.AttributeValue{"x": &types.AttributeValueMemberN{Value: "1"}})
		require.NoError(t, err)
		assert.Equal(t, &types.AttributeValueMemberS{Value: "A#1#"}, v)
	})
	t.Run("non scalar values are rejected", func(t *testing.T) {
		_, err := FmtKeyer("%s", "x").Key(map[string]types.AttributeValue{"x": &types.AttributeValueMemberBOOL{Value: true}})
		require.Error(t, err)
	})
	t.Run("const keyer ignores the document", func(t *testing.T) {
		c := &types.AttributeValueMemberS{Value: "CONST"}
		v, err := ConstKeyer(c).Key(nil)
		require.NoError(t, err)
		assert.Same(t, c, v)
	})
}
