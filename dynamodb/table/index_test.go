package table

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"
)

var IndexByID = PrimaryIndexDefinition{
	Table:          pkOnlyTable,
	PartitionKeyer: FmtKeyer("ID#%s", "id"),
}

var IndexByIDAndVersion = PrimaryIndexDefinition{
	Table:          pkAndSKTable,
	PartitionKeyer: FmtKeyer("ID#%s", "id"),
	SortKeyer:      FmtKeyer("VERSION#%s", "meta.version"),
}

var pkOnlyTable = TableDefinition{
	KeyDefinitions: PrimaryKeyDefinition{
		PartitionKey: KeyDef{
			Name: "pk",
			Kind: KeyKindS,
		},
	},
}

var pkAndSKTable = TableDefinition{
	KeyDefinitions: PrimaryKeyDefinition{
		PartitionKey: KeyDef{
			Name: "pk",
			Kind: KeyKindS,
		},
		SortKey: KeyDef{
			Name: "sk",
			Kind: KeyKindS,
		},
	},
}

func TestIndexPrimaryKey(t *testing.T) {
	t.Run("fmt keyer resolves value", func(t *testing.T) {
		doc := map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: "123"},
		}
		pk, err := IndexByID.PrimaryKey(doc)
		require.NoError(t, err, "unexpected error")
		require.Equal(t, "pk", pk.Definition.PartitionKey.Name, "unexpected partition key name")
		require.Equal(t, "ID#123", pk.Values.PartitionKey, "unexpected partition key")
		require.Nil(t, pk.Values.SortKey, "unexpected sort key")
	})
	t.Run("fmt keyer ignores other values", func(t *testing.T) {
		doc := map[string]types.AttributeValue{
			"id":         &types.AttributeValueMemberS{Value: "123"},
			"anotherone": &types.AttributeValueMemberS{Value: "foo"},
			"anothertwo": &types.AttributeValueMemberS{Value: "bar"},
		}
		pk, err := IndexByID.PrimaryKey(doc)
		require.NoError(t, err, "unexpected error")
		require.Equal(t, "ID#123", pk.Values.PartitionKey, "unexpected partition key")
		require.Nil(t, pk.Values.SortKey, "unexpected sort key")
	})
	t.Run("fmt keyer nested values", func(t *testing.T) {
		doc := map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: "123"},
			"meta": &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{
				"version": &types.AttributeValueMemberS{Value: "456"},
			}},
			"foo": &types.AttributeValueMemberS{Value: "bar"},
		}
		pk, err := IndexByIDAndVersion.PrimaryKey(doc)
		require.NoError(t, err, "unexpected error")
		require.Equal(t, "ID#123", pk.Values.PartitionKey, "unexpected partition key")
		require.Equal(t, "VERSION#456", pk.Values.SortKey, "unexpected sort key")
	})
}

func TestIndexPrimaryKeyErrors(t *testing.T) {
	t.Run("partition kind must match the table", func(t *testing.T) {
		idx := PrimaryIndexDefinition{Table: pkOnlyTable, PartitionKeyer: CopyKeyer("n")}
		_, err := idx.PrimaryKey(map[string]types.AttributeValue{
			"n": &types.AttributeValueMemberN{Value: "1"},
		})
		require.Error(t, err)
	})
	t.Run("missing sort keyer is an error", func(t *testing.T) {
		idx := PrimaryIndexDefinition{Table: pkAndSKTable, PartitionKeyer: FmtKeyer("ID#%s", "id")}
		_, err := idx.PrimaryKey(map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: "1"},
		})
		require.ErrorContains(t, err, "no sort keyer")
	})
	t.Run("copy keyer requires the attribute", func(t *testing.T) {
		idx := PrimaryIndexDefinition{Table: pkOnlyTable, PartitionKeyer: CopyKeyer("id")}
		_, err := idx.PrimaryKey(map[string]types.AttributeValue{})
		require.ErrorContains(t, err, `"id" not found`)
	})
}

func TestIndexApply(t *testing.T) {
	doc := map[string]types.AttributeValue{
		"id":   &types.AttributeValueMemberS{Value: "123"},
		"meta": &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{"version": &types.AttributeValueMemberN{Value: "7"}}},
	}
	out, err := IndexByIDAndVersion.Apply(doc)
	require.NoError(t, err)
	require.Equal(t, &types.AttributeValueMemberS{Value: "ID#123"}, out["pk"])
	require.Equal(t, &types.AttributeValueMemberS{Value: "VERSION#7"}, out["sk"])
	require.NotContains(t, doc, "pk", "input must not be modified")
}
