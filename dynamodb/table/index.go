package table

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// PrimaryIndexDefinition derives the table's keys from a document with
// Keyers, for tables whose key attributes are computed rather than stored
// as plain fields.
type PrimaryIndexDefinition struct {
	Table          TableDefinition
	PartitionKeyer Keyer
	SortKeyer      Keyer
}

func (i *PrimaryIndexDefinition) PrimaryKey(doc map[string]types.AttributeValue) (PrimaryKey, error) {
	defs := i.Table.KeyDefinitions
	part, err := i.PartitionKeyer.Key(doc)
	if err != nil {
		return PrimaryKey{}, fmt.Errorf("failed to get partition key: %w", err)
	}
	if err := attributeMatchesDefinition(defs.PartitionKey.Kind, part); err != nil {
		return PrimaryKey{}, fmt.Errorf("partition key kind does not match table definition: %w", err)
	}
	pk := PrimaryKey{Definition: defs}
	pk.Values.PartitionKey, _ = keyValueFromAV(part)
	if defs.SortKey.Name == "" {
		return pk, nil
	}
	if i.SortKeyer == nil {
		return PrimaryKey{}, fmt.Errorf("table %s has sort key %q but the index has no sort keyer", i.Table.Name, defs.SortKey.Name)
	}
	sort, err := i.SortKeyer.Key(doc)
	if err != nil {
		return PrimaryKey{}, fmt.Errorf("failed to get sort key: %w", err)
	}
	if err := attributeMatchesDefinition(defs.SortKey.Kind, sort); err != nil {
		return PrimaryKey{}, fmt.Errorf("sort key kind does not match table definition: %w", err)
	}
	pk.Values.SortKey, _ = keyValueFromAV(sort)
	return pk, nil
}

// Apply writes the derived key attributes onto a copy of doc.
func (i *PrimaryIndexDefinition) Apply(doc map[string]types.AttributeValue) (map[string]types.AttributeValue, error) {
	pk, err := i.PrimaryKey(doc)
	if err != nil {
		return nil, err
	}
	key, err := pk.DDB()
	if err != nil {
		return nil, err
	}
	out := make(map[string]types.AttributeValue, len(doc)+len(key))
	for k, v := range doc {
		out[k] = v
	}
	for k, v := range key {
		out[k] = v
	}
	return out, nil
}
