package table

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// TableDefinition describes a table's key schema, its optional TTL
// attribute and its global secondary indexes.
type TableDefinition struct {
	Name           string               `yaml:"name" validate:"required"`
	KeyDefinitions PrimaryKeyDefinition `yaml:"keys"`
	TimeToLiveKey  string               `yaml:"ttl,omitempty"`
	GSIs           []GSIDefinition      `yaml:"gsis,omitempty" validate:"dive"`
}

// GSIDefinition represents a Global Secondary Index definition.
type GSIDefinition struct {
	Name           string               `yaml:"name" validate:"required"`
	KeyDefinitions PrimaryKeyDefinition `yaml:"keys"`
}

// ExtractPrimaryKey extracts the primary key values from a document.
func (g GSIDefinition) ExtractPrimaryKey(doc map[string]types.AttributeValue) (PrimaryKey, error) {
	return g.KeyDefinitions.ExtractPrimaryKey(doc)
}

func (t TableDefinition) ExtractPrimaryKey(doc map[string]types.AttributeValue) (PrimaryKey, error) {
	return t.KeyDefinitions.ExtractPrimaryKey(doc)
}

// KeyNames lists the key attributes, partition key first.
func (k PrimaryKeyDefinition) KeyNames() []string {
	if k.SortKey.Name == "" {
		return []string{k.PartitionKey.Name}
	}
	return []string{k.PartitionKey.Name, k.SortKey.Name}
}

func (k PrimaryKeyDefinition) ExtractPrimaryKey(doc map[string]types.AttributeValue) (PrimaryKey, error) {
	part, ok := doc[k.PartitionKey.Name]
	if !ok {
		return PrimaryKey{}, fmt.Errorf("partition key %q not found", k.PartitionKey.Name)
	}
	if err := attributeMatchesDefinition(k.PartitionKey.Kind, part); err != nil {
		return PrimaryKey{}, fmt.Errorf("document key %q kind does not match definition: %w", k.PartitionKey.Name, err)
	}
	pk := PrimaryKey{Definition: k}
	pk.Values.PartitionKey, _ = keyValueFromAV(part)
	if k.SortKey.Name == "" {
		return pk, nil
	}
	sort, ok := doc[k.SortKey.Name]
	if !ok {
		return PrimaryKey{}, fmt.Errorf("sort key %q not found on document", k.SortKey.Name)
	}
	if err := attributeMatchesDefinition(k.SortKey.Kind, sort); err != nil {
		return PrimaryKey{}, fmt.Errorf("sort key %q kind does not match definition: %w", k.SortKey.Name, err)
	}
	pk.Values.SortKey, _ = keyValueFromAV(sort)
	return pk, nil
}

// keyValueFromAV unwraps a scalar key attribute. Numbers stay strings.
func keyValueFromAV(av types.AttributeValue) (any, error) {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return v.Value, nil
	case *types.AttributeValueMemberN:
		return v.Value, nil
	case *types.AttributeValueMemberB:
		return v.Value, nil
	}
	return nil, fmt.Errorf("unsupported attribute value %T for dynamodb keys", av)
}
