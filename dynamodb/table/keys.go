package table

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type PrimaryKeyDefinition struct {
	PartitionKey KeyDef `yaml:"partition"`
	// SortKey is optional; an empty Name means a partition-only table.
	SortKey KeyDef `yaml:"sort,omitempty" validate:"-"`
}

type KeyDef struct {
	Name string  `yaml:"name" validate:"required"`
	Kind KeyKind `yaml:"kind" validate:"required,oneof=S N B"`
}

type KeyKind string

const (
	KeyKindS KeyKind = "S"
	KeyKindN KeyKind = "N"
	KeyKindB KeyKind = "B"
)

// PrimaryKeyValues holds unwrapped key values: string for S and N, []byte
// for B.
type PrimaryKeyValues struct {
	PartitionKey any
	SortKey      any
}

type PrimaryKey struct {
	Definition PrimaryKeyDefinition
	Values     PrimaryKeyValues
}

// DDB renders the key as a wire key map.
func (k PrimaryKey) DDB() (map[string]types.AttributeValue, error) {
	pk, err := keyValueToAV(k.Definition.PartitionKey.Kind, k.Values.PartitionKey)
	if err != nil {
		return nil, fmt.Errorf("partition key %q: %w", k.Definition.PartitionKey.Name, err)
	}
	out := map[string]types.AttributeValue{k.Definition.PartitionKey.Name: pk}
	if k.Definition.SortKey.Name == "" {
		return out, nil
	}
	if k.Values.SortKey == nil {
		return nil, fmt.Errorf("sort key %q is required but got nil", k.Definition.SortKey.Name)
	}
	sk, err := keyValueToAV(k.Definition.SortKey.Kind, k.Values.SortKey)
	if err != nil {
		return nil, fmt.Errorf("sort key %q: %w", k.Definition.SortKey.Name, err)
	}
	out[k.Definition.SortKey.Name] = sk
	return out, nil
}

func keyValueToAV(kind KeyKind, v any) (types.AttributeValue, error) {
	switch kind {
	case KeyKindS:
		if s, ok := v.(string); ok {
			return &types.AttributeValueMemberS{Value: s}, nil
		}
	case KeyKindN:
		switch n := v.(type) {
		case string:
			return &types.AttributeValueMemberN{Value: n}, nil
		case int, int32, int64, uint, uint32, uint64, float64:
			return &types.AttributeValueMemberN{Value: fmt.Sprint(n)}, nil
		}
	case KeyKindB:
		if b, ok := v.([]byte); ok {
			return &types.AttributeValueMemberB{Value: b}, nil
		}
	default:
		return nil, fmt.Errorf("unknown key kind %q", kind)
	}
	return nil, fmt.Errorf("value of type %T does not fit key kind %q", v, kind)
}

func attributeMatchesDefinition(want KeyKind, v types.AttributeValue) error {
	var got KeyKind
	switch v.(type) {
	case *types.AttributeValueMemberS:
		got = KeyKindS
	case *types.AttributeValueMemberN:
		got = KeyKindN
	case *types.AttributeValueMemberB:
		got = KeyKindB
	default:
		return fmt.Errorf("unexpected key attribute type %T", v)
	}
	if got != want {
		return fmt.Errorf("got KeyKind %q want %q", got, want)
	}
	return nil
}
