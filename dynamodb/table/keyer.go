package table

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type Keyer interface {
	Key(doc map[string]types.AttributeValue) (types.AttributeValue, error)
}

// FmtKeyer looks up `keys` in the document and passes them to the format
// string. Keys must hold strings, numbers or bytes and may be nested with
// dot notation, e.g. "meta.version".
//
// Use %s only: numbers are rendered from their wire strings. A key missing
// from the document is passed as an empty string.
func FmtKeyer(format string, keys ...string) Keyer {
	return keyFormat{format, keys}
}

type keyFormat struct {
	format string
	keys   []string
}

func (k keyFormat) Key(doc map[string]types.AttributeValue) (types.AttributeValue, error) {
	vals := make([]any, len(k.keys))
	for i, key := range k.keys {
		vals[i] = ""
		v, found := lookup(doc, key)
		if !found {
			continue
		}
		switch attr := v.(type) {
		case *types.AttributeValueMemberS:
			vals[i] = attr.Value
		case *types.AttributeValueMemberN:
			vals[i] = attr.Value
		case *types.AttributeValueMemberB:
			vals[i] = string(attr.Value)
		default:
			return nil, fmt.Errorf("type for key %q is not string, number, or bytes, got %T", key, v)
		}
	}
	return &types.AttributeValueMemberS{Value: fmt.Sprintf(k.format, vals...)}, nil
}

func lookup(doc map[string]types.AttributeValue, path string) (types.AttributeValue, bool) {
	head, rest, nested := strings.Cut(path, ".")
	v, ok := doc[head]
	if !ok || !nested {
		return v, ok
	}
	m, ok := v.(*types.AttributeValueMemberM)
	if !ok {
		return nil, false
	}
	return lookup(m.Value, rest)
}

// CopyKeyer uses the attribute at key unchanged.
func CopyKeyer(key string) Keyer {
	return copyKey{key}
}

type copyKey struct {
	key string
}

func (k copyKey) Key(doc map[string]types.AttributeValue) (types.AttributeValue, error) {
	v, found := lookup(doc, k.key)
	if !found {
		return nil, fmt.Errorf("key %q not found", k.key)
	}
	return v, nil
}

func ConstKeyer(val types.AttributeValue) Keyer {
	return constKey{val}
}

type constKey struct {
	val types.AttributeValue
}

func (k constKey) Key(map[string]types.AttributeValue) (types.AttributeValue, error) {
	return k.val, nil
}
