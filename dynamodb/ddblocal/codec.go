package ddblocal

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// storedValue is the gob form of an attribute value. N is kept in S.
type storedValue struct {
	T    string
	S    string
	B    []byte
	Bool bool
	SS   []string
	BS   [][]byte
	L    []storedValue
	M    map[string]storedValue
}

func encodeItem(item map[string]types.AttributeValue) ([]byte, error) {
	m := make(map[string]storedValue, len(item))
	for k, v := range item {
		sv, err := toStored(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", k, err)
		}
		m[k] = sv
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(m); err != nil {
		return nil, fmt.Errorf("encode item: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeItem(data []byte) (map[string]types.AttributeValue, error) {
	var m map[string]storedValue
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode item: %w", err)
	}
	item := make(map[string]types.AttributeValue, len(m))
	for k, v := range m {
		item[k] = fromStored(v)
	}
	return item, nil
}

func toStored(av types.AttributeValue) (storedValue, error) {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return storedValue{T: "S", S: v.Value}, nil
	case *types.AttributeValueMemberN:
		return storedValue{T: "N", S: v.Value}, nil
	case *types.AttributeValueMemberB:
		return storedValue{T: "B", B: v.Value}, nil
	case *types.AttributeValueMemberBOOL:
		return storedValue{T: "BOOL", Bool: v.Value}, nil
	case *types.AttributeValueMemberNULL:
		return storedValue{T: "NULL", Bool: v.Value}, nil
	case *types.AttributeValueMemberSS:
		return storedValue{T: "SS", SS: v.Value}, nil
	case *types.AttributeValueMemberNS:
		return storedValue{T: "NS", SS: v.Value}, nil
	case *types.AttributeValueMemberBS:
		return storedValue{T: "BS", BS: v.Value}, nil
	case *types.AttributeValueMemberL:
		l := make([]storedValue, len(v.Value))
		for i, e := range v.Value {
			sv, err := toStored(e)
			if err != nil {
				return storedValue{}, err
			}
			l[i] = sv
		}
		return storedValue{T: "L", L: l}, nil
	case *types.AttributeValueMemberM:
		m := make(map[string]storedValue, len(v.Value))
		for k, e := range v.Value {
			sv, err := toStored(e)
			if err != nil {
				return storedValue{}, err
			}
			m[k] = sv
		}
		return storedValue{T: "M", M: m}, nil
	}
	return storedValue{}, fmt.Errorf("unsupported attribute value %T", av)
}

func fromStored(v storedValue) types.AttributeValue {
	switch v.T {
	case "S":
		return &types.AttributeValueMemberS{Value: v.S}
	case "N":
		return &types.AttributeValueMemberN{Value: v.S}
	case "B":
		return &types.AttributeValueMemberB{Value: v.B}
	case "BOOL":
		return &types.AttributeValueMemberBOOL{Value: v.Bool}
	case "NULL":
		return &types.AttributeValueMemberNULL{Value: v.Bool}
	case "SS":
		return &types.AttributeValueMemberSS{Value: v.SS}
	case "NS":
		return &types.AttributeValueMemberNS{Value: v.SS}
	case "BS":
		return &types.AttributeValueMemberBS{Value: v.BS}
	case "L":
		l := make([]types.AttributeValue, len(v.L))
		for i, e := range v.L {
			l[i] = fromStored(e)
		}
		return &types.AttributeValueMemberL{Value: l}
	case "M":
		m := make(map[string]types.AttributeValue, len(v.M))
		for k, e := range v.M {
			m[k] = fromStored(e)
		}
		return &types.AttributeValueMemberM{Value: m}
	}
	return &types.AttributeValueMemberNULL{Value: true}
}
