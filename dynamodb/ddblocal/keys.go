package ddblocal

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"

	"github.com/acksell/dynamodb-toolkit/dynamodb/table"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Badger keys preserve DynamoDB ordering when compared as bytes:
//
//	table item:  [table] 0x00 [pk] 0x00 [sk]
//	index entry: [table] $gsi: [index] 0x00 [gsi pk] 0x00 [gsi sk] 0x00 [pk] 0x00 [sk]
//
// Components are escaped so 0x00 only ever appears as a separator.

const (
	keySeparator byte = 0x00
	gsiMarker         = "$gsi:"
)

func keyPrefix(tableName, index string) []byte {
	var buf bytes.Buffer
	buf.WriteString(tableName)
	if index != "" {
		buf.WriteString(gsiMarker)
		buf.WriteString(index)
	}
	buf.WriteByte(keySeparator)
	return buf.Bytes()
}

// appendKey appends the encoded key attributes of item described by def.
func appendKey(buf []byte, def table.PrimaryKeyDefinition, item map[string]types.AttributeValue) ([]byte, error) {
	pk, ok := item[def.PartitionKey.Name]
	if !ok {
		return nil, fmt.Errorf("missing key attribute %q", def.PartitionKey.Name)
	}
	enc, err := encodeKeyValue(pk, def.PartitionKey.Kind)
	if err != nil {
		return nil, fmt.Errorf("key attribute %q: %w", def.PartitionKey.Name, err)
	}
	buf = append(buf, enc...)
	buf = append(buf, keySeparator)
	if def.SortKey.Name == "" {
		return buf, nil
	}
	sk, ok := item[def.SortKey.Name]
	if !ok {
		return nil, fmt.Errorf("missing key attribute %q", def.SortKey.Name)
	}
	enc, err = encodeKeyValue(sk, def.SortKey.Kind)
	if err != nil {
		return nil, fmt.Errorf("key attribute %q: %w", def.SortKey.Name, err)
	}
	return append(buf, enc...), nil
}

func encodeKeyValue(v types.AttributeValue, kind table.KeyKind) ([]byte, error) {
	switch kind {
	case table.KeyKindS:
		s, ok := v.(*types.AttributeValueMemberS)
		if !ok {
			return nil, fmt.Errorf("expected type S, got %T", v)
		}
		if s.Value == "" {
			return nil, fmt.Errorf("key attribute values cannot be empty strings")
		}
		return append([]byte{'S'}, escapeBytes([]byte(s.Value))...), nil
	case table.KeyKindN:
		n, ok := v.(*types.AttributeValueMemberN)
		if !ok {
			return nil, fmt.Errorf("expected type N, got %T", v)
		}
		enc, err := encodeNumber(n.Value)
		if err != nil {
			return nil, err
		}
		return append([]byte{'N'}, enc...), nil
	case table.KeyKindB:
		b, ok := v.(*types.AttributeValueMemberB)
		if !ok {
			return nil, fmt.Errorf("expected type B, got %T", v)
		}
		return append([]byte{'B'}, escapeBytes(b.Value)...), nil
	}
	return nil, fmt.Errorf("unsupported key kind %q", kind)
}

// encodeNumber maps a decimal onto 8 bytes whose byte order matches numeric
// order. Precision is that of float64.
func encodeNumber(s string) ([]byte, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("parse number %q: %w", s, err)
	}
	bits := math.Float64bits(f)
	if f >= 0 {
		bits ^= 1 << 63
	} else {
		bits = ^bits
	}
	return binary.BigEndian.AppendUint64(nil, bits), nil
}

// escapeBytes rewrites 0x00 as 0x01 0x01 and 0x01 as 0x01 0x02.
func escapeBytes(b []byte) []byte {
	out := make([]byte, 0, len(b))
	for _, c := range b {
		switch c {
		case 0x00:
			out = append(out, 0x01, 0x01)
		case 0x01:
			out = append(out, 0x01, 0x02)
		default:
			out = append(out, c)
		}
	}
	return out
}

// keyAttributes picks the attributes of item named by defs.
func keyAttributes(item map[string]types.AttributeValue, defs ...table.PrimaryKeyDefinition) map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue)
	for _, def := range defs {
		for _, name := range []string{def.PartitionKey.Name, def.SortKey.Name} {
			if v, ok := item[name]; ok && name != "" {
				out[name] = v
			}
		}
	}
	return out
}
