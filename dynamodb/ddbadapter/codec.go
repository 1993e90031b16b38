package ddbadapter

import (
	"fmt"
	"strings"

	"github.com/acksell/dynamodb-toolkit/dynamodb/ddbexpr"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// WireStyle selects how records cross the codec boundary.
type WireStyle int

const (
	// Auto picks Raw when the record type is already a wire map and
	// Marshalled otherwise.
	Auto WireStyle = iota
	// Raw passes map[string]types.AttributeValue records through unchanged.
	Raw
	// Marshalled converts native Go values with the attributevalue codec.
	Marshalled
)

func (s WireStyle) String() string {
	switch s {
	case Auto:
		return "auto"
	case Raw:
		return "raw"
	case Marshalled:
		return "marshalled"
	}
	return fmt.Sprintf("WireStyle(%d)", int(s))
}

// ParseWireStyle accepts the names printed by String.
func ParseWireStyle(s string) (WireStyle, error) {
	switch strings.ToLower(s) {
	case "", "auto":
		return Auto, nil
	case "raw":
		return Raw, nil
	case "marshalled", "marshaled":
		return Marshalled, nil
	}
	return Auto, fmt.Errorf("unknown wire style %q", s)
}

// resolveStyle settles Auto for T once, at construction.
func resolveStyle[T any](s WireStyle) (WireStyle, error) {
	var zero T
	_, isItem := any(zero).(Item)
	switch s {
	case Auto:
		if isItem {
			return Raw, nil
		}
		return Marshalled, nil
	case Raw:
		if !isItem {
			return s, fmt.Errorf("%w: raw wire style needs map[string]types.AttributeValue records, got %T", ErrInvalidConfig, zero)
		}
		return s, nil
	case Marshalled:
		return s, nil
	}
	return s, fmt.Errorf("%w: %v", ErrInvalidConfig, s)
}

func (a *Adapter[T]) encode(v T) (Item, error) {
	if a.style == Raw {
		item, _ := any(v).(Item)
		return cloneItem(item), nil
	}
	item, err := attributevalue.MarshalMap(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %T: %w", v, err)
	}
	return item, nil
}

func (a *Adapter[T]) decode(item Item) (T, error) {
	var out T
	if a.style == Raw {
		out, _ = any(item).(T)
		return out, nil
	}
	if err := attributevalue.UnmarshalMap(item, &out); err != nil {
		return out, fmt.Errorf("failed to unmarshal into %T: %w", out, err)
	}
	return out, nil
}

// addShadows writes a lower-cased copy of every searchable string field.
func (a *Adapter[T]) addShadows(item Item) {
	for name, on := range a.cfg.Search.Searchable {
		if !on {
			continue
		}
		if s, ok := item[name].(*types.AttributeValueMemberS); ok {
			item[a.shadowPrefix+name] = &types.AttributeValueMemberS{Value: strings.ToLower(s.Value)}
		}
	}
}

func (a *Adapter[T]) stripShadows(item Item) {
	if len(a.cfg.Search.Searchable) == 0 {
		return
	}
	for name := range item {
		if strings.HasPrefix(name, a.shadowPrefix) {
			delete(item, name)
		}
	}
}

// prepare turns a record into the item written to the table.
func (a *Adapter[T]) prepare(v T, isPatch bool) (Item, error) {
	item, err := a.encode(v)
	if err != nil {
		return nil, err
	}
	if a.cfg.Index != nil && !isPatch {
		if item, err = a.cfg.Index.Apply(item); err != nil {
			return nil, fmt.Errorf("failed to derive keys: %w", err)
		}
	}
	a.addShadows(item)
	if a.cfg.Prepare != nil {
		if item, err = a.cfg.Prepare(item, isPatch); err != nil {
			return nil, err
		}
	}
	return item, nil
}

// prepareKey prepares v and keeps only the key fields.
func (a *Adapter[T]) prepareKey(v T) (Item, error) {
	item, err := a.prepare(v, false)
	if err != nil {
		return nil, err
	}
	key := make(Item, len(a.keyFields))
	for _, name := range a.keyFields {
		kv, ok := item[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrMissingKey, name)
		}
		key[name] = kv
	}
	return key, nil
}

// revive turns a stored item back into a record. fields is the projected
// field set, nil when the whole item was read.
func (a *Adapter[T]) revive(item Item, fields map[string]bool) (T, error) {
	a.stripShadows(item)
	if a.cfg.Revive != nil {
		var err error
		if item, err = a.cfg.Revive(item, fields); err != nil {
			var zero T
			return zero, err
		}
	}
	return a.decode(item)
}

func (a *Adapter[T]) fieldSet(fields []string) map[string]bool {
	return ddbexpr.FieldsToSet(fields, a.cfg.ProjectionRename)
}

func cloneItem(item Item) Item {
	if item == nil {
		return nil
	}
	out := make(Item, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}
