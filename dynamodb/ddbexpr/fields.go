package ddbexpr

import (
	"slices"
	"strings"
)

// DefaultSeparator joins path segments in field names and patch keys.
const DefaultSeparator = "."

// SplitFields parses a comma-separated field list, dropping blanks.
func SplitFields(s string) []string {
	var out []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// NormalizeFields applies a rename table to a field list and removes
// duplicates, keeping first-seen order. A rename entry matching the whole
// field wins; otherwise the first path segment is looked up.
func NormalizeFields(fields []string, rename map[string]string, sep string) []string {
	if len(fields) == 0 {
		return nil
	}
	if sep == "" {
		sep = DefaultSeparator
	}
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if r, ok := rename[f]; ok {
			f = r
		} else if len(rename) > 0 {
			head, tail, found := strings.Cut(f, sep)
			if r, ok := rename[head]; ok {
				f = r
				if found {
					f += sep + tail
				}
			}
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

// FieldsToSet turns a field list into a lookup set after renaming.
func FieldsToSet(fields []string, rename map[string]string) map[string]bool {
	if len(fields) == 0 {
		return nil
	}
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		if r, ok := rename[f]; ok {
			f = r
		}
		set[f] = true
	}
	return set
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
