package normalizer

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// entry is one element of a collection that may arrive as a mapping
// (key = identifier) or as a list.
type entry struct {
	key   string
	index int
	value map[string]any
}

// entries flattens a mapping or list into ordered entries. Scalars in a list
// become {"name": scalar}. Mapping entries are ordered by their sequence
// hint and then by key.
func entries(raw any) []entry {
	switch v := raw.(type) {
	case []any:
		out := make([]entry, 0, len(v))
		for i, item := range v {
			out = append(out, entry{index: i, value: asObject(item)})
		}
		return out
	case []map[string]any:
		out := make([]entry, 0, len(v))
		for i, item := range v {
			out = append(out, entry{index: i, value: item})
		}
		return out
	case map[string]any:
		out := make([]entry, 0, len(v))
		for k, item := range v {
			out = append(out, entry{key: k, value: asObject(item)})
		}
		sort.SliceStable(out, func(i, j int) bool {
			si, oki := sequenceHint(out[i].value)
			sj, okj := sequenceHint(out[j].value)
			if oki && okj && si != sj {
				return si < sj
			}
			if oki != okj {
				return oki
			}
			return out[i].key < out[j].key
		})
		for i := range out {
			out[i].index = i
		}
		return out
	}
	return nil
}

func asObject(v any) map[string]any {
	switch o := v.(type) {
	case map[string]any:
		return o
	case map[any]any:
		out := make(map[string]any, len(o))
		for k, val := range o {
			out[fmt.Sprint(k)] = val
		}
		return out
	case string:
		return map[string]any{"name": o}
	case nil:
		return map[string]any{}
	}
	return map[string]any{"name": fmt.Sprint(v)}
}

func sequenceHint(obj map[string]any) (float64, bool) {
	for k, v := range obj {
		switch normKey(k) {
		case "sequence", "order", "step", "position":
			switch n := v.(type) {
			case int:
				return float64(n), true
			case int64:
				return float64(n), true
			case float64:
				return n, true
			case string:
				if f, err := strconv.ParseFloat(n, 64); err == nil {
					return f, true
				}
			}
		}
	}
	return 0, false
}

// normKey folds snake_case, kebab-case and camelCase spellings together.
func normKey(k string) string {
	return strings.ToLower(strings.NewReplacer("_", "", "-", "", " ", "").Replace(k))
}

// decode maps obj onto out leniently: numbers may be strings, single values
// may stand for lists, and key spelling is case and separator insensitive.
// Fields that cannot be converted are left at their zero value and reported.
func decode(obj map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
		MatchName: func(mapKey, fieldName string) bool {
			return normKey(mapKey) == normKey(fieldName)
		},
	})
	if err != nil {
		return err
	}
	return dec.Decode(obj)
}

// stringList coerces a list, a comma separated string or a scalar into strings.
func stringList(raw any) []string {
	switch v := raw.(type) {
	case nil:
		return nil
	case string:
		var out []string
		for _, part := range strings.Split(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
		return out
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if item == nil {
				continue
			}
			if obj, ok := item.(map[string]any); ok {
				if name, ok := obj["name"]; ok {
					out = append(out, fmt.Sprint(name))
				}
				continue
			}
			out = append(out, fmt.Sprint(item))
		}
		return out
	}
	return []string{fmt.Sprint(raw)}
}

// positiveInt coerces numbers and numeric strings; anything else reports false.
func positiveInt(raw any) (int, bool) {
	switch v := raw.(type) {
	case int:
		return v, v > 0
	case int64:
		return int(v), v > 0
	case float64:
		return int(v), v >= 1
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		return n, err == nil && n > 0
	}
	return 0, false
}
