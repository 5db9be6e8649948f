package host

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
)

// ErrInvalidPayload is wrapped by every schema failure.
var ErrInvalidPayload = errors.New("invalid service payload")

// AttrEntityID is the payload key holding target entity ids.
const AttrEntityID = "entity_id"

// EntityMatchAll targets every entity of an integration.
const EntityMatchAll = "all"

// Validator normalises one payload value.
type Validator func(v any) (any, error)

// Field describes one payload key.
type Field struct {
	Key      string
	Required bool
	Default  any
	Validate Validator
}

// Schema validates and normalises a service payload. Keys not listed are
// rejected.
type Schema struct {
	Fields []Field
}

// Normalize returns a new payload with defaults applied and values converted.
func (s Schema) Normalize(data map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(s.Fields))
	known := make(map[string]bool, len(s.Fields))

	for _, f := range s.Fields {
		known[f.Key] = true
		v, ok := data[f.Key]
		if !ok || v == nil {
			if f.Required {
				return nil, fmt.Errorf("%w: required key not provided @ data[%q]", ErrInvalidPayload, f.Key)
			}
			if f.Default != nil {
				out[f.Key] = f.Default
			}
			continue
		}
		if f.Validate != nil {
			nv, err := f.Validate(v)
			if err != nil {
				return nil, fmt.Errorf("%w: %v for dictionary value @ data[%q]", ErrInvalidPayload, err, f.Key)
			}
			v = nv
		}
		out[f.Key] = v
	}

	var extra []string
	for k := range data {
		if !known[k] {
			extra = append(extra, k)
		}
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		return nil, fmt.Errorf("%w: extra keys not allowed %v", ErrInvalidPayload, extra)
	}
	return out, nil
}

// EntityIDs accepts a single id, a comma separated string or a list and
// returns a lowercased []string. "all" passes through as-is.
func EntityIDs() Validator {
	return func(v any) (any, error) {
		var raw []string
		switch t := v.(type) {
		case string:
			raw = strings.Split(t, ",")
		case []string:
			raw = t
		case []any:
			for _, item := range t {
				s, ok := item.(string)
				if !ok {
					return nil, fmt.Errorf("entity id must be a string, got %T", item)
				}
				raw = append(raw, s)
			}
		default:
			return nil, fmt.Errorf("expected entity ids, got %T", v)
		}

		ids := make([]string, 0, len(raw))
		for _, id := range raw {
			id = strings.ToLower(strings.TrimSpace(id))
			if id == "" {
				continue
			}
			if id != EntityMatchAll && !validEntityID(id) {
				return nil, fmt.Errorf("invalid entity id %q", id)
			}
			ids = append(ids, id)
		}
		return ids, nil
	}
}

func validEntityID(id string) bool {
	domain, object, ok := strings.Cut(id, ".")
	return ok && domain != "" && object != "" && !strings.Contains(object, ".")
}

// OneOf accepts a string from the allowed set.
func OneOf(allowed ...string) Validator {
	return func(v any) (any, error) {
		s, ok := v.(string)
		if !ok || !slices.Contains(allowed, s) {
			return nil, fmt.Errorf("value must be one of %v", allowed)
		}
		return s, nil
	}
}

// PositiveInt accepts ints, whole floats (JSON numbers) and numeric strings
// greater than zero.
func PositiveInt() Validator {
	return func(v any) (any, error) {
		var n int
		switch t := v.(type) {
		case int:
			n = t
		case int64:
			n = int(t)
		case float64:
			if t != float64(int(t)) {
				return nil, fmt.Errorf("expected integer, got %v", t)
			}
			n = int(t)
		case string:
			parsed, err := strconv.Atoi(t)
			if err != nil {
				return nil, fmt.Errorf("expected integer, got %q", t)
			}
			n = parsed
		default:
			return nil, fmt.Errorf("expected integer, got %T", v)
		}
		if n <= 0 {
			return nil, fmt.Errorf("value must be at least 1")
		}
		return n, nil
	}
}

// IDs reads a normalised entity id list from a payload.
func IDs(data map[string]any) []string {
	ids, _ := data[AttrEntityID].([]string)
	return ids
}
