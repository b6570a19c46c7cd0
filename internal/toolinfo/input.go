package toolinfo

import (
	"encoding/json"
	"strconv"
)

// Input is a decoded tool input object.
type Input map[string]any

// DecodeInput decodes raw JSON tool input. Invalid or non-object input yields
// an empty Input.
func DecodeInput(raw json.RawMessage) Input {
	if len(raw) == 0 {
		return Input{}
	}
	var in Input
	if err := json.Unmarshal(raw, &in); err != nil || in == nil {
		return Input{}
	}
	return in
}

// AsInput converts a decoded JSON value to an Input.
func AsInput(v any) Input {
	switch t := v.(type) {
	case Input:
		return t
	case map[string]any:
		return Input(t)
	case json.RawMessage:
		return DecodeInput(t)
	case nil:
		return Input{}
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return Input{}
		}
		return DecodeInput(raw)
	}
}

// String returns a string field or "".
func (in Input) String(key string) string {
	v, _ := in[key].(string)
	return v
}

// Bool returns a bool field or false.
func (in Input) Bool(key string) bool {
	v, _ := in[key].(bool)
	return v
}

// Int returns a numeric field as an int.
func (in Input) Int(key string) (int, bool) {
	switch v := in[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case int64:
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	case string:
		n, err := strconv.Atoi(v)
		return n, err == nil
	}
	return 0, false
}

// Strings returns a string-list field, skipping non-string entries.
func (in Input) Strings(key string) []string {
	items, _ := in[key].([]any)
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Objects returns an object-list field, skipping non-object entries.
func (in Input) Objects(key string) []Input {
	items, _ := in[key].([]any)
	out := make([]Input, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, Input(m))
		}
	}
	return out
}

// Clone returns a shallow copy of in.
func (in Input) Clone() Input {
	out := make(Input, len(in)+1)
	for k, v := range in {
		out[k] = v
	}
	return out
}
