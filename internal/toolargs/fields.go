package toolargs

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// fields reads allow-listed keys out of a raw argument object. Keys are
// looked up by their camelCase name first and then by any aliases.
type fields struct {
	tool   string
	raw    map[string]any
	err    error
	parent *fields
}

func newFields(tool string, raw map[string]any) *fields {
	if raw == nil {
		raw = map[string]any{}
	}
	return &fields{tool: tool, raw: raw}
}

func (f *fields) lookup(names ...string) (any, bool) {
	for _, name := range names {
		if v, ok := f.raw[name]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func (f *fields) fail(err error) {
	if f.parent != nil {
		f.parent.fail(err)
		return
	}
	if f.err == nil {
		f.err = err
	}
}

// CleanString trims, NFC-normalizes, and caps s at max runes.
func CleanString(s string, max int) string {
	s = strings.TrimSpace(norm.NFC.String(s))
	if max > 0 && utf8.RuneCountInString(s) > max {
		runes := []rune(s)
		s = strings.TrimSpace(string(runes[:max]))
	}
	return s
}

func (f *fields) str(max int, names ...string) string {
	v, ok := f.lookup(names...)
	if !ok {
		return ""
	}
	switch typed := v.(type) {
	case string:
		return CleanString(typed, max)
	case float64, json.Number, int, int64, bool:
		return CleanString(stringify(typed), max)
	default:
		f.fail(malformed(f.tool, names[0], "must be a string"))
		return ""
	}
}

func (f *fields) requiredStr(max int, names ...string) string {
	s := f.str(max, names...)
	if s == "" {
		f.fail(missing(f.tool, names[0]))
	}
	return s
}

func stringify(v any) string {
	switch typed := v.(type) {
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case json.Number:
		return typed.String()
	case int:
		return strconv.Itoa(typed)
	case int64:
		return strconv.FormatInt(typed, 10)
	case bool:
		return strconv.FormatBool(typed)
	default:
		return ""
	}
}

// number returns the numeric value of a key and whether one was present.
func (f *fields) number(names ...string) (float64, bool) {
	v, ok := f.lookup(names...)
	if !ok {
		return 0, false
	}
	switch typed := v.(type) {
	case float64:
		return typed, true
	case int:
		return float64(typed), true
	case int64:
		return float64(typed), true
	case json.Number:
		n, err := parseFloat(string(typed))
		if err != nil {
			f.fail(malformed(f.tool, names[0], "must be a number"))
			return 0, false
		}
		return n, true
	case string:
		trimmed := strings.TrimSpace(typed)
		if trimmed == "" {
			return 0, false
		}
		n, err := parseFloat(trimmed)
		if err != nil {
			f.fail(malformed(f.tool, names[0], "must be a number"))
			return 0, false
		}
		return n, true
	default:
		f.fail(malformed(f.tool, names[0], "must be a number"))
		return 0, false
	}
}

// parseFloat accepts out-of-range literals as ±Inf so they clamp to a bound.
func parseFloat(s string) (float64, error) {
	n, err := strconv.ParseFloat(s, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, err
	}
	return n, nil
}

// clampedInt reads an integer, clamping it into [min, max] and using def when absent.
func (f *fields) clampedInt(min, max, def int, names ...string) int {
	n, ok := f.number(names...)
	if !ok || math.IsNaN(n) {
		return def
	}
	return clampFloat(n, min, max)
}

// optionalClampedInt is clampedInt for fields where absence must stay distinguishable.
func (f *fields) optionalClampedInt(min, max int, names ...string) *int {
	n, ok := f.number(names...)
	if !ok || math.IsNaN(n) {
		return nil
	}
	v := clampFloat(n, min, max)
	return &v
}

// clampFloat bounds n before converting, since int conversion of values
// beyond the int64 range is implementation-defined.
func clampFloat(n float64, min, max int) int {
	n = math.Max(float64(min), math.Min(float64(max), math.Round(n)))
	return int(n)
}

func (f *fields) boolean(names ...string) (bool, bool) {
	v, ok := f.lookup(names...)
	if !ok {
		return false, false
	}
	switch typed := v.(type) {
	case bool:
		return typed, true
	case string:
		switch strings.ToLower(strings.TrimSpace(typed)) {
		case "true", "yes", "1":
			return true, true
		case "false", "no", "0", "":
			return false, true
		}
	case float64:
		return typed != 0, true
	}
	f.fail(malformed(f.tool, names[0], "must be a boolean"))
	return false, false
}

func (f *fields) flag(names ...string) bool {
	v, _ := f.boolean(names...)
	return v
}

func (f *fields) optionalBool(names ...string) *bool {
	v, ok := f.boolean(names...)
	if !ok {
		return nil
	}
	return &v
}

// strList reads a list of strings, keeping at most maxItems entries capped at maxLen runes.
func (f *fields) strList(maxItems, maxLen int, names ...string) []string {
	v, ok := f.lookup(names...)
	if !ok {
		return nil
	}
	var items []any
	switch typed := v.(type) {
	case []any:
		items = typed
	case []string:
		for _, s := range typed {
			items = append(items, s)
		}
	case string:
		items = []any{typed}
	default:
		f.fail(malformed(f.tool, names[0], "must be a list of strings"))
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			f.fail(malformed(f.tool, names[0], "must be a list of strings"))
			return nil
		}
		s = CleanString(s, maxLen)
		if s == "" {
			continue
		}
		out = append(out, s)
		if len(out) == maxItems {
			break
		}
	}
	return out
}

// object reads a nested object. A present value that is not an object is malformed.
func (f *fields) object(names ...string) (map[string]any, bool) {
	v, ok := f.lookup(names...)
	if !ok {
		return nil, false
	}
	obj, isObj := v.(map[string]any)
	if !isObj {
		f.fail(malformed(f.tool, names[0], "must be an object"))
		return nil, false
	}
	return obj, true
}

// nested returns a reader for a sub-object that reports errors to f.
func (f *fields) nested(obj map[string]any) *fields {
	child := newFields(f.tool, obj)
	child.parent = f
	return child
}
