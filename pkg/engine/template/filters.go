package template

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Filter transforms a piped value given its literal argument list.
type Filter func(value any, args []any) (any, error)

// filters is the fixed catalog named in the design: format_date,
// default_if_empty, to_upper, to_lower, int, float, b64encode, b64decode,
// urlencode, urldecode, plus the built-ins length and tojson.
var filters = map[string]Filter{
	"format_date":      formatDateFilter,
	"default_if_empty": defaultIfEmptyFilter,
	"to_upper":         toUpperFilter,
	"to_lower":         toLowerFilter,
	"int":              intFilter,
	"float":            floatFilter,
	"b64encode":        b64encodeFilter,
	"b64decode":        b64decodeFilter,
	"urlencode":        urlencodeFilter,
	"urldecode":        urldecodeFilter,
	"length":           lengthFilter,
	"tojson":           tojsonFilter,
}

func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case []any:
		return len(x) == 0
	case map[string]any:
		return len(x) == 0
	default:
		return false
	}
}

func formatDateFilter(value any, args []any) (any, error) {
	layout := "2006-01-02"
	if len(args) > 0 {
		if f, ok := args[0].(string); ok {
			layout = pyToGoLayout(f)
		}
	}
	s, ok := value.(string)
	if !ok {
		return value, nil
	}
	s = strings.Replace(s, "Z", "+00:00", 1)
	for _, candidate := range []string{time.RFC3339, "2006-01-02T15:04:05-07:00", "2006-01-02"} {
		if t, err := time.Parse(candidate, s); err == nil {
			return t.Format(layout), nil
		}
	}
	return value, nil
}

// pyToGoLayout maps the handful of strftime directives the filter catalog
// realistically needs onto Go's reference-time layout.
func pyToGoLayout(f string) string {
	replacer := strings.NewReplacer(
		"%Y", "2006", "%m", "01", "%d", "02",
		"%H", "15", "%M", "04", "%S", "05",
	)
	return replacer.Replace(f)
}

func defaultIfEmptyFilter(value any, args []any) (any, error) {
	if isEmpty(value) {
		if len(args) > 0 {
			return args[0], nil
		}
		return "", nil
	}
	return value, nil
}

func toUpperFilter(value any, _ []any) (any, error) {
	s, ok := value.(string)
	if !ok {
		return value, nil
	}
	return strings.ToUpper(s), nil
}

func toLowerFilter(value any, _ []any) (any, error) {
	s, ok := value.(string)
	if !ok {
		return value, nil
	}
	return strings.ToLower(s), nil
}

func intFilter(value any, args []any) (any, error) {
	def := 0
	if len(args) > 0 {
		if f, ok := toFloatLoose(args[0]); ok {
			def = int(f)
		}
	}
	if f, ok := toFloatLoose(value); ok {
		return int(f), nil
	}
	return def, nil
}

func floatFilter(value any, args []any) (any, error) {
	def := 0.0
	if len(args) > 0 {
		if f, ok := toFloatLoose(args[0]); ok {
			def = f
		}
	}
	if f, ok := toFloatLoose(value); ok {
		return f, nil
	}
	return def, nil
}

func toFloatLoose(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// b64encode/b64decode fall back to the original value on failure rather
// than raising, matching the source renderer's behavior.
func b64encodeFilter(value any, _ []any) (any, error) {
	s := fmt.Sprint(value)
	return base64.StdEncoding.EncodeToString([]byte(s)), nil
}

func b64decodeFilter(value any, _ []any) (any, error) {
	s, ok := value.(string)
	if !ok {
		return value, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return value, nil
	}
	return string(decoded), nil
}

func urlencodeFilter(value any, _ []any) (any, error) {
	s := fmt.Sprint(value)
	return url.QueryEscape(s), nil
}

func urldecodeFilter(value any, _ []any) (any, error) {
	s, ok := value.(string)
	if !ok {
		return value, nil
	}
	decoded, err := url.QueryUnescape(s)
	if err != nil {
		return value, nil
	}
	return decoded, nil
}

func lengthFilter(value any, _ []any) (any, error) {
	switch x := value.(type) {
	case string:
		return len([]rune(x)), nil
	case []any:
		return len(x), nil
	case map[string]any:
		return len(x), nil
	default:
		return 0, nil
	}
}

func tojsonFilter(value any, _ []any) (any, error) {
	b, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("tojson: %w", err)
	}
	return string(b), nil
}
