package storage

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Row is one result row keyed by column name. Drivers differ in the Go
// types they return, so reads go through the typed accessors.
type Row map[string]any

// String returns the column as text, or "" when absent or NULL.
func (r Row) String(col string) string {
	switch v := r[col].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case time.Time:
		return v.Format(time.RFC3339)
	default:
		return fmt.Sprint(v)
	}
}

// Int64 returns the column as an integer, or 0 when it cannot be read as one.
func (r Row) Int64(col string) int64 {
	switch v := r[col].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case float64:
		return int64(v)
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	case []byte:
		n, _ := strconv.ParseInt(string(v), 10, 64)
		return n
	default:
		return 0
	}
}

// Float64 returns the column as a float, or 0 when it cannot be read as one.
func (r Row) Float64(col string) float64 {
	switch v := r[col].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int64:
		return float64(v)
	case int:
		return float64(v)
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	case []byte:
		f, _ := strconv.ParseFloat(string(v), 64)
		return f
	default:
		return 0
	}
}

// JSONMap decodes a json/jsonb column. Malformed or absent values yield an
// empty, non-nil map.
func (r Row) JSONMap(col string) map[string]any {
	out := map[string]any{}
	switch v := r[col].(type) {
	case map[string]any:
		for k, val := range v {
			out[k] = val
		}
	case string:
		_ = json.Unmarshal([]byte(v), &out)
	case []byte:
		_ = json.Unmarshal(v, &out)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out
}
