package core

// convert.go renders values read from any supported driver into nullable text.
//
// Source and reference relations come back from pgx, lib/pq, MySQL or DuckDB
// with driver-specific Go types. Every destination column is TEXT, so all of
// them are rendered here without losing information:
//   - NULL becomes invalid pgtype.Text; strings are kept byte for byte
//   - integers and floats use their shortest exact decimal form
//   - timestamps use RFC 3339 with nanoseconds and offset
//   - 16-byte arrays (pgx uuid) use canonical UUID text
//   - maps and slices (json, arrays, lists) are JSON encoded
//
// Whether a cell counts as missing is a separate question, answered by Blank.

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// Blank reports whether a cell counts as missing: NULL, empty or only
// whitespace. It drives routing and reference lookups; copied values are
// never rewritten by it.
func Blank(t pgtype.Text) bool {
	return !t.Valid || strings.TrimSpace(t.String) == ""
}

// TextFromAny converts a scanned driver value to pgtype.Text.
func TextFromAny(v any) pgtype.Text {
	switch x := v.(type) {
	case nil:
		return pgtype.Text{}
	case pgtype.Text:
		return x
	case string:
		return text(x)
	case []byte:
		return text(string(x))
	case bool:
		return text(strconv.FormatBool(x))
	case int:
		return text(strconv.Itoa(x))
	case int8:
		return text(strconv.FormatInt(int64(x), 10))
	case int16:
		return text(strconv.FormatInt(int64(x), 10))
	case int32:
		return text(strconv.FormatInt(int64(x), 10))
	case int64:
		return text(strconv.FormatInt(x, 10))
	case uint8:
		return text(strconv.FormatUint(uint64(x), 10))
	case uint16:
		return text(strconv.FormatUint(uint64(x), 10))
	case uint32:
		return text(strconv.FormatUint(uint64(x), 10))
	case uint64:
		return text(strconv.FormatUint(x, 10))
	case float32:
		return text(strconv.FormatFloat(float64(x), 'f', -1, 32))
	case float64:
		return text(strconv.FormatFloat(x, 'f', -1, 64))
	case time.Time:
		return text(x.Format(time.RFC3339Nano))
	case [16]byte:
		return text(uuid.UUID(x).String())
	case driver.Valuer:
		// pgtype.Numeric, pgtype.Date and friends
		dv, err := x.Value()
		if err != nil {
			return pgtype.Text{}
		}
		if _, again := dv.(driver.Valuer); again {
			return text(fmt.Sprint(dv))
		}
		return TextFromAny(dv)
	case fmt.Stringer:
		return text(x.String())
	default:
		return text(formatComposite(x))
	}
}

func text(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: true}
}

// formatComposite JSON encodes maps, slices and arrays. Values JSON cannot
// encode (DuckDB maps with non-string keys) fall back to fmt.
func formatComposite(v any) string {
	switch reflect.ValueOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		if b, err := json.Marshal(v); err == nil {
			return string(b)
		}
	}
	return fmt.Sprint(v)
}

// MakeHeaderIndex creates a HeaderIndex from a column list.
// Keys are lowercased for case-insensitive matching. When two columns differ
// only by case the first one wins.
func MakeHeaderIndex(header []string) HeaderIndex {
	idx := make(HeaderIndex, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		if _, dup := idx[key]; dup {
			continue
		}
		idx[key] = i
	}
	return idx
}

// textValue returns the string of a valid cell and "" for NULL.
func textValue(t pgtype.Text) string {
	if !t.Valid {
		return ""
	}
	return t.String
}
