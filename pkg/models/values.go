package models

import (
	"cmp"
	"math"
	"reflect"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// Referencer is implemented by values that point at another document,
// such as bound reference accessors.
type Referencer interface {
	Reference() DocumentReference
}

// Normalize rewrites numeric values to int64 or float64 and nested
// containers to map[string]any / []any, so values that went through a
// codec compare equal to the values they were encoded from.
func Normalize(v any) any {
	switch t := v.(type) {
	case nil, string, bool, int64, float64, TimeStub, DateStub, Module, DocumentReference:
		return v
	case int:
		return int64(t)
	case int8:
		return int64(t)
	case int16:
		return int64(t)
	case int32:
		return int64(t)
	case uint:
		return uintToNumber(uint64(t))
	case uint8:
		return int64(t)
	case uint16:
		return int64(t)
	case uint32:
		return int64(t)
	case uint64:
		return uintToNumber(t)
	case float32:
		return float64(t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case time.Time:
		return NewTimeStub(t)
	case *TimeStub:
		if t == nil {
			return nil
		}
		return *t
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = Normalize(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Normalize(e)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = e
		}
		return out
	}
	return v
}

func uintToNumber(u uint64) any {
	if u > math.MaxInt64 {
		return float64(u)
	}
	return int64(u)
}

// CloneValue deep-copies maps and slices; other values are returned as is.
func CloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = CloneValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = CloneValue(e)
		}
		return out
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice && !rv.IsNil() {
		out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		reflect.Copy(out, rv)
		return out.Interface()
	}
	return v
}

func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case TimeStub:
		return t.Time, true
	case *TimeStub:
		if t != nil {
			return t.Time, true
		}
	case DateStub:
		return t.Time, true
	}
	return time.Time{}, false
}

func asFloat(v any) (float64, bool) {
	switch t := Normalize(v).(type) {
	case int64:
		return float64(t), true
	case float64:
		return t, true
	}
	return 0, false
}

// typeRank orders values of different kinds: null < bool < number <
// string < time < reference < everything else.
func typeRank(v any) int {
	if v == nil {
		return 0
	}
	if _, ok := v.(bool); ok {
		return 1
	}
	if _, ok := asFloat(v); ok {
		return 2
	}
	if _, ok := v.(string); ok {
		return 3
	}
	if _, ok := asTime(v); ok {
		return 4
	}
	if _, ok := asReference(v); ok {
		return 5
	}
	return 6
}

func asReference(v any) (DocumentReference, bool) {
	switch t := v.(type) {
	case DocumentReference:
		return t, true
	case Referencer:
		return t.Reference(), true
	}
	return DocumentReference{}, false
}

// CompareValues imposes a total order over field values, used by page
// ordering and range predicates.
func CompareValues(a, b any) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}
	switch ra {
	case 0:
		return 0
	case 1:
		ab, bb := a.(bool), b.(bool)
		switch {
		case ab == bb:
			return 0
		case !ab:
			return -1
		default:
			return 1
		}
	case 2:
		fa, _ := asFloat(a)
		fb, _ := asFloat(b)
		return cmp.Compare(fa, fb)
	case 3:
		return strings.Compare(a.(string), b.(string))
	case 4:
		ta, _ := asTime(a)
		tb, _ := asTime(b)
		return ta.Compare(tb)
	case 5:
		ra, _ := asReference(a)
		rb, _ := asReference(b)
		if c := strings.Compare(ra.Coll.Name, rb.Coll.Name); c != 0 {
			return c
		}
		return strings.Compare(ra.ID, rb.ID)
	}
	return 0
}

// EqualValues reports whether two field values are equal under
// CompareValues, treating references by identity.
func EqualValues(a, b any) bool {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		return false
	}
	if ra == 6 {
		return reflect.DeepEqual(a, b)
	}
	return CompareValues(a, b) == 0
}
