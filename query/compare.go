package query

import (
	"bytes"
	"fmt"
	"math"
	"reflect"
	"strings"
)

// Equal reports whether two stored values are equal. Numbers compare by
// value regardless of their Go type; two integers compare exactly.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if ia, ok := toInt(a); ok {
		if ib, ok := toInt(b); ok {
			return ia == ib
		}
	}
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
	}
	if ba, ok := a.([]byte); ok {
		if bb, ok := b.([]byte); ok {
			return bytes.Equal(ba, bb)
		}
	}
	if sa, ok := a.(string); ok {
		if sb, ok := b.(string); ok {
			return sa == sb
		}
	}
	return reflect.DeepEqual(a, b)
}

// CompareValues returns -1 if a < b, 0 if a == b, 1 if a > b.
// nil sorts before everything; numbers compare numerically (integers
// exactly, mixed with floats as float64), strings
// lexically, false before true; anything else by its printed form.
func CompareValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}

	if i1, ok := toInt(a); ok {
		if i2, ok := toInt(b); ok {
			switch {
			case i1 > i2:
				return 1
			case i1 < i2:
				return -1
			}
			return 0
		}
	}
	if f1, ok := toFloat(a); ok {
		if f2, ok := toFloat(b); ok {
			switch {
			case f1 > f2:
				return 1
			case f1 < f2:
				return -1
			}
			return 0
		}
	}
	if b1, ok := a.(bool); ok {
		if b2, ok := b.(bool); ok {
			switch {
			case b1 == b2:
				return 0
			case b2:
				return -1
			}
			return 1
		}
	}
	if s1, ok := a.(string); ok {
		if s2, ok := b.(string); ok {
			return strings.Compare(s1, s2)
		}
	}
	return strings.Compare(fmt.Sprintf("%v", a), fmt.Sprintf("%v", b))
}

// toInt reports signed integer values, and unsigned ones that fit int64.
func toInt(v any) (int64, bool) {
	switch i := v.(type) {
	case int:
		return int64(i), true
	case int8:
		return int64(i), true
	case int16:
		return int64(i), true
	case int32:
		return int64(i), true
	case int64:
		return i, true
	case uint:
		if uint64(i) <= math.MaxInt64 {
			return int64(i), true
		}
	case uint8:
		return int64(i), true
	case uint16:
		return int64(i), true
	case uint32:
		return int64(i), true
	case uint64:
		if i <= math.MaxInt64 {
			return int64(i), true
		}
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch i := v.(type) {
	case float64:
		return i, true
	case float32:
		return float64(i), true
	case int:
		return float64(i), true
	case int8:
		return float64(i), true
	case int16:
		return float64(i), true
	case int32:
		return float64(i), true
	case int64:
		return float64(i), true
	case uint:
		return float64(i), true
	case uint8:
		return float64(i), true
	case uint16:
		return float64(i), true
	case uint32:
		return float64(i), true
	case uint64:
		return float64(i), true
	}
	return 0, false
}
