package wire

import "math"

// ObjectMarkerKey flags a map as an object reference.
const ObjectMarkerKey = "__isObjectMarker__"

// NewObjectRef builds an object reference. A nil data produces the short
// form used for already-described or explicitly registered objects.
func NewObjectRef(id string, data map[string]any) map[string]any {
	ref := map[string]any{
		ObjectMarkerKey: true,
		KeyID:           id,
	}
	if data != nil {
		ref[KeyData] = data
	}
	return ref
}

// IsObjectRef returns true if v is a map carrying the object marker.
func IsObjectRef(v any) bool {
	m, ok := v.(map[string]any)
	if !ok {
		return false
	}
	marker, _ := m[ObjectMarkerKey].(bool)
	return marker
}

// ObjectRefID returns the "id" of a map value. Peers may pass objects back
// either as full references or as plain {id: ...} maps; both are accepted.
func ObjectRefID(v any) (string, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return "", false
	}
	id, ok := m[KeyID].(string)
	return id, ok
}

// IsNumber returns true for any numeric wire value.
func IsNumber(v any) bool {
	_, ok := Float(v)
	return ok
}

// Float converts a numeric wire value to float64.
func Float(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// Int converts an integral numeric wire value to int64. Floats with a
// fractional part or outside the int64 range are rejected.
func Int(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		if uint64(n) > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	}
	f, ok := Float(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}
