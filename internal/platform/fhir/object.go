package fhir

import (
	"encoding/json"
	"fmt"
)

// Object is a decoded JSON resource: nested maps, []interface{} for arrays,
// and JSON scalars at the leaves.
type Object = map[string]interface{}

// DecodeObject decodes a JSON object.
func DecodeObject(data []byte) (Object, error) {
	var obj Object
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, fmt.Errorf("expected a JSON object")
	}
	return obj, nil
}

// Normalize converts any JSON-serialisable value (typically a mapper result
// holding typed datatypes) into a generic Object tree.
func Normalize(v interface{}) (Object, error) {
	if obj, ok := v.(Object); ok && isGeneric(obj) {
		return obj, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("normalize resource: %w", err)
	}
	obj, err := DecodeObject(data)
	if err != nil {
		return nil, fmt.Errorf("normalize resource: %w", err)
	}
	return obj, nil
}

// isGeneric reports whether every nested value is already a plain JSON shape.
func isGeneric(v interface{}) bool {
	switch t := v.(type) {
	case nil, string, bool, float64:
		return true
	case map[string]interface{}:
		for _, e := range t {
			if !isGeneric(e) {
				return false
			}
		}
		return true
	case []interface{}:
		for _, e := range t {
			if !isGeneric(e) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Resolve walks path through obj. It fails closed: a missing key, a null, a
// non-object intermediate or an empty string leaf all count as absent.
func Resolve(obj Object, path Path) (interface{}, bool) {
	if len(path) == 0 {
		return nil, false
	}
	var cur interface{} = obj
	for _, seg := range path {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		v, ok := m[seg]
		if !ok || v == nil {
			return nil, false
		}
		cur = v
	}
	if s, ok := cur.(string); ok && s == "" {
		return nil, false
	}
	return cur, true
}

// Has reports whether path resolves to a present value.
func Has(obj Object, path Path) bool {
	_, ok := Resolve(obj, path)
	return ok
}

// KindOf returns the resourceType of obj, or "" if absent or not a string.
func KindOf(obj Object) string {
	s, _ := obj["resourceType"].(string)
	return s
}

// IDOf returns the id of obj, or "" if absent or not a string.
func IDOf(obj Object) string {
	s, _ := obj["id"].(string)
	return s
}
