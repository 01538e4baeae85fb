package blueprint

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strings"
)

// Schema is either a simple type literal ("str", "int", "float", "bool",
// "dict", "list[str]", ...) or a JSON-Schema object restricted to the
// subset {type, properties, required, items, enum}. Union types and
// function schemas are rejected.
type Schema struct {
	Simple string
	Object map[string]interface{}
}

var validScalars = map[string]bool{
	"str": true, "int": true, "float": true, "bool": true, "dict": true,
}

// UnmarshalJSON accepts a type-literal string or a JSON-Schema object.
func (s *Schema) UnmarshalJSON(data []byte) error {
	var simple string
	if err := json.Unmarshal(data, &simple); err == nil {
		if err := validateSimpleLiteral(simple); err != nil {
			return err
		}
		s.Simple = simple
		return nil
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("schema must be a type literal or a JSON-Schema object")
	}
	if err := validateSchemaObject(obj); err != nil {
		return err
	}
	s.Object = obj
	return nil
}

// MarshalJSON emits the original form.
func (s Schema) MarshalJSON() ([]byte, error) {
	if s.Simple != "" {
		return json.Marshal(s.Simple)
	}
	return json.Marshal(s.Object)
}

// validateSimpleLiteral checks the scalar | list[scalar] | dict grammar.
func validateSimpleLiteral(lit string) error {
	if validScalars[lit] {
		return nil
	}
	if strings.HasPrefix(lit, "list[") && strings.HasSuffix(lit, "]") {
		inner := lit[len("list[") : len(lit)-1]
		if validScalars[inner] && inner != "dict" {
			return nil
		}
	}
	return fmt.Errorf("invalid type literal %q", lit)
}

// allowedSchemaKeys is the JSON-Schema subset the in-tree validator
// understands. Anything outside it is rejected at parse time.
var allowedSchemaKeys = map[string]bool{
	"type": true, "properties": true, "required": true, "items": true,
	"enum": true, "description": true, "additionalProperties": true,
}

func validateSchemaObject(obj map[string]interface{}) error {
	for key := range obj {
		if !allowedSchemaKeys[key] {
			return fmt.Errorf("unsupported JSON-Schema keyword %q", key)
		}
	}
	if t, ok := obj["type"]; ok {
		switch tv := t.(type) {
		case string:
			switch tv {
			case "object", "array", "string", "number", "integer", "boolean", "null":
			default:
				return fmt.Errorf("unsupported schema type %q", tv)
			}
		default:
			// Union types (arrays of types) are rejected.
			return fmt.Errorf("union schema types are not supported")
		}
	}
	if props, ok := obj["properties"]; ok {
		pm, ok := props.(map[string]interface{})
		if !ok {
			return fmt.Errorf("properties must be an object")
		}
		for name, sub := range pm {
			sm, ok := sub.(map[string]interface{})
			if !ok {
				return fmt.Errorf("property %q schema must be an object", name)
			}
			if err := validateSchemaObject(sm); err != nil {
				return fmt.Errorf("property %q: %w", name, err)
			}
		}
	}
	if items, ok := obj["items"]; ok {
		im, ok := items.(map[string]interface{})
		if !ok {
			return fmt.Errorf("items must be an object")
		}
		if err := validateSchemaObject(im); err != nil {
			return fmt.Errorf("items: %w", err)
		}
	}
	return nil
}

// Validate checks a runtime value against the schema. A declared schema
// implies post-execution validation of node outputs.
func (s *Schema) Validate(value interface{}) error {
	if s == nil {
		return nil
	}
	if s.Simple != "" {
		return validateSimple(s.Simple, value)
	}
	return validateAgainstObject(s.Object, value, "$")
}

func validateSimple(lit string, value interface{}) error {
	if strings.HasPrefix(lit, "list[") {
		arr, ok := value.([]interface{})
		if !ok {
			return fmt.Errorf("expected list, got %T", value)
		}
		inner := lit[len("list[") : len(lit)-1]
		for i, item := range arr {
			if err := validateSimple(inner, item); err != nil {
				return fmt.Errorf("index %d: %w", i, err)
			}
		}
		return nil
	}
	switch lit {
	case "str":
		if _, ok := value.(string); !ok {
			return fmt.Errorf("expected str, got %T", value)
		}
	case "bool":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("expected bool, got %T", value)
		}
	case "int":
		if !isIntegral(value) {
			return fmt.Errorf("expected int, got %T", value)
		}
	case "float":
		if !isNumeric(value) {
			return fmt.Errorf("expected float, got %T", value)
		}
	case "dict":
		if _, ok := value.(map[string]interface{}); !ok {
			return fmt.Errorf("expected dict, got %T", value)
		}
	default:
		return fmt.Errorf("invalid type literal %q", lit)
	}
	return nil
}

func validateAgainstObject(schema map[string]interface{}, value interface{}, path string) error {
	if t, ok := schema["type"].(string); ok {
		if err := checkJSONType(t, value, path); err != nil {
			return err
		}
	}
	if enum, ok := schema["enum"].([]interface{}); ok {
		matched := false
		for _, candidate := range enum {
			if reflect.DeepEqual(candidate, value) {
				matched = true
				break
			}
		}
		if !matched {
			return fmt.Errorf("%s: value not in enum", path)
		}
	}
	if obj, ok := value.(map[string]interface{}); ok {
		if req, ok := schema["required"].([]interface{}); ok {
			for _, r := range req {
				name, _ := r.(string)
				if _, present := obj[name]; !present {
					return fmt.Errorf("%s: missing required property %q", path, name)
				}
			}
		}
		if props, ok := schema["properties"].(map[string]interface{}); ok {
			for name, sub := range props {
				sm, _ := sub.(map[string]interface{})
				if v, present := obj[name]; present && sm != nil {
					if err := validateAgainstObject(sm, v, path+"."+name); err != nil {
						return err
					}
				}
			}
		}
	}
	if arr, ok := value.([]interface{}); ok {
		if items, ok := schema["items"].(map[string]interface{}); ok {
			for i, item := range arr {
				if err := validateAgainstObject(items, item, fmt.Sprintf("%s[%d]", path, i)); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func checkJSONType(t string, value interface{}, path string) error {
	ok := false
	switch t {
	case "object":
		_, ok = value.(map[string]interface{})
	case "array":
		_, ok = value.([]interface{})
	case "string":
		_, ok = value.(string)
	case "boolean":
		_, ok = value.(bool)
	case "number":
		ok = isNumeric(value)
	case "integer":
		ok = isIntegral(value)
	case "null":
		ok = value == nil
	}
	if !ok {
		return fmt.Errorf("%s: expected %s, got %T", path, t, value)
	}
	return nil
}

func isNumeric(v interface{}) bool {
	switch v.(type) {
	case float64, float32, int, int32, int64:
		return true
	}
	return false
}

func isIntegral(v interface{}) bool {
	switch n := v.(type) {
	case int, int32, int64:
		return true
	case float64:
		return n == math.Trunc(n)
	case float32:
		return float64(n) == math.Trunc(float64(n))
	}
	return false
}

// Property reports whether the schema structurally declares the given
// top-level key, when that can be determined. Used for structural mapping
// checks at validation time.
func (s *Schema) Property(key string) (known, present bool) {
	if s == nil {
		return false, false
	}
	if s.Simple != "" {
		// Type literals carry no key structure.
		return false, false
	}
	props, ok := s.Object["properties"].(map[string]interface{})
	if !ok {
		return false, false
	}
	_, present = props[key]
	return true, present
}
