package mcp

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/invopop/jsonschema"
	"github.com/mark3labs/mcp-go/mcp"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

const maxSchemaDepth = 32

// ConvertToolSchema converts the input schema a provider reported for tool.
// The result is always an object schema.
func ConvertToolSchema(tool mcp.Tool) *jsonschema.Schema {
	var raw map[string]any
	if len(tool.RawInputSchema) > 0 {
		_ = json.Unmarshal(tool.RawInputSchema, &raw)
	} else if data, err := json.Marshal(tool.InputSchema); err == nil {
		_ = json.Unmarshal(data, &raw)
	}

	s := ConvertSchema(raw)
	if s.Type != "object" {
		s = &jsonschema.Schema{Type: "object", Description: s.Description}
	}
	if s.Properties == nil {
		s.Properties = orderedmap.New[string, *jsonschema.Schema]()
	}
	return s
}

// ConvertSchema maps a decoded JSON schema onto a fixed set of kinds: string,
// number, integer, boolean, array, object and any. Shapes it does not
// understand become an unconstrained schema.
func ConvertSchema(node any) *jsonschema.Schema {
	return convertNode(node, 0)
}

func convertNode(node any, depth int) *jsonschema.Schema {
	m, ok := node.(map[string]any)
	if !ok || depth > maxSchemaDepth {
		return &jsonschema.Schema{}
	}

	s := &jsonschema.Schema{}
	if d, ok := m["description"].(string); ok {
		s.Description = d
	}

	switch typ := schemaType(m); typ {
	case "string":
		s.Type = typ
		if enum, ok := m["enum"].([]any); ok {
			s.Enum = enum
		}
	case "number", "integer", "boolean":
		s.Type = typ
	case "array":
		s.Type = typ
		if items, ok := m["items"]; ok {
			s.Items = convertNode(items, depth+1)
		}
	case "object":
		s.Type = typ
		s.Properties = orderedmap.New[string, *jsonschema.Schema]()
		props, _ := m["properties"].(map[string]any)
		names := make([]string, 0, len(props))
		for name := range props {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			s.Properties.Set(name, convertNode(props[name], depth+1))
		}
		if required, ok := m["required"].([]any); ok {
			for _, r := range required {
				if name, ok := r.(string); ok {
					s.Required = append(s.Required, name)
				}
			}
		}
	}
	return s
}

// schemaType returns the single type a node declares. Nullable unions such
// as ["string","null"] resolve to their non-null member.
func schemaType(m map[string]any) string {
	switch t := m["type"].(type) {
	case string:
		return t
	case []any:
		var found string
		for _, v := range t {
			name, _ := v.(string)
			if name == "" || name == "null" {
				continue
			}
			if found != "" {
				return ""
			}
			found = name
		}
		return found
	}
	if _, ok := m["properties"]; ok {
		return "object"
	}
	return ""
}

// ValidateArgs checks args against schema: required properties must be
// present and values must match their primitive kind. Unconstrained nodes,
// extra properties and null values are accepted.
func ValidateArgs(schema *jsonschema.Schema, args map[string]any) error {
	if schema == nil {
		return nil
	}
	return validateValue("arguments", schema, args)
}

func validateValue(path string, s *jsonschema.Schema, v any) error {
	if s == nil || s.Type == "" || v == nil {
		return nil
	}
	switch s.Type {
	case "object":
		obj, ok := v.(map[string]any)
		if !ok {
			return typeError(path, s.Type, v)
		}
		var missing []string
		for _, name := range s.Required {
			if _, ok := obj[name]; !ok {
				missing = append(missing, name)
			}
		}
		if len(missing) > 0 {
			return errors.Newf("%s: missing required %s", path, strings.Join(missing, ", "))
		}
		if s.Properties == nil {
			return nil
		}
		for pair := s.Properties.Oldest(); pair != nil; pair = pair.Next() {
			val, ok := obj[pair.Key]
			if !ok {
				continue
			}
			if err := validateValue(path+"."+pair.Key, pair.Value, val); err != nil {
				return err
			}
		}
	case "array":
		arr, ok := v.([]any)
		if !ok {
			return typeError(path, s.Type, v)
		}
		for i, item := range arr {
			if err := validateValue(fmt.Sprintf("%s[%d]", path, i), s.Items, item); err != nil {
				return err
			}
		}
	case "string":
		str, ok := v.(string)
		if !ok {
			return typeError(path, s.Type, v)
		}
		if len(s.Enum) > 0 && !slices.Contains(s.Enum, any(str)) {
			return errors.Newf("%s: %q is not one of %v", path, str, s.Enum)
		}
	case "number":
		if _, ok := number(v); !ok {
			return typeError(path, s.Type, v)
		}
	case "integer":
		f, ok := number(v)
		if !ok || f != math.Trunc(f) {
			return typeError(path, s.Type, v)
		}
	case "boolean":
		if _, ok := v.(bool); !ok {
			return typeError(path, s.Type, v)
		}
	}
	return nil
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func typeError(path, want string, got any) error {
	return errors.Newf("%s: expected %s, got %T", path, want, got)
}
