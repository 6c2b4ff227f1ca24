package tools

import (
	"fmt"
	"strings"
)

// ParamType enumerates the argument types a text-based dispatcher can
// reconstruct from stringly-typed extractions.
type ParamType string

const (
	TypeString  ParamType = "String"
	TypeInteger ParamType = "Integer"
	TypeBoolean ParamType = "Boolean"
	TypeFloat   ParamType = "Float"
	TypeList    ParamType = "List"
	TypeObject  ParamType = "Object"
	TypeEnum    ParamType = "Enum"
)

// ParamSpec describes a single tool parameter.
type ParamSpec struct {
	Name        string    `json:"name"`
	Type        ParamType `json:"type"`
	ItemType    ParamType `json:"item_type,omitempty"` // element type for List
	Required    bool      `json:"required"`
	Description string    `json:"description"`
	EnumValues  []string  `json:"enum_values,omitempty"`
}

// Descriptor is the self-describing surface of a tool.
type Descriptor struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Params      []ParamSpec `json:"params"`
}

// Param returns the spec for a named parameter.
func (d Descriptor) Param(name string) (ParamSpec, bool) {
	for _, p := range d.Params {
		if p.Name == name {
			return p, true
		}
	}
	return ParamSpec{}, false
}

// Outcome is what every tool invocation returns.
type Outcome struct {
	Success bool
	Data    string
	Err     error
}

// Ok builds a successful outcome.
func Ok(format string, args ...any) Outcome {
	return Outcome{Success: true, Data: fmt.Sprintf(format, args...)}
}

// Fail builds a failed outcome from an error.
func Fail(err error) Outcome {
	return Outcome{Success: false, Err: err}
}

// Tool pairs a descriptor with its implementation. Arguments arrive as the
// typed JSON values the dispatcher reconstructed per the descriptor.
type Tool struct {
	Descriptor Descriptor
	Run        func(args map[string]any) Outcome
}

// helpers for pulling typed arguments out of the reconstructed map

func stringArg(args map[string]any, name string) string {
	if v, ok := args[name]; ok {
		switch t := v.(type) {
		case string:
			return t
		default:
			return fmt.Sprintf("%v", t)
		}
	}
	return ""
}

func requiredString(args map[string]any, name string) (string, error) {
	v := strings.TrimSpace(stringArg(args, name))
	if v == "" {
		return "", fmt.Errorf("missing required parameter: %s", name)
	}
	return v, nil
}

func intArg(args map[string]any, name string, fallback int) int {
	switch t := args[name].(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	}
	return fallback
}

func boolArg(args map[string]any, name string, fallback bool) bool {
	if v, ok := args[name].(bool); ok {
		return v
	}
	return fallback
}

func stringListArg(args map[string]any, name string) []string {
	switch t := args[name].(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			out = append(out, fmt.Sprintf("%v", item))
		}
		return out
	case string:
		if strings.TrimSpace(t) == "" {
			return nil
		}
		return []string{t}
	}
	return nil
}
