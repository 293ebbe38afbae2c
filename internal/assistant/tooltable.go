package assistant

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/radutopala/cosmoshop/internal/llm"
	"github.com/radutopala/cosmoshop/internal/mcpclient"
	"github.com/radutopala/cosmoshop/internal/tools"
)

// ToolConfig adjusts how one server tool is offered to the model.
type ToolConfig struct {
	// Description replaces the server description when set.
	Description string
	// Defaults are argument values advertised in the schema and filled in
	// when the model leaves them out. Defaulted arguments are not required.
	Defaults map[string]any
}

// ToolTable holds the per-tool configuration, keyed by tool name. Tools
// without an entry are offered as the server describes them.
type ToolTable map[string]ToolConfig

// DefaultToolTable returns the configuration used by the storefront: orders
// are looked up for the signed-in shopper unless the user names an address.
func DefaultToolTable(shopperEmail string) ToolTable {
	return ToolTable{
		tools.GetOrdersTool: {
			Defaults: map[string]any{"email": shopperEmail},
		},
	}
}

// Definitions converts server descriptors into function tools for the chat
// model, applying each tool's configuration.
func (t ToolTable) Definitions(descriptors []mcpclient.Tool) []llm.Tool {
	defs := make([]llm.Tool, 0, len(descriptors))
	for _, d := range descriptors {
		cfg := t[d.Name]

		description := d.Description
		if cfg.Description != "" {
			description = cfg.Description
		}

		defs = append(defs, llm.Tool{
			Type: "function",
			Function: llm.FunctionDef{
				Name:        d.Name,
				Description: description,
				Parameters:  applyDefaults(d.InputSchema, cfg.Defaults),
				Strict:      false,
			},
		})
	}
	return defs
}

// applyDefaults returns a copy of schema with a default on every configured
// property. schema itself is never modified.
func applyDefaults(schema map[string]any, defaults map[string]any) map[string]any {
	out := maps.Clone(schema)
	if out == nil {
		out = map[string]any{}
	}
	if len(defaults) == 0 {
		return out
	}
	if _, ok := out["type"]; !ok {
		out["type"] = "object"
	}

	props := map[string]any{}
	if existing, ok := out["properties"].(map[string]any); ok {
		props = maps.Clone(existing)
	}
	for name, value := range defaults {
		prop := map[string]any{}
		if existing, ok := props[name].(map[string]any); ok {
			prop = maps.Clone(existing)
		}
		if _, ok := prop["type"]; !ok {
			prop["type"] = jsonType(value)
		}
		prop["default"] = value
		props[name] = prop
	}
	out["properties"] = props

	if required, ok := out["required"].([]any); ok {
		kept := make([]any, 0, len(required))
		for _, r := range required {
			if name, ok := r.(string); ok {
				if _, defaulted := defaults[name]; defaulted {
					continue
				}
			}
			kept = append(kept, r)
		}
		out["required"] = kept
	}
	return out
}

func jsonType(v any) string {
	switch v.(type) {
	case bool:
		return "boolean"
	case int, int32, int64, float32, float64:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return "string"
	}
}

// Arguments decodes the model's JSON argument text for tool name and fills in
// configured defaults for anything missing or empty.
func (t ToolTable) Arguments(name, raw string) (map[string]any, error) {
	args := map[string]any{}
	if strings.TrimSpace(raw) != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return nil, fmt.Errorf("decode arguments for %s: %w", name, err)
		}
		if args == nil {
			args = map[string]any{}
		}
	}

	defaults := t[name].Defaults
	for _, key := range slices.Sorted(maps.Keys(defaults)) {
		if v, ok := args[key]; !ok || v == nil || v == "" {
			args[key] = defaults[key]
		}
	}
	return args, nil
}
