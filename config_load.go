package relay

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// configSchema is the JSON Schema the loaded config must satisfy before the
// Go-side checks run. Keeping structural validation in a schema gives
// operators a precise path in the error ("/gateways/1/name") instead of a
// generic parse failure.
const configSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["gateways"],
  "properties": {
    "gateways": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["name"],
        "properties": {
          "name": {
            "enum": ["openrouter", "portkey", "featherless", "chutes", "groq", "openai", "vertex"]
          },
          "api_key": {"type": "string"},
          "base_url": {"type": "string"},
          "project": {"type": "string"},
          "region": {"type": "string"}
        }
      }
    },
    "retry": {
      "type": "object",
      "properties": {
        "base_delay_ms": {"type": "integer", "minimum": 0},
        "multiplier": {"type": "number", "minimum": 1},
        "max_delay_ms": {"type": "integer", "minimum": 0},
        "ceiling_ms": {"type": "integer", "minimum": 0, "maximum": 60000},
        "max_attempts": {"type": "integer", "minimum": 0, "maximum": 10}
      }
    },
    "aggregation": {
      "type": "object",
      "properties": {
        "per_gateway_budget_ms": {"type": "integer", "minimum": 0},
        "cache_ttl_seconds": {"type": "integer", "minimum": 0},
        "cache_capacity": {"type": "integer", "minimum": 0}
      }
    },
    "completion": {
      "type": "object",
      "properties": {
        "first_byte_timeout_ms": {"type": "integer", "minimum": 0},
        "default_gateway": {"type": "string"}
      }
    },
    "history": {
      "type": "object",
      "properties": {
        "driver": {"enum": ["", "sqlite", "postgres"]},
        "dsn": {"type": "string"}
      }
    }
  }
}`

// LoadConfig reads, env-expands, parses, and validates a config file.
// Supported formats: JSON (.json), YAML (.yaml, .yml). API keys written as
// ${VAR} are expanded from the environment.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file extension %q: use .json, .yaml, or .yml", ext)
	}

	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ValidateConfig validates a Config against the schema plus the constraints
// the schema cannot express.
func ValidateConfig(cfg Config) error {
	schema, err := jsonschema.CompileString("config.schema.json", configSchema)
	if err != nil {
		return fmt.Errorf("compiling config schema: %w", err)
	}

	// Round-trip through JSON so the schema sees the wire representation.
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	seen := make(map[string]bool, len(cfg.Gateways))
	for _, g := range cfg.Gateways {
		if seen[g.Name] {
			return fmt.Errorf("gateway %q configured twice", g.Name)
		}
		seen[g.Name] = true
		if g.Name == "vertex" && g.Project == "" {
			return fmt.Errorf("vertex gateway requires a project")
		}
	}

	if dg := cfg.Completion.DefaultGateway; dg != "" && !seen[dg] {
		return fmt.Errorf("default_gateway %q is not a configured gateway", dg)
	}
	if cfg.History.Driver == "postgres" && cfg.History.DSN == "" {
		return fmt.Errorf("postgres history driver requires a dsn")
	}
	return nil
}
