package algorithms

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/miradorstack/mirador-trainer/internal/models"
)

// Candidates maps each algorithm family to its ordered candidate configurations.
type Candidates map[Type][]models.Configuration

const candidatesSchemaURL = "https://schemas.mirador.dev/trainer/candidates.json"

const candidatesSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["algorithms"],
  "properties": {
    "algorithms": {
      "type": "object",
      "minProperties": 1,
      "additionalProperties": {
        "type": "array",
        "items": {
          "type": "object",
          "additionalProperties": {"type": ["string", "number", "boolean"]}
        }
      }
    }
  }
}`

var candidateSchema = jsonschema.MustCompileString(candidatesSchemaURL, candidatesSchema)

// candidateFile is the YAML root structure.
type candidateFile struct {
	Algorithms map[string][]map[string]any `yaml:"algorithms"`
}

// LoadCandidates reads a candidate configuration file.
func LoadCandidates(path string) (Candidates, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read candidates: %w", err)
	}
	return ParseCandidates(data)
}

// ParseCandidates validates and decodes candidate configurations. List order
// is preserved since it decides ties during training.
func ParseCandidates(data []byte) (Candidates, error) {
	if err := validateCandidates(data); err != nil {
		return nil, err
	}

	var file candidateFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse candidates: %w", err)
	}

	out := make(Candidates, len(file.Algorithms))
	for name, entries := range file.Algorithms {
		t, err := ParseType(name)
		if err != nil {
			return nil, err
		}
		confs := make([]models.Configuration, 0, len(entries))
		for i, entry := range entries {
			items := make(map[string]string, len(entry))
			for key, raw := range entry {
				value, err := scalarString(raw)
				if err != nil {
					return nil, fmt.Errorf("%s candidate %d: %s: %w", t, i, key, err)
				}
				items[key] = value
			}
			confs = append(confs, models.NewConfiguration(items))
		}
		out[t] = append(out[t], confs...)
	}
	return out, nil
}

func validateCandidates(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse candidates: %w", err)
	}
	// Round-trip through JSON so the validator sees JSON-native types.
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("normalise candidates: %w", err)
	}
	var normalised any
	if err := json.Unmarshal(raw, &normalised); err != nil {
		return fmt.Errorf("normalise candidates: %w", err)
	}
	if err := candidateSchema.Validate(normalised); err != nil {
		return fmt.Errorf("invalid candidates: %w", err)
	}
	return nil
}

func scalarString(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case int:
		return strconv.Itoa(val), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case uint64:
		return strconv.FormatUint(val, 10), nil
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64), nil
	case bool:
		return strconv.FormatBool(val), nil
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}
