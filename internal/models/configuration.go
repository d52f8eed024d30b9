package models

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Reserved configuration keys filled in after training.
const (
	// ConfigWeightKey stores the reputation score of the trained configuration.
	ConfigWeightKey = "weight"
	// ConfigScoreKey stores the metric score of the trained configuration.
	ConfigScoreKey = "score"
)

// ConfigDetectorWeightKey holds the optional static confidence of a detector.
// It is kept apart from ConfigWeightKey so training never rewrites it.
const ConfigDetectorWeightKey = "detector_weight"

// Configuration is a named-parameter set instantiating one detector variant.
// Values are string encoded. Trainers only mutate their own Clone.
type Configuration struct {
	items map[string]string
}

// NewConfiguration builds a configuration from a parameter map.
func NewConfiguration(items map[string]string) Configuration {
	c := Configuration{items: make(map[string]string, len(items))}
	for k, v := range items {
		c.items[k] = v
	}
	return c
}

// Clone returns an independent copy.
func (c Configuration) Clone() Configuration {
	return NewConfiguration(c.items)
}

// Set stores a parameter value.
func (c *Configuration) Set(key, value string) {
	if c.items == nil {
		c.items = make(map[string]string)
	}
	c.items[key] = value
}

// Get returns a raw parameter value.
func (c Configuration) Get(key string) (string, bool) {
	v, ok := c.items[key]
	return v, ok
}

// Has reports whether key is set.
func (c Configuration) Has(key string) bool {
	_, ok := c.items[key]
	return ok
}

// Len returns the number of parameters.
func (c Configuration) Len() int {
	return len(c.items)
}

// String returns a required string parameter.
func (c Configuration) String(key string) (string, error) {
	v, ok := c.items[key]
	if !ok || strings.TrimSpace(v) == "" {
		return "", &ConfigurationError{Key: key, Reason: "missing parameter"}
	}
	return v, nil
}

// Float returns a required numeric parameter.
func (c Configuration) Float(key string) (float64, error) {
	raw, err := c.String(key)
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, &ConfigurationError{Key: key, Value: raw, Reason: "not a number"}
	}
	return f, nil
}

// FloatOr returns a numeric parameter, or def when it is absent.
// A present but malformed value is still an error.
func (c Configuration) FloatOr(key string, def float64) (float64, error) {
	if !c.Has(key) {
		return def, nil
	}
	return c.Float(key)
}

// Keys returns the parameter names in lexical order.
func (c Configuration) Keys() []string {
	keys := make([]string, 0, len(c.items))
	for k := range c.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Map returns a copy of the parameters.
func (c Configuration) Map() map[string]string {
	out := make(map[string]string, len(c.items))
	for k, v := range c.items {
		out[k] = v
	}
	return out
}

// Describe renders the parameters deterministically, e.g. "sigma=2, weight=0.8".
func (c Configuration) Describe() string {
	parts := make([]string, 0, len(c.items))
	for _, k := range c.Keys() {
		parts = append(parts, fmt.Sprintf("%s=%s", k, c.items[k]))
	}
	return strings.Join(parts, ", ")
}

// CloneConfigurations deep-copies a candidate list preserving order.
func CloneConfigurations(in []Configuration) []Configuration {
	out := make([]Configuration, 0, len(in))
	for _, c := range in {
		out = append(out, c.Clone())
	}
	return out
}
