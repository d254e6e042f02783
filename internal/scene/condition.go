package scene

import (
	"fmt"

	"github.com/solhart/nightloop/internal/state"
	"gopkg.in/yaml.v3"
)

// NumericCond is a requirement on one stat: either an exact value or a set
// of bounds. All supplied bounds must hold together.
//
// In YAML a bare scalar means exact match:
//
//	stats:
//	  trust: 25
//	  awareness: {gte: 40}
//	  noise: {min: 10, max: 60}
type NumericCond struct {
	Exact *int
	Min   *int
	Max   *int
	Gt    *int
	Lt    *int
	Gte   *int
	Lte   *int
}

type numericBounds struct {
	Min *int `yaml:"min"`
	Max *int `yaml:"max"`
	Gt  *int `yaml:"gt"`
	Lt  *int `yaml:"lt"`
	Gte *int `yaml:"gte"`
	Lte *int `yaml:"lte"`
}

// UnmarshalYAML accepts either a scalar (exact match) or a bounds mapping.
func (n *NumericCond) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var v int
		if err := node.Decode(&v); err != nil {
			return fmt.Errorf("numeric condition: %w", err)
		}
		n.Exact = &v
		return nil
	case yaml.MappingNode:
		var b numericBounds
		if err := node.Decode(&b); err != nil {
			return fmt.Errorf("numeric condition: %w", err)
		}
		n.Min, n.Max, n.Gt, n.Lt, n.Gte, n.Lte = b.Min, b.Max, b.Gt, b.Lt, b.Gte, b.Lte
		return nil
	default:
		return fmt.Errorf("numeric condition: unsupported node kind %d", node.Kind)
	}
}

// Holds evaluates the requirement against a value.
func (n *NumericCond) Holds(v int) bool {
	if n.Exact != nil && v != *n.Exact {
		return false
	}
	if n.Min != nil && v < *n.Min {
		return false
	}
	if n.Max != nil && v > *n.Max {
		return false
	}
	if n.Gt != nil && v <= *n.Gt {
		return false
	}
	if n.Lt != nil && v >= *n.Lt {
		return false
	}
	if n.Gte != nil && v < *n.Gte {
		return false
	}
	if n.Lte != nil && v > *n.Lte {
		return false
	}
	return true
}

// ConditionSpec is a predicate over the world: flag equality plus numeric
// stat requirements, all ANDed. A condition referencing a state key the
// world does not carry is skipped, never treated as failure.
type ConditionSpec struct {
	Flags map[string]any         `yaml:"flags,omitempty"`
	Stats map[string]NumericCond `yaml:"stats,omitempty"`
}

// Holds evaluates the spec. A nil spec always holds.
func (c *ConditionSpec) Holds(w *state.World) bool {
	if c == nil {
		return true
	}
	for key, want := range c.Flags {
		got, ok := w.Flags[key]
		if !ok {
			continue // unknown key: silently skipped
		}
		if !flagEqual(got, want) {
			return false
		}
	}
	for key, cond := range c.Stats {
		v, ok := w.Stat(key)
		if !ok {
			continue // unknown key: silently skipped
		}
		if !cond.Holds(v) {
			return false
		}
	}
	return true
}

// flagEqual compares flag values by exact value. Flags are booleans or
// strings, but YAML decoding may hand back ints for either side of an
// authored condition, so numbers are compared as strings of themselves.
func flagEqual(got, want any) bool {
	if got == want {
		return true
	}
	return fmt.Sprintf("%v", got) == fmt.Sprintf("%v", want)
}
