package narrator

import (
	_ "embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed data/knowledge.yaml
var knowledgeYAML []byte

// Knowledge maps flag keys to human-readable facts used to enrich the
// prompt context. Read-only after load.
type Knowledge map[string]string

// LoadKnowledge parses the embedded knowledge base.
func LoadKnowledge() (Knowledge, error) {
	var k Knowledge
	if err := yaml.Unmarshal(knowledgeYAML, &k); err != nil {
		return nil, fmt.Errorf("decode knowledge base: %w", err)
	}
	return k, nil
}

// Facts returns the facts for every truthy flag, sorted by flag key so
// prompts are deterministic.
func (k Knowledge) Facts(flags map[string]any) []string {
	keys := make([]string, 0, len(flags))
	for key, val := range flags {
		if !truthy(val) {
			continue
		}
		if _, ok := k[key]; ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	facts := make([]string, 0, len(keys))
	for _, key := range keys {
		facts = append(facts, "- "+k[key])
	}
	return facts
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t != ""
	case nil:
		return false
	default:
		return true
	}
}
