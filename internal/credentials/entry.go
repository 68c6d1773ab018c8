package credentials

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Entry is one requested credential within a seed call.
type Entry struct {
	Name       string            `json:"name,omitempty" yaml:"name,omitempty"`
	Data       map[string]string `json:"data,omitempty" yaml:"data,omitempty"`
	Visibility []string          `json:"visibility,omitempty" yaml:"visibility,omitempty"`
	Assigned   bool              `json:"assigned,omitempty" yaml:"assigned,omitempty"`
	Create     *bool             `json:"create,omitempty" yaml:"create,omitempty"`
}

// ShouldCreate reports whether a row is wanted; entries create by default.
func (e Entry) ShouldCreate() bool {
	return e.Create == nil || *e.Create
}

// DisplayName is the entry name or the definition default.
func (e Entry) DisplayName(def Definition) string {
	if e.Name != "" {
		return e.Name
	}
	return def.DefaultName
}

// EntryList decodes from either a single entry object or a list of entries.
type EntryList []Entry

func (l *EntryList) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var entries []Entry
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return fmt.Errorf("decode credential entries: %w", err)
		}
		*l = entries
		return nil
	}
	var entry Entry
	if err := json.Unmarshal(trimmed, &entry); err != nil {
		return fmt.Errorf("decode credential entry: %w", err)
	}
	*l = EntryList{entry}
	return nil
}

func (l *EntryList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var entries []Entry
		if err := node.Decode(&entries); err != nil {
			return fmt.Errorf("decode credential entries: %w", err)
		}
		*l = entries
	case yaml.MappingNode:
		var entry Entry
		if err := node.Decode(&entry); err != nil {
			return fmt.Errorf("decode credential entry: %w", err)
		}
		*l = EntryList{entry}
	case yaml.ScalarNode:
		return fmt.Errorf("credential entry must be a mapping or a list, got %q", node.Value)
	default:
		return fmt.Errorf("credential entry must be a mapping or a list")
	}
	return nil
}

// NormalizeEntries always returns a non-empty list so callers handle one shape.
func NormalizeEntries(entries EntryList) []Entry {
	if len(entries) == 0 {
		return []Entry{{}}
	}
	return append([]Entry(nil), entries...)
}
