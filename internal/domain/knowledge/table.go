// Package knowledge holds the fixed topic lookup table and the keyword matcher
// used to annotate image prompts with context.
package knowledge

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed knowledge.yaml
var embeddedTable []byte

// Fallback is returned by Match when no topic occurs in the input.
const Fallback = "No relevant information found. this is only a hugging face text-to-image. not gemini pro"

var (
	ErrEmptyKey     = errors.New("knowledge entry has an empty key")
	ErrEmptyValue   = errors.New("knowledge entry has an empty value")
	ErrDuplicateKey = errors.New("knowledge entry key is duplicated")
)

// Entry is one topic and its descriptive sentence.
type Entry struct {
	Key   string `yaml:"key" json:"key"`
	Value string `yaml:"value" json:"value"`
}

// Table is an ordered, immutable lookup table. Iteration order is definition order.
type Table struct {
	entries []Entry
}

var defaultTable = MustLoad(embeddedTable)

// Default returns the table compiled into the binary.
func Default() *Table {
	return defaultTable
}

// Load decodes a YAML list of entries and validates it.
func Load(data []byte) (*Table, error) {
	var entries []Entry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode knowledge table: %w", err)
	}
	return New(entries...)
}

// MustLoad is Load for data embedded at build time.
func MustLoad(data []byte) *Table {
	t, err := Load(data)
	if err != nil {
		panic(err)
	}
	return t
}

// New builds a table from entries, keeping their order.
func New(entries ...Entry) (*Table, error) {
	seen := make(map[string]struct{}, len(entries))
	for i, e := range entries {
		if strings.TrimSpace(e.Key) == "" {
			return nil, fmt.Errorf("entry %d: %w", i, ErrEmptyKey)
		}
		if strings.TrimSpace(e.Value) == "" {
			return nil, fmt.Errorf("entry %q: %w", e.Key, ErrEmptyValue)
		}
		if _, dup := seen[e.Key]; dup {
			return nil, fmt.Errorf("entry %q: %w", e.Key, ErrDuplicateKey)
		}
		seen[e.Key] = struct{}{}
	}

	cp := make([]Entry, len(entries))
	copy(cp, entries)
	return &Table{entries: cp}, nil
}

// Entries returns a copy of the table contents in definition order.
func (t *Table) Entries() []Entry {
	cp := make([]Entry, len(t.entries))
	copy(cp, t.entries)
	return cp
}

// Len returns the number of topics.
func (t *Table) Len() int {
	return len(t.entries)
}
