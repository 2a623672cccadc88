// Package diseases is the static knowledge base mapping model labels to a
// human-readable description and treatment.
//
// Lookups never fail: a label that is not in the table resolves to the
// fallback entry ("healthy" in the bundled table). Has reports whether a
// label is actually known so callers can surface a mismatch between the
// model's class list and the table.
package diseases

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed diseases.yaml
var bundled []byte

// ErrNoFallback is returned when a table does not contain its fallback key.
var ErrNoFallback = errors.New("fallback entry missing")

// Entry is the description and treatment for one label.
type Entry struct {
	Description string `yaml:"description" json:"description"`
	Treatment   string `yaml:"treatment" json:"treatment"`
}

// KnowledgeBase is an immutable label table with a default entry.
type KnowledgeBase struct {
	entries  map[string]Entry
	fallback string
}

type document struct {
	Fallback string           `yaml:"fallback"`
	Diseases map[string]Entry `yaml:"diseases"`
}

// Load parses a YAML table. The fallback key defaults to "healthy" and
// must be present in the table.
func Load(r io.Reader) (*KnowledgeBase, error) {
	var doc document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse disease table: %w", err)
	}
	if doc.Fallback == "" {
		doc.Fallback = "healthy"
	}
	return New(doc.Diseases, doc.Fallback)
}

// LoadFile reads a YAML table from path.
func LoadFile(path string) (*KnowledgeBase, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open disease table: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// New builds a knowledge base from entries. The map is copied.
func New(entries map[string]Entry, fallback string) (*KnowledgeBase, error) {
	if _, ok := entries[fallback]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoFallback, fallback)
	}
	m := make(map[string]Entry, len(entries))
	for k, v := range entries {
		m[k] = v
	}
	return &KnowledgeBase{entries: m, fallback: fallback}, nil
}

var (
	defaultOnce sync.Once
	defaultKB   *KnowledgeBase
)

// Default returns the bundled table, parsed once.
func Default() *KnowledgeBase {
	defaultOnce.Do(func() {
		kb, err := Load(bytes.NewReader(bundled))
		if err != nil {
			panic(fmt.Sprintf("bundled disease table: %v", err))
		}
		defaultKB = kb
	})
	return defaultKB
}

// Lookup returns the entry for key, or the fallback entry when key is unknown.
func (kb *KnowledgeBase) Lookup(key string) Entry {
	if e, ok := kb.entries[key]; ok {
		return e
	}
	return kb.entries[kb.fallback]
}

// Has reports whether key has its own entry.
func (kb *KnowledgeBase) Has(key string) bool {
	_, ok := kb.entries[key]
	return ok
}

// Fallback is the key used for unknown labels.
func (kb *KnowledgeBase) Fallback() string {
	return kb.fallback
}

// Keys returns every label in the table, sorted.
func (kb *KnowledgeBase) Keys() []string {
	keys := make([]string, 0, len(kb.entries))
	for k := range kb.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len is the number of entries.
func (kb *KnowledgeBase) Len() int {
	return len(kb.entries)
}
