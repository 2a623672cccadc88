package diseases

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestDefault_BundledEntries(t *testing.T) {
	kb := Default()

	want := []string{"healthy", "leaf_spot", "powdery_mildew"}
	if got := kb.Keys(); !reflect.DeepEqual(got, want) {
		t.Errorf("Keys() = %v, want %v", got, want)
	}
	if kb.Fallback() != "healthy" {
		t.Errorf("Fallback() = %q, want healthy", kb.Fallback())
	}

	pm := kb.Lookup("powdery_mildew")
	if !strings.Contains(pm.Description, "White powdery spots") {
		t.Errorf("powdery_mildew description = %q", pm.Description)
	}
	if !strings.Contains(pm.Treatment, "neem oil") {
		t.Errorf("powdery_mildew treatment = %q", pm.Treatment)
	}
}

func TestLookup_UnknownFallsBackToHealthy(t *testing.T) {
	kb := Default()

	got := kb.Lookup("unknown_key")
	want := kb.Lookup("healthy")
	if got != want {
		t.Errorf("Lookup(unknown_key) = %+v, want healthy entry %+v", got, want)
	}
	if kb.Has("unknown_key") {
		t.Error("Has(unknown_key) = true, want false")
	}
	if !kb.Has("leaf_spot") {
		t.Error("Has(leaf_spot) = false, want true")
	}
}

func TestLoad_CustomFallback(t *testing.T) {
	doc := `
fallback: unknown
diseases:
  unknown:
    description: Not in the table.
    treatment: Consult an agronomist.
  rust:
    description: Orange pustules.
    treatment: Remove infected leaves.
`
	kb, err := Load(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if kb.Len() != 2 {
		t.Errorf("Len() = %d, want 2", kb.Len())
	}
	if got := kb.Lookup("blight").Treatment; got != "Consult an agronomist." {
		t.Errorf("fallback treatment = %q", got)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		is   error
	}{
		{"missing fallback entry", "diseases:\n  rust:\n    description: x\n    treatment: y\n", ErrNoFallback},
		{"unknown field", "fallback: healthy\ncolour: red\n", nil},
		{"not yaml", "diseases: [", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.doc))
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.is != nil && !errors.Is(err, tt.is) {
				t.Errorf("error = %v, want errors.Is %v", err, tt.is)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.yaml")
	if err := os.WriteFile(path, bundled, 0o644); err != nil {
		t.Fatal(err)
	}
	kb, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if kb.Len() != Default().Len() {
		t.Errorf("Len() = %d, want %d", kb.Len(), Default().Len())
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestNew_CopiesEntries(t *testing.T) {
	src := map[string]Entry{"healthy": {Description: "ok", Treatment: "none"}}
	kb, err := New(src, "healthy")
	if err != nil {
		t.Fatal(err)
	}
	src["healthy"] = Entry{Description: "mutated"}
	if kb.Lookup("healthy").Description != "ok" {
		t.Error("knowledge base observed mutation of the source map")
	}
}
