package manifest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const fixture = `{
  "name": "demo",
  "version": "1.0.0",
  "scripts": {
    "test": "echo ok"
  },
  "dependencies": {
    "leftpad": "^1.0.0"
  }
}
`

func TestParseExtractsKnownFields(t *testing.T) {
	m, err := Parse([]byte(fixture))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if m.Name != "demo" {
		t.Errorf("expected name 'demo', got %q", m.Name)
	}
	if m.Version != "1.0.0" {
		t.Errorf("expected version '1.0.0', got %q", m.Version)
	}
	if m.Dependencies["leftpad"] != "^1.0.0" {
		t.Errorf("expected leftpad dependency, got %v", m.Dependencies)
	}
	if _, ok := m.Extra["scripts"]; !ok {
		t.Error("expected scripts field preserved in Extra")
	}
}

func TestAddDependency(t *testing.T) {
	m, err := Parse([]byte(fixture))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	m.AddDependency("is-odd", "^3.0.0", false)
	m.AddDependency("jest", "^29.0.0", true)

	if m.Dependencies["is-odd"] != "^3.0.0" {
		t.Errorf("expected is-odd added to dependencies")
	}
	if m.DevDependencies["jest"] != "^29.0.0" {
		t.Errorf("expected jest added to devDependencies")
	}
}

func TestSavePreservesUnknownFieldsAndSortsDeps(t *testing.T) {
	m, err := Parse([]byte(fixture))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	m.AddDependency("abc", "^1.0.0", false)

	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	if err := m.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	var out map[string]json.RawMessage
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("saved file is not valid JSON: %v", err)
	}
	if _, ok := out["scripts"]; !ok {
		t.Error("expected scripts field to survive Save")
	}

	var deps map[string]string
	if err := json.Unmarshal(out["dependencies"], &deps); err != nil {
		t.Fatalf("dependencies not valid JSON: %v", err)
	}
	if deps["abc"] != "^1.0.0" || deps["leftpad"] != "^1.0.0" {
		t.Errorf("expected both dependencies present, got %v", deps)
	}
	raw := string(out["dependencies"])
	if strings.Index(raw, `"abc"`) > strings.Index(raw, `"leftpad"`) {
		t.Errorf("expected dependencies sorted by name, got %s", raw)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), FileName))
	if err == nil {
		t.Fatal("expected error loading a missing manifest")
	}
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	if Exists(path) {
		t.Fatal("expected Exists false before file is written")
	}
	if err := os.WriteFile(path, []byte(fixture), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if !Exists(path) {
		t.Fatal("expected Exists true after file is written")
	}
}
