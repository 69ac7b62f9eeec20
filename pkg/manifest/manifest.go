// Package manifest reads and writes a project's package.json: the
// dependency declarations an install starts from and, unless --no-save is
// given, writes back to.
package manifest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	rjserrors "github.com/rjspm/rjs/pkg/errors"
)

// FileName is the manifest file a project root is expected to carry.
const FileName = "package.json"

// Manifest is a parsed package.json. Fields this module never writes are
// kept in Extra so a round trip through Load/Save never drops data a
// project's tooling depends on.
type Manifest struct {
	Name            string            `json:"-"`
	Version         string            `json:"-"`
	Dependencies    map[string]string `json:"-"`
	DevDependencies map[string]string `json:"-"`

	// Extra holds every field of the original document, including ones
	// this struct does not model explicitly (scripts, engines, bin,
	// author, repository, and so on). Save re-emits it verbatim except
	// for the dependency fields, which are overwritten from the struct
	// above.
	Extra map[string]json.RawMessage `json:"-"`
}

// Load reads and parses the package.json at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, rjserrors.Wrap(rjserrors.ErrCodeIO, err, "read %s", path)
	}
	return Parse(data)
}

// Parse decodes raw package.json bytes into a Manifest.
func Parse(data []byte) (*Manifest, error) {
	var extra map[string]json.RawMessage
	if err := json.Unmarshal(data, &extra); err != nil {
		return nil, rjserrors.Wrap(rjserrors.ErrCodeInvalidPackage, err, "parse package.json")
	}

	m := &Manifest{Extra: extra}
	if raw, ok := extra["name"]; ok {
		_ = json.Unmarshal(raw, &m.Name)
	}
	if raw, ok := extra["version"]; ok {
		_ = json.Unmarshal(raw, &m.Version)
	}
	if raw, ok := extra["dependencies"]; ok {
		_ = json.Unmarshal(raw, &m.Dependencies)
	}
	if raw, ok := extra["devDependencies"]; ok {
		_ = json.Unmarshal(raw, &m.DevDependencies)
	}
	if m.Dependencies == nil {
		m.Dependencies = make(map[string]string)
	}
	if m.DevDependencies == nil {
		m.DevDependencies = make(map[string]string)
	}
	return m, nil
}

// AddDependency records name at rangeStr in the dependency set dev
// selects, overwriting any existing range for that name.
func (m *Manifest) AddDependency(name, rangeStr string, dev bool) {
	if dev {
		m.DevDependencies[name] = rangeStr
		return
	}
	m.Dependencies[name] = rangeStr
}

// Save writes m back to path atomically, preserving every field Extra
// carries and overwriting only "dependencies"/"devDependencies".
// "dependencies" is always written; "devDependencies" is written when it is
// non-empty or the original document already had it.
func (m *Manifest) Save(path string) error {
	out := make(map[string]json.RawMessage, len(m.Extra)+2)
	for k, v := range m.Extra {
		out[k] = v
	}

	depsJSON, err := json.MarshalIndent(sortedStringMap(m.Dependencies), "", "  ")
	if err != nil {
		return rjserrors.Wrap(rjserrors.ErrCodeInternal, err, "encode dependencies")
	}
	out["dependencies"] = depsJSON

	if len(m.DevDependencies) > 0 {
		devJSON, err := json.MarshalIndent(sortedStringMap(m.DevDependencies), "", "  ")
		if err != nil {
			return rjserrors.Wrap(rjserrors.ErrCodeInternal, err, "encode devDependencies")
		}
		out["devDependencies"] = devJSON
	} else if _, had := m.Extra["devDependencies"]; had {
		devJSON, _ := json.Marshal(sortedStringMap(m.DevDependencies))
		out["devDependencies"] = devJSON
	}

	data, err := marshalOrdered(out)
	if err != nil {
		return rjserrors.Wrap(rjserrors.ErrCodeInternal, err, "encode package.json")
	}

	return writeAtomic(path, data)
}

// sortedStringMap re-encodes a map[string]string with keys in
// lexicographic order, so repeated Saves produce a stable diff.
func sortedStringMap(m map[string]string) json.RawMessage {
	if len(m) == 0 {
		return json.RawMessage("{}")
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf := []byte{'{'}
	for i, k := range keys {
		if i > 0 {
			buf = append(buf, ',')
		}
		kJSON, _ := json.Marshal(k)
		vJSON, _ := json.Marshal(m[k])
		buf = append(buf, kJSON...)
		buf = append(buf, ':')
		buf = append(buf, vJSON...)
	}
	buf = append(buf, '}')
	return buf
}

// marshalOrdered encodes fields in a fixed, conventional package.json
// field order where present, then the remainder alphabetically, rather
// than Go's unordered map iteration.
func marshalOrdered(fields map[string]json.RawMessage) ([]byte, error) {
	preferred := []string{
		"name", "version", "description", "private", "main", "types", "bin",
		"scripts", "dependencies", "devDependencies", "peerDependencies",
		"optionalDependencies", "engines",
	}
	seen := make(map[string]bool, len(preferred))
	order := make([]string, 0, len(fields))
	for _, k := range preferred {
		if _, ok := fields[k]; ok {
			order = append(order, k)
			seen[k] = true
		}
	}
	rest := make([]string, 0, len(fields))
	for k := range fields {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	order = append(order, rest...)

	buf := []byte{'{', '\n'}
	for i, k := range order {
		kJSON, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf = append(buf, "  "...)
		buf = append(buf, kJSON...)
		buf = append(buf, ": "...)
		buf = append(buf, indentValue(fields[k])...)
		if i < len(order)-1 {
			buf = append(buf, ',')
		}
		buf = append(buf, '\n')
	}
	buf = append(buf, '}', '\n')
	return buf, nil
}

// indentValue re-indents a raw JSON value by two spaces per nesting
// level so it lines up inside marshalOrdered's top-level object.
func indentValue(raw json.RawMessage) []byte {
	var compact interface{}
	if err := json.Unmarshal(raw, &compact); err != nil {
		return raw
	}
	data, err := json.MarshalIndent(compact, "  ", "  ")
	if err != nil {
		return raw
	}
	return data
}

// writeAtomic writes data to path via a temp file plus rename, so a
// crash mid-write never corrupts an existing package.json.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".package-*.json.tmp")
	if err != nil {
		return rjserrors.Wrap(rjserrors.ErrCodeIO, err, "create temp manifest")
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return rjserrors.Wrap(rjserrors.ErrCodeIO, err, "write temp manifest")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return rjserrors.Wrap(rjserrors.ErrCodeIO, err, "close temp manifest")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return rjserrors.Wrap(rjserrors.ErrCodeIO, err, "replace manifest")
	}
	return nil
}

// Exists reports whether a package.json is present at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
