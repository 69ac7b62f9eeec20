// Package lockfile reads and writes rjs-lock.json, a flat record of every
// package version a resolve produced, keyed the same way resolve.Graph
// keys its nodes. It deliberately does not reproduce npm's nested
// packages[path] shape (see DESIGN.md): one entry per "name@version" is
// enough to replay a resolve deterministically, which is all a frozen
// install needs.
package lockfile

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	rjserrors "github.com/rjspm/rjs/pkg/errors"
	"github.com/rjspm/rjs/pkg/manifest"
	"github.com/rjspm/rjs/pkg/resolve"
)

// FileName is the default lockfile name written alongside package.json.
const FileName = "rjs-lock.json"

// Version is the lockfile format version, bumped on incompatible layout
// changes.
const Version = "1.0.0"

// Entry is one resolved package version.
type Entry struct {
	Version      string            `json:"version"`
	Resolved     string            `json:"resolved"`
	Integrity    string            `json:"integrity,omitempty"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
	Dev          bool              `json:"dev,omitempty"`
}

// File is the on-disk lockfile shape.
type File struct {
	Name            string            `json:"name"`
	Version         string            `json:"version"`
	LockfileVersion string            `json:"lockfile_version"`
	Root            map[string]string `json:"root"`
	Packages        map[string]Entry  `json:"packages"`
}

// FromGraph converts a resolved dependency graph into a lockfile, carrying
// mf's project name/version into the lockfile's top-level fields.
func FromGraph(mf *manifest.Manifest, graph *resolve.Graph) *File {
	f := &File{
		LockfileVersion: Version,
		Root:            make(map[string]string, len(graph.Root)),
		Packages:        make(map[string]Entry, len(graph.Nodes)),
	}
	if mf != nil {
		f.Name = mf.Name
		f.Version = mf.Version
	}
	for name, key := range graph.Root {
		f.Root[name] = key
	}
	for key, node := range graph.Nodes {
		f.Packages[key] = Entry{
			Version:      node.Version,
			Resolved:     node.Resolved,
			Integrity:    node.Integrity,
			Dependencies: node.Dependencies,
			Dev:          node.Dev,
		}
	}
	return f
}

// ToGraph rebuilds a resolve.Graph from a lockfile, for frozen installs that
// must not touch the registry's metadata endpoints.
func (f *File) ToGraph() *resolve.Graph {
	graph := &resolve.Graph{
		Root:    make(map[string]string, len(f.Root)),
		Nodes:   make(map[string]*resolve.Node, len(f.Packages)),
		Hoisted: make(map[string]string),
	}
	for name, key := range f.Root {
		graph.Root[name] = key
	}
	for key, entry := range f.Packages {
		name := key
		if idx := lastAt(key); idx > 0 {
			name = key[:idx]
		}
		graph.Nodes[key] = &resolve.Node{
			Name:         name,
			Version:      entry.Version,
			Resolved:     entry.Resolved,
			Integrity:    entry.Integrity,
			Dependencies: entry.Dependencies,
			Dev:          entry.Dev,
		}
	}
	graph.Hoisted = hoistFirstClaimant(graph)
	return graph
}

// lastAt returns the index of the "@" separating a scoped or unscoped
// package name from its version in a "name@version" key, or -1 if none is
// found. Scoped names ("@scope/name@1.0.0") carry a leading "@" that must
// be skipped.
func lastAt(key string) int {
	start := 0
	if len(key) > 0 && key[0] == '@' {
		start = 1
	}
	for i := len(key) - 1; i >= start; i-- {
		if key[i] == '@' {
			return i
		}
	}
	return -1
}

// hoistFirstClaimant recomputes a name->key hoist mapping from a rebuilt
// graph's node keys: for each name, the lexicographically first key is
// hoisted, so the result is deterministic. The lockfile does not record the
// resolver's claim order, so for a name with several versions the hoisted
// one can differ from the one the original resolve hoisted.
func hoistFirstClaimant(graph *resolve.Graph) map[string]string {
	keys := make([]string, 0, len(graph.Nodes))
	for k := range graph.Nodes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	hoisted := make(map[string]string, len(keys))
	for _, k := range keys {
		node := graph.Nodes[k]
		if _, claimed := hoisted[node.Name]; !claimed {
			hoisted[node.Name] = k
		}
	}
	return hoisted
}

// Write serializes f to path atomically (write to a temp file, then
// rename), so a crash mid-write never leaves a truncated lockfile behind.
func Write(path string, f *File) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return rjserrors.Wrap(rjserrors.ErrCodeLockfile, err, "encode lockfile")
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".rjs-lock-*.tmp")
	if err != nil {
		return rjserrors.Wrap(rjserrors.ErrCodeIO, err, "create temp lockfile")
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return rjserrors.Wrap(rjserrors.ErrCodeIO, err, "write temp lockfile")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return rjserrors.Wrap(rjserrors.ErrCodeIO, err, "close temp lockfile")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return rjserrors.Wrap(rjserrors.ErrCodeIO, err, "replace lockfile")
	}
	return nil
}

// Load reads and parses a lockfile from path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, rjserrors.Wrap(rjserrors.ErrCodeLockfile, err, "read lockfile")
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, rjserrors.Wrap(rjserrors.ErrCodeLockfile, err, "parse lockfile")
	}
	return &f, nil
}

// Exists reports whether a lockfile is present at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
