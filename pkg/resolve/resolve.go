// Package resolve builds a flat, deduplicated dependency graph for an npm
// package by crawling the registry with bounded concurrency, generalizing
// the fixed-worker crawl pattern this module's ambient HTTP stack was
// built around into a configurable batch/concurrency resolver.
package resolve

import (
	"context"
	"runtime"
	"sort"
	"time"

	"github.com/rjspm/rjs/pkg/npm"
	rjssemver "github.com/rjspm/rjs/pkg/semver"
)

const (
	// DefaultBatchSize is the default capacity of the job and result
	// channels between the resolver loop and its workers.
	DefaultBatchSize = 50
	// MinBatchSize and MaxBatchSize clamp a caller-supplied BatchSize.
	MinBatchSize = 10
	MaxBatchSize = 100

	// DefaultCacheTTL is how long a fetched registry document is reused.
	DefaultCacheTTL = 24 * time.Hour
)

// DefaultConcurrency mirrors the ambient HTTP client's rule of thumb for
// I/O-bound fan-out: four times the core count, since requests spend
// almost all their time blocked on the network.
func DefaultConcurrency() int {
	return 4 * runtime.NumCPU()
}

// Options configures a resolve run.
type Options struct {
	// Concurrency bounds simultaneous in-flight registry requests. Zero
	// or negative uses DefaultConcurrency.
	Concurrency int

	// BatchSize sets the capacity of the job and result channels feeding
	// the Concurrency workers. Requests are not grouped into waves: each
	// worker takes the next request as soon as it is free. Clamped to
	// [MinBatchSize, MaxBatchSize]; zero or negative uses DefaultBatchSize.
	BatchSize int

	// CacheTTL is defaulted by WithDefaults but not read by the Resolver;
	// how long registry documents stay cached is set by the ttl passed to
	// registry.NewClient. Zero or negative uses DefaultCacheTTL.
	CacheTTL time.Duration

	// Refresh bypasses the registry document cache, forcing a fresh
	// fetch for every package touched by this resolve.
	Refresh bool

	// Logger receives progress and recoverable-failure messages. Nil
	// installs a no-op logger.
	Logger func(string, ...any)
}

// WithDefaults returns a copy of o with zero-valued fields replaced.
func (o Options) WithDefaults() Options {
	opts := o
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.BatchSize < MinBatchSize {
		opts.BatchSize = MinBatchSize
	}
	if opts.BatchSize > MaxBatchSize {
		opts.BatchSize = MaxBatchSize
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.Logger == nil {
		opts.Logger = func(string, ...any) {}
	}
	return opts
}

// Node is one resolved package version in the graph, keyed by Key().
type Node struct {
	Name         string
	Version      string
	Resolved     string // tarball URL
	Integrity    string // dist.integrity, falling back to "sha1-<shasum>"
	Dependencies map[string]string // child package name -> range, as published
	Dev          bool              // true if claimed by a direct devDependencies request; transitive nodes are always false
}

// Key uniquely identifies a resolved node as "name@version".
func (n *Node) Key() string { return n.Name + "@" + n.Version }

// Graph is the output of a resolve: every distinct package version
// touched, plus the direct dependency names of the root manifest.
type Graph struct {
	Root    map[string]string // direct dependency name -> resolved Key
	Nodes   map[string]*Node  // Key() -> Node
	Hoisted map[string]string // package name -> the Key installed flat at node_modules/<name>
}

// SortedKeys returns every node key in lexicographic order, the order the
// lockfile writer uses for deterministic output.
func (g *Graph) SortedKeys() []string {
	keys := make([]string, 0, len(g.Nodes))
	for k := range g.Nodes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func integrityOf(d npm.Dist) string {
	if d.Integrity != "" {
		return d.Integrity
	}
	if d.Shasum != "" {
		return "sha1-" + d.Shasum
	}
	return ""
}

func versionsOf(doc *npm.Document) []*rjssemver.Version {
	versions := make([]*rjssemver.Version, 0, len(doc.Versions))
	for raw := range doc.Versions {
		v, err := rjssemver.ParseVersion(raw)
		if err != nil {
			continue
		}
		versions = append(versions, v)
	}
	return versions
}
