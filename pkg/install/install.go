// Package install downloads the tarballs named by a resolved dependency
// graph and extracts them into node_modules, using the same bounded
// worker-pool pattern pkg/resolve crawls the registry with.
package install

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/google/uuid"

	rjserrors "github.com/rjspm/rjs/pkg/errors"
	"github.com/rjspm/rjs/pkg/npm"
	"github.com/rjspm/rjs/pkg/resolve"
)

// nestedDir holds packages that lost the hoisted node_modules/<name> slot
// to a different version of the same package. Real node resolution never
// looks here; this module does not implement nested require scoping, it
// only guarantees every resolved version lands on disk somewhere under
// node_modules (see DESIGN.md).
const nestedDir = ".rjs-nested"

const (
	DefaultBatchSize = 50
	MinBatchSize     = 10
	MaxBatchSize     = 100
)

// DefaultConcurrency mirrors pkg/resolve: tarball downloads are as
// I/O-bound as metadata fetches.
func DefaultConcurrency() int { return 4 * runtime.NumCPU() }

// Options configures an install run.
type Options struct {
	Concurrency int
	BatchSize   int
	Logger      func(string, ...any)
}

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
	if opts.Logger == nil {
		opts.Logger = func(string, ...any) {}
	}
	return opts
}

// Installer extracts the packages named by a resolve.Graph into a
// node_modules directory.
type Installer struct {
	npm  *npm.Client
	opts Options
}

// NewInstaller creates an Installer backed by client.
func NewInstaller(client *npm.Client, opts Options) *Installer {
	return &Installer{npm: client, opts: opts.WithDefaults()}
}

// Result reports what happened to one graph node.
type Result struct {
	Key string
	Err error
}

// Install downloads and extracts every node in graph into nodeModulesDir.
// Failures are tolerated per-node: a package that fails to download or
// extract is reported in the returned results but does not abort the
// rest of the install. The second return value is nil only if every node
// installed successfully.
func (i *Installer) Install(ctx context.Context, graph *resolve.Graph, nodeModulesDir string) ([]Result, error) {
	keys := graph.SortedKeys()
	jobs := make(chan string, i.opts.BatchSize)
	results := make(chan Result, len(keys))

	var wg sync.WaitGroup
	for w := 0; w < i.opts.Concurrency; w++ {
		wg.Add(1)
		go i.worker(ctx, graph, nodeModulesDir, jobs, results, &wg)
	}

	go func() {
		for _, k := range keys {
			jobs <- k
		}
		close(jobs)
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	out := make([]Result, 0, len(keys))
	var failures int
	for res := range results {
		if res.Err != nil {
			failures++
			i.opts.Logger("install failed: %s: %v", res.Key, res.Err)
		}
		out = append(out, res)
	}

	if failures > 0 {
		return out, rjserrors.New(rjserrors.ErrCodeIO, "%d of %d packages failed to install", failures, len(keys))
	}
	return out, nil
}

func (i *Installer) worker(ctx context.Context, graph *resolve.Graph, nodeModulesDir string, jobs <-chan string, results chan<- Result, wg *sync.WaitGroup) {
	defer wg.Done()
	for key := range jobs {
		node := graph.Nodes[key]
		err := i.installNode(ctx, graph, node, nodeModulesDir)
		results <- Result{Key: key, Err: err}
	}
}

func (i *Installer) installNode(ctx context.Context, graph *resolve.Graph, node *resolve.Node, nodeModulesDir string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	target := targetDir(graph, node, nodeModulesDir)
	tmp := target + ".tmp-" + uuid.NewString()
	tarballPath := tmp + ".tgz"

	if err := i.npm.DownloadTarball(ctx, node.Resolved, tarballPath); err != nil {
		os.Remove(tarballPath)
		return err
	}
	defer os.Remove(tarballPath)

	if err := npm.Extract(tarballPath, tmp); err != nil {
		os.RemoveAll(tmp)
		return err
	}

	if err := os.RemoveAll(target); err != nil {
		os.RemoveAll(tmp)
		return rjserrors.Wrap(rjserrors.ErrCodeIO, err, "clear %s", target)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.RemoveAll(tmp)
		return rjserrors.Wrap(rjserrors.ErrCodeIO, err, "place %s", target)
	}
	return nil
}

func targetDir(graph *resolve.Graph, node *resolve.Node, nodeModulesDir string) string {
	if hoistedKey, ok := graph.Hoisted[node.Name]; ok && hoistedKey == node.Key() {
		return filepath.Join(nodeModulesDir, node.Name)
	}
	return filepath.Join(nodeModulesDir, nestedDir, node.Key())
}
