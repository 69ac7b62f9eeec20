package resolve

import (
	"context"
	"sync"
	"sync/atomic"

	rjserrors "github.com/rjspm/rjs/pkg/errors"
	"github.com/rjspm/rjs/pkg/npm"
	rjssemver "github.com/rjspm/rjs/pkg/semver"
)

// Resolver crawls the registry from a manifest's direct dependencies to a
// flat, deduplicated Graph, using a bounded pool of workers the way the
// ambient HTTP stack's crawler does, generalized to configurable
// concurrency and batch size.
type Resolver struct {
	npm   *npm.Client
	meta  *metadataCache
	dedup *dedupIndex
	opts  Options
}

// NewResolver creates a Resolver backed by client.
func NewResolver(client *npm.Client, opts Options) *Resolver {
	return &Resolver{
		npm:   client,
		meta:  newMetadataCache(client),
		dedup: newDedupIndex(),
		opts:  opts.WithDefaults(),
	}
}

// request is one edge to resolve: "name at rangeStr, requested by a
// direct manifest dependency (root=true) or a transitive one".
type request struct {
	name     string
	rangeStr string
	dev      bool
	root     bool
}

type outcome struct {
	request
	key  string
	node *Node // non-nil only when this call must process the node's own deps
	err  error
}

// Resolve crawls deps (and, if includeDev, devDeps) to a flat Graph.
func (r *Resolver) Resolve(ctx context.Context, deps, devDeps map[string]string, includeDev bool) (*Graph, error) {
	r.meta = newMetadataCache(r.npm)
	r.dedup = newDedupIndex()

	jobs := make(chan request, r.opts.BatchSize)
	results := make(chan outcome, r.opts.BatchSize)

	var wg sync.WaitGroup
	for i := 0; i < r.opts.Concurrency; i++ {
		wg.Add(1)
		go r.worker(ctx, jobs, results, &wg)
	}

	graph := &Graph{Root: make(map[string]string), Nodes: make(map[string]*Node), Hoisted: make(map[string]string)}
	var mu sync.Mutex
	var pending int64

	// seen short-circuits request-level dedup: an identical "name@range"
	// edge reached twice (a diamond dependency, or a cycle) is only ever
	// dispatched to a worker once. A later arrival of the same edge adds
	// no information - whichever request got there first already owns
	// resolving it and processing its own dependencies.
	seen := make(map[string]bool)
	var seenMu sync.Mutex

	enqueue := func(req request) {
		edgeKey := req.name + "@" + req.rangeStr
		seenMu.Lock()
		alreadySeen := seen[edgeKey]
		seen[edgeKey] = true
		seenMu.Unlock()
		if alreadySeen {
			return
		}

		atomic.AddInt64(&pending, 1)
		go func() { jobs <- req }()
	}

	for name, rng := range deps {
		enqueue(request{name: name, rangeStr: rng, root: true})
	}
	if includeDev {
		for name, rng := range devDeps {
			enqueue(request{name: name, rangeStr: rng, dev: true, root: true})
		}
	}

	var firstErr error
loop:
	for {
		select {
		case res := <-results:
			if res.err != nil {
				if res.root {
					if firstErr == nil {
						firstErr = res.err
					}
				} else {
					r.opts.Logger("skipping %s: %v", res.name, res.err)
				}
				if atomic.AddInt64(&pending, -1) == 0 {
					break loop
				}
				continue
			}

			mu.Lock()
			if res.root {
				graph.Root[res.name] = res.key
			}
			if res.node != nil {
				if _, exists := graph.Nodes[res.key]; !exists {
					graph.Nodes[res.key] = res.node
				}
			}
			mu.Unlock()

			if res.node != nil {
				for depName, depRange := range res.node.Dependencies {
					enqueue(request{name: depName, rangeStr: depRange, dev: false})
				}
			}

			if atomic.AddInt64(&pending, -1) == 0 {
				break loop
			}
		case <-ctx.Done():
			firstErr = ctx.Err()
			break loop
		}
	}

	close(jobs)
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}

	// Post-pass deduplication (§4.E): claim places a new version whenever a
	// request's range matches none of the versions already placed, so the
	// order requests arrive in can leave a lower version placed that a
	// later, higher placement also satisfies (a dist-tag request placed
	// before a higher semver-range request, for instance). compact folds
	// those away; remap carries the dropped keys so the graph reflects the
	// merge.
	remap := r.dedup.compact()
	for oldKey := range remap {
		delete(graph.Nodes, oldKey)
	}
	for name, key := range graph.Root {
		if newKey, ok := remap[key]; ok {
			graph.Root[name] = newKey
		}
	}

	graph.Hoisted = r.dedup.snapshot()
	return graph, nil
}

func (r *Resolver) worker(ctx context.Context, jobs <-chan request, results chan<- outcome, wg *sync.WaitGroup) {
	defer wg.Done()
	for req := range jobs {
		if ctx.Err() != nil {
			results <- outcome{request: req, err: ctx.Err()}
			continue
		}
		results <- r.resolveOne(ctx, req)
	}
}

func (r *Resolver) resolveOne(ctx context.Context, req request) outcome {
	doc, err := r.meta.Fetch(ctx, req.name, r.opts.Refresh)
	if err != nil {
		return outcome{request: req, err: rjserrors.Wrap(rjserrors.ErrCodeRegistry, err, "fetch %s", req.name)}
	}

	rng, err := rjssemver.ParseRange(req.rangeStr)
	if err != nil {
		return outcome{request: req, err: rjserrors.Wrap(rjserrors.ErrCodeInvalidRange, err, "range %q for %s", req.rangeStr, req.name)}
	}

	candidate, err := pickVersion(doc, rng)
	if err != nil {
		return outcome{request: req, err: err}
	}

	chosen, isNew := r.dedup.claim(req.name, rng, candidate)
	key := req.name + "@" + chosen.String()
	if !isNew {
		return outcome{request: req, key: key}
	}

	record, ok := doc.Versions[chosen.String()]
	if !ok {
		return outcome{request: req, err: rjserrors.New(rjserrors.ErrCodeNoMatchingVersion, "version %s of %s vanished from registry document", chosen, req.name)}
	}

	node := &Node{
		Name:         req.name,
		Version:      chosen.String(),
		Resolved:     record.Dist.Tarball,
		Integrity:    integrityOf(record.Dist),
		Dependencies: record.Dependencies,
		Dev:          req.dev,
	}
	return outcome{request: req, key: key, node: node}
}

// pickVersion selects the version to use for a range against doc. "*" and
// every other parseable semver constraint always resolve to the semver-max
// of the matching published versions; only a genuine dist-tag name (e.g.
// "latest", or any other unparseable range, which this module treats as a
// tag lookup) prefers the registry's dist-tags entry, since a registry's
// "latest" tag is not guaranteed to point at the highest published version.
func pickVersion(doc *npm.Document, rng *rjssemver.Range) (*rjssemver.Version, error) {
	if rng.Any() {
		if tagged, ok := doc.DistTags[rng.String()]; ok {
			if v, err := rjssemver.ParseVersion(tagged); err == nil {
				return v, nil
			}
		}
	}

	v := rjssemver.Max(rng, versionsOf(doc))
	if v == nil {
		return nil, rjserrors.New(rjserrors.ErrCodeNoMatchingVersion, "no version of %s satisfies %q", doc.Name, rng)
	}
	return v, nil
}
