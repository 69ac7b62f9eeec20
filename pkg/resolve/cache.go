package resolve

import (
	"context"
	"sync"

	"github.com/rjspm/rjs/pkg/npm"
)

// metadataCache deduplicates in-flight and completed registry document
// fetches so that N requesters of the same package name (a very common
// case - lodash, for instance) trigger exactly one HTTP request.
type metadataCache struct {
	client *npm.Client

	mu      sync.Mutex
	inFlight map[string]*docFuture
}

type docFuture struct {
	done chan struct{}
	doc  *npm.Document
	err  error
}

func newMetadataCache(client *npm.Client) *metadataCache {
	return &metadataCache{client: client, inFlight: make(map[string]*docFuture)}
}

// Fetch returns the registry document for name, fetching it at most once
// regardless of how many goroutines request it concurrently.
func (c *metadataCache) Fetch(ctx context.Context, name string, refresh bool) (*npm.Document, error) {
	c.mu.Lock()
	if f, ok := c.inFlight[name]; ok {
		c.mu.Unlock()
		<-f.done
		return f.doc, f.err
	}
	f := &docFuture{done: make(chan struct{})}
	c.inFlight[name] = f
	c.mu.Unlock()

	f.doc, f.err = c.client.FetchDocument(ctx, name, refresh)
	close(f.done)
	return f.doc, f.err
}
