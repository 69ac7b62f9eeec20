// Package npm fetches package metadata and tarballs from an npm-compatible
// registry and extracts them to disk. It is the only package in this module
// that knows the registry's wire format.
package npm

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	rjserrors "github.com/rjspm/rjs/pkg/errors"
	"github.com/rjspm/rjs/pkg/registry"
)

// Record is one published version of a package, as it appears under
// versions["<version>"] in the registry's package document.
type Record struct {
	Name            string            `json:"name"`
	Version         string            `json:"version"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
	Dist            Dist              `json:"dist"`
}

// Dist carries the tarball location and integrity metadata for a Record.
type Dist struct {
	Tarball   string `json:"tarball"`
	Shasum    string `json:"shasum"`
	Integrity string `json:"integrity"`
}

// Document is the full per-package registry response: every published
// version plus the dist-tags that alias to them (at minimum "latest").
type Document struct {
	Name     string            `json:"name"`
	DistTags map[string]string `json:"dist-tags"`
	Versions map[string]Record `json:"versions"`
}

// Client fetches package documents and tarballs from the registry.
type Client struct {
	reg *registry.Client
}

// NewClient wraps a registry.Client for npm-shaped requests.
func NewClient(reg *registry.Client) *Client {
	return &Client{reg: reg}
}

// FetchDocument retrieves the full version/dist-tag document for name. The
// result is cached by the underlying registry.Client; refresh bypasses it.
func (c *Client) FetchDocument(ctx context.Context, name string, refresh bool) (*Document, error) {
	encoded := encodePackagePath(name)

	var doc Document
	err := c.reg.Cached(ctx, name, refresh, &doc, func() error {
		return c.reg.GetJSON(ctx, "/"+encoded, &doc)
	})
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// DownloadTarball streams the tarball at url (Dist.Tarball from a resolved
// Record) to dst, creating dst's parent directory as needed. The registry
// connection - and the concurrency slot it holds - stays open for the
// whole write; the caller is responsible for removing dst once it has
// been extracted.
func (c *Client) DownloadTarball(ctx context.Context, url, dst string) error {
	body, err := c.reg.OpenStream(ctx, url)
	if err != nil {
		return err
	}
	defer body.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return rjserrors.Wrap(rjserrors.ErrCodeIO, err, "create directory for %s", dst)
	}
	f, err := os.Create(dst)
	if err != nil {
		return rjserrors.Wrap(rjserrors.ErrCodeIO, err, "create %s", dst)
	}
	defer f.Close()

	if _, err := io.Copy(f, body); err != nil {
		return rjserrors.Wrap(rjserrors.ErrCodeNetwork, err, "stream tarball to %s", dst)
	}
	return nil
}

// encodePackagePath percent-encodes the "/" in a scoped package name
// (e.g. "@types/node") so it survives as a single path segment, matching
// how the npm registry expects scoped lookups.
func encodePackagePath(name string) string {
	if !strings.HasPrefix(name, "@") {
		return name
	}
	scope, rest, ok := strings.Cut(name, "/")
	if !ok {
		return name
	}
	return fmt.Sprintf("%s%%2F%s", scope, rest)
}
