package install

import (
	"archive/tar"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/rjspm/rjs/pkg/cache"
	"github.com/rjspm/rjs/pkg/npm"
	"github.com/rjspm/rjs/pkg/registry"
	"github.com/rjspm/rjs/pkg/resolve"
)

func tarballFor(t *testing.T, name string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	content := []byte("module.exports = " + "'" + name + "'" + ";")
	hdr := &tar.Header{Name: "package/index.js", Mode: 0o644, Size: int64(len(content))}
	if err := tw.WriteHeader(hdr); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
	if _, err := tw.Write(content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	tw.Close()
	gz.Close()
	return buf.Bytes()
}

func TestInstallHoistedAndNested(t *testing.T) {
	tarballs := map[string][]byte{
		"/shared-1.0.0.tgz": tarballFor(t, "shared-1.0.0"),
		"/shared-2.0.0.tgz": tarballFor(t, "shared-2.0.0"),
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, ok := tarballs[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write(data)
	}))
	defer srv.Close()

	reg := registry.NewClient(srv.URL, cache.NewNullCache(), time.Hour, 4)
	client := npm.NewClient(reg)
	installer := NewInstaller(client, Options{})

	graph := &resolve.Graph{
		Nodes: map[string]*resolve.Node{
			"shared@1.0.0": {Name: "shared", Version: "1.0.0", Resolved: srv.URL + "/shared-1.0.0.tgz"},
			"shared@2.0.0": {Name: "shared", Version: "2.0.0", Resolved: srv.URL + "/shared-2.0.0.tgz"},
		},
		Hoisted: map[string]string{"shared": "shared@1.0.0"},
	}

	dir := t.TempDir()
	results, err := installer.Install(context.Background(), graph, filepath.Join(dir, "node_modules"))
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}

	if _, err := os.Stat(filepath.Join(dir, "node_modules", "shared", "index.js")); err != nil {
		t.Errorf("expected hoisted package at node_modules/shared: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "node_modules", nestedDir, "shared@2.0.0", "index.js")); err != nil {
		t.Errorf("expected nested package at node_modules/%s/shared@2.0.0: %v", nestedDir, err)
	}
}

func TestInstallPartialFailureTolerated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ok.tgz" {
			w.Write(tarballFor(t, "ok"))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	reg := registry.NewClient(srv.URL, cache.NewNullCache(), time.Hour, 4)
	client := npm.NewClient(reg)
	installer := NewInstaller(client, Options{})

	graph := &resolve.Graph{
		Nodes: map[string]*resolve.Node{
			"ok@1.0.0":      {Name: "ok", Version: "1.0.0", Resolved: srv.URL + "/ok.tgz"},
			"missing@1.0.0": {Name: "missing", Version: "1.0.0", Resolved: srv.URL + "/missing.tgz"},
		},
		Hoisted: map[string]string{"ok": "ok@1.0.0", "missing": "missing@1.0.0"},
	}

	dir := t.TempDir()
	results, err := installer.Install(context.Background(), graph, filepath.Join(dir, "node_modules"))
	if err == nil {
		t.Fatal("expected error reporting the failed package")
	}
	if len(results) != 2 {
		t.Fatalf("expected both results even on partial failure, got %d", len(results))
	}

	if _, statErr := os.Stat(filepath.Join(dir, "node_modules", "ok", "index.js")); statErr != nil {
		t.Errorf("expected successful package to still be installed: %v", statErr)
	}
}
