// Package pkg provides the core libraries behind rjs, an npm-compatible
// package manager core.
//
// # Overview
//
// rjs resolves a project's dependencies against an npm registry and
// installs them, the same job npm/yarn/pnpm perform, scoped to the
// install path: resolve, download, extract, lock. The pkg directory is
// organized around that pipeline:
//
//	package.json (direct deps)
//	         ↓
//	    [resolve] package (concurrent semver resolution against the registry)
//	         ↓
//	    [install] package (parallel tarball download + extraction)
//	         ↓
//	    [lockfile] package (deterministic rjs-lock.json)
//
// # Main Packages
//
// [registry] - generic, cached, concurrency-bounded HTTP client for an
// npm-compatible registry.
//
// [npm] - the registry's wire format: package documents, dist-tags,
// tarball streaming, and extraction.
//
// [semver] - version parsing and range matching (caret, tilde, wildcard,
// dist-tags), built on Masterminds/semver.
//
// [resolve] - crawls a manifest's dependencies to a flat, deduplicated
// graph with bounded worker-pool concurrency.
//
// [install] - downloads and extracts every node of a resolved graph into
// node_modules, hoisting one version per package name and nesting the
// rest.
//
// [lockfile] - reads and writes rjs-lock.json, and can replay it into a
// graph without touching the registry (frozen installs).
//
// [manifest] - reads and writes package.json, preserving every field this
// module does not model.
//
// [config] - optional per-project overrides from .rjsrc.toml.
//
// [cache] - the shared on-disk/Redis HTTP response cache backing
// [registry.Client].
//
// [errors] - the structured error taxonomy shared by every package above
// and by internal/cli.
package pkg
