package cli

import (
	"context"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rjspm/rjs/pkg/config"
	"github.com/rjspm/rjs/pkg/install"
	"github.com/rjspm/rjs/pkg/lockfile"
	"github.com/rjspm/rjs/pkg/manifest"
	"github.com/rjspm/rjs/pkg/npm"
	"github.com/rjspm/rjs/pkg/registry"
	"github.com/rjspm/rjs/pkg/resolve"
)

// installCommand builds the "install" subcommand: resolve the project's
// package.json dependencies (or explicit package arguments) against the
// registry, download and extract the resulting graph into node_modules,
// and write rjs-lock.json.
func (c *CLI) installCommand() *cobra.Command {
	var (
		saveDev bool
		noSave  bool
		frozen  bool
		noCache bool
		refresh bool
		dir     string
	)

	cmd := &cobra.Command{
		Use:   "install [packages...]",
		Short: "Resolve and install npm packages",
		Long: `install resolves dependencies from package.json (or the packages named
on the command line), downloads and extracts every resolved tarball into
node_modules, and writes rjs-lock.json.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runInstall(cmd.Context(), installArgs{
				root:     dir,
				packages: args,
				saveDev:  saveDev,
				noSave:   noSave,
				frozen:   frozen,
				noCache:  noCache,
				refresh:  refresh,
			})
		},
	}

	cmd.Flags().BoolVarP(&saveDev, "save-dev", "D", false, "save explicitly named packages to devDependencies")
	cmd.Flags().BoolVar(&noSave, "no-save", false, "do not write resolved packages back to package.json")
	cmd.Flags().BoolVar(&frozen, "frozen", false, "install exactly what rjs-lock.json records, without touching the registry for metadata")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the on-disk HTTP response cache")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "bypass the HTTP response cache for this run")
	cmd.Flags().StringVar(&dir, "dir", ".", "project directory containing package.json")

	return cmd
}

// registryRequestLimit caps in-flight registry HTTP requests, shared by the
// resolver and the installer regardless of their worker counts.
const registryRequestLimit = 100

type installArgs struct {
	root     string
	packages []string
	saveDev  bool
	noSave   bool
	frozen   bool
	noCache  bool
	refresh  bool
}

func (c *CLI) runInstall(ctx context.Context, args installArgs) error {
	manifestPath := filepath.Join(args.root, manifest.FileName)
	lockfilePath := filepath.Join(args.root, lockfile.FileName)
	nodeModulesDir := filepath.Join(args.root, "node_modules")

	cfg, err := config.Load(args.root)
	if err != nil {
		return err
	}

	mf, err := loadOrBootstrapManifest(manifestPath, args.packages)
	if err != nil {
		return err
	}
	if mf == nil {
		printWarning("no package.json found and no packages given; nothing to install")
		return nil
	}

	for _, spec := range args.packages {
		name, rangeStr := splitPackageSpec(spec)
		mf.AddDependency(name, rangeStr, args.saveDev)
	}

	cache, err := newCache(args.noCache)
	if err != nil {
		return err
	}
	defer cache.Close()

	reg := registry.NewClient(cfg.Registry, cache, cfg.CacheTTLDuration(resolve.DefaultCacheTTL), registryRequestLimit)
	npmClient := npm.NewClient(reg)

	graph, err := c.resolveGraph(ctx, npmClient, mf, lockfilePath, cfg, args.refresh, args.frozen)
	if err != nil {
		return err
	}

	installer := install.NewInstaller(npmClient, install.Options{
		Concurrency: cfg.Concurrency,
		BatchSize:   cfg.BatchSize,
		Logger:      c.Logger.Debugf,
	})

	spin := newSpinner("installing packages")
	spin.Start()
	results, installErr := installer.Install(ctx, graph, nodeModulesDir)
	spin.Stop()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			printWarning("%s: %v", r.Key, r.Err)
		}
	}
	printStats(len(results), failed)

	if installErr != nil {
		printError("install finished with failures")
		return installErr
	}

	if !args.frozen {
		if err := lockfile.Write(lockfilePath, lockfile.FromGraph(mf, graph)); err != nil {
			return err
		}
	}

	if !args.noSave && len(args.packages) > 0 {
		if err := mf.Save(manifestPath); err != nil {
			return err
		}
	}

	printSuccess("installed %d packages", len(graph.Nodes))
	return nil
}

// resolveGraph resolves the dependency graph either from the registry
// (the normal path) or by replaying rjs-lock.json (frozen installs, which
// must not touch the registry's metadata endpoints).
func (c *CLI) resolveGraph(ctx context.Context, npmClient *npm.Client, mf *manifest.Manifest, lockfilePath string, cfg config.Config, refresh, frozen bool) (*resolve.Graph, error) {
	if frozen {
		lf, err := lockfile.Load(lockfilePath)
		if err != nil {
			return nil, err
		}
		return lf.ToGraph(), nil
	}

	resolver := resolve.NewResolver(npmClient, resolve.Options{
		Concurrency: cfg.Concurrency,
		BatchSize:   cfg.BatchSize,
		CacheTTL:    cfg.CacheTTLDuration(resolve.DefaultCacheTTL),
		Refresh:     refresh,
		Logger:      c.Logger.Debugf,
	})

	prog := newProgress(c.Logger)
	graph, err := resolver.Resolve(ctx, mf.Dependencies, mf.DevDependencies, true)
	if err != nil {
		return nil, err
	}
	prog.done("resolved dependency graph")
	return graph, nil
}

// loadOrBootstrapManifest loads package.json at path. If it does not
// exist but explicit packages were requested on the command line, an
// empty in-memory manifest is returned so those packages can still be
// installed; if neither a manifest nor explicit packages are present,
// it returns (nil, nil) - a clean no-op rather than a fatal error.
func loadOrBootstrapManifest(path string, packages []string) (*manifest.Manifest, error) {
	if manifest.Exists(path) {
		return manifest.Load(path)
	}
	if len(packages) == 0 {
		return nil, nil
	}
	return manifest.Parse([]byte("{}"))
}

// splitPackageSpec splits "name@range" into its parts. A bare name with
// no "@range" suffix (or a scoped name with no version, e.g. "@types/node")
// resolves against "latest".
func splitPackageSpec(spec string) (name, rangeStr string) {
	if spec == "" {
		return spec, "latest"
	}
	search := spec
	offset := 0
	if spec[0] == '@' {
		search = spec[1:]
		offset = 1
	}
	for i := len(search) - 1; i >= 0; i-- {
		if search[i] == '@' {
			return spec[:i+offset], spec[i+offset+1:]
		}
	}
	return spec, "latest"
}
