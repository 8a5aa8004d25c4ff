// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/docker/go-units"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/lambdapack/lambdapack/internal/config"
	"github.com/lambdapack/lambdapack/internal/handoff"
	"github.com/lambdapack/lambdapack/internal/issue"
	"github.com/lambdapack/lambdapack/internal/npm"
	"github.com/lambdapack/lambdapack/internal/packager"
	"github.com/lambdapack/lambdapack/internal/watch"
)

type packageFlags struct {
	distFolder    string
	packageFolder string
	includeTime   bool
	includeFiles  []string
	keepStaging   bool
	parallel      int
	watch         bool
}

func newPackageCommand(app *App) *cobra.Command {
	pf := &packageFlags{}
	cmd := &cobra.Command{
		Use:     "package [target...]",
		Aliases: []string{"pkg"},
		Short:   "Build deployment archives",
		Long: `Build a deployment archive for each named target (default: "default").

Each target copies its package folder into a fresh staging directory, runs
"npm install --production" there and zips the result into
<dist_folder>/<name>_<version>_<stamp>.zip. Flags override the options of
every target named on the command line.`,
		ValidArgsFunction: func(cmd *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
			cfg, err := app.loadConfig(cmd.Context())
			if err != nil {
				return nil, cobra.ShellCompDirectiveError
			}
			return cfg.TargetNames(), cobra.ShellCompDirectiveNoFileComp
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPackage(cmd.Context(), app, cmd.Flags(), pf, args)
		},
	}

	bindPackageFlags(cmd.Flags(), pf)
	return cmd
}

func bindPackageFlags(f *pflag.FlagSet, pf *packageFlags) {
	f.StringVar(&pf.distFolder, "dist-folder", "", "folder receiving the archive")
	f.StringVar(&pf.packageFolder, "package-folder", "", "project folder containing package.json")
	f.BoolVar(&pf.includeTime, "include-time", true, "stamp the archive name with the local time instead of \"latest\"")
	f.StringArrayVar(&pf.includeFiles, "include-file", nil, "extra glob, relative to the package folder, added to the archive (repeatable)")
	f.BoolVar(&pf.keepStaging, "keep-staging", false, "keep the staging directory when packaging fails")
	f.IntVar(&pf.parallel, "parallel", 0, "number of targets packaged concurrently (default from config)")
	f.BoolVarP(&pf.watch, "watch", "w", false, "repackage whenever the package folder changes")
}

func runPackage(ctx context.Context, app *App, flags *pflag.FlagSet, pf *packageFlags, args []string) error {
	cfg, err := app.loadConfig(ctx)
	if err != nil {
		return interrupted(ctx, err)
	}
	logger := app.newLogger()

	reqs, err := buildRequests(cfg, flags, pf, args)
	if err != nil {
		return err
	}

	tool, err := npm.NewTool(cfg.PackageManager, cfg.InstallArgs, logger.WithPrefix("npm"))
	if err != nil {
		return issue.NewErrorContext().
			WithIssue(issue.ConfigLoadFailedId).
			WithOperation("parse package_manager").
			WithResource(cfg.PackageManager).
			Wrap(err).
			BuildError()
	}

	opts := []packager.Option{
		packager.WithLogger(logger),
		packager.WithReporter(handoff.NewStore()),
		packager.WithStagingDir(app.stagingDir),
	}
	if app.clock != nil {
		opts = append(opts, packager.WithClock(app.clock))
	}
	ready := npm.NewPrecondition(tool, npm.MinimumMajor)
	p := packager.New(ready, tool, opts...)

	parallel := cfg.Parallelism
	if flags.Changed("parallel") {
		parallel = pf.parallel
	}

	results, err := p.RunAll(ctx, reqs, parallel)
	if v := ready.Version(); v != "" {
		logger.Debug("package manager accepted", "command", tool.Name(), "version", v)
	}
	printResults(app.stdout, results)
	if err != nil {
		return interrupted(ctx, err)
	}

	if !pf.watch {
		return nil
	}
	return watchTargets(ctx, app, p, reqs, parallel, logger)
}

// buildRequests resolves every named target and applies the flags the user
// set explicitly.
func buildRequests(cfg *config.Config, flags *pflag.FlagSet, pf *packageFlags, args []string) ([]packager.Request, error) {
	names := args
	if len(names) == 0 {
		names = []string{config.DefaultTargetName}
	}

	reqs := make([]packager.Request, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		key := strings.ToLower(name)
		if seen[key] {
			continue
		}
		seen[key] = true

		target, err := cfg.ResolveTarget(key)
		if err != nil {
			return nil, issue.NewErrorContext().
				WithIssue(issue.ConfigLoadFailedId).
				WithOperation("resolve target").
				WithResource(name).
				WithSuggestion("Run 'lambdapack config show' to list the configured targets").
				Wrap(err).
				BuildError()
		}

		opts := packager.Options{
			DistFolder:           target.DistFolder,
			IncludeTime:          target.IncludeTime,
			PackageFolder:        target.PackageFolder,
			IncludeFiles:         target.IncludeFiles,
			KeepStagingOnFailure: target.KeepStagingOnFailure,
		}
		if flags.Changed("dist-folder") {
			opts.DistFolder = pf.distFolder
		}
		if flags.Changed("package-folder") {
			opts.PackageFolder = pf.packageFolder
		}
		if flags.Changed("include-time") {
			opts.IncludeTime = pf.includeTime
		}
		if flags.Changed("include-file") {
			opts.IncludeFiles = slices.Clone(pf.includeFiles)
		}
		if flags.Changed("keep-staging") {
			opts.KeepStagingOnFailure = pf.keepStaging
		}

		reqs = append(reqs, packager.Request{Target: key, Options: opts})
	}
	return reqs, nil
}

func printResults(w io.Writer, results []packager.Result) {
	for _, res := range results {
		if res.Path == "" {
			continue
		}
		fmt.Fprintf(w, "%s Created package at %s (%s)\n",
			SuccessStyle.Render("✓"), CmdStyle.Render(res.Path), units.HumanSize(float64(res.Size)))
	}
}

// watchTargets watches each distinct package folder and reruns the targets
// built from it. It returns when ctx is cancelled.
func watchTargets(ctx context.Context, app *App, p *packager.Packager, reqs []packager.Request, parallel int, logger *log.Logger) error {
	groups := make(map[string][]packager.Request)
	for _, req := range reqs {
		folder, err := filepath.Abs(req.Options.PackageFolder)
		if err != nil {
			return fmt.Errorf("resolve package folder: %w", err)
		}
		groups[folder] = append(groups[folder], req)
	}

	folders := make([]string, 0, len(groups))
	for folder := range groups {
		folders = append(folders, folder)
	}
	slices.Sort(folders)

	watchers := make([]*watch.Watcher, 0, len(folders))
	for _, folder := range folders {
		group := groups[folder]
		var ignores []string
		for _, req := range group {
			ignores = append(ignores, watch.IgnoreDir(folder, req.Options.DistFolder)...)
		}

		w, err := watch.New(watch.Config{
			BaseDir: folder,
			Ignore:  ignores,
			Logger:  logger.WithPrefix("watch"),
			OnChange: func(ctx context.Context, _ []string) error {
				results, err := p.RunAll(ctx, group, parallel)
				printResults(app.stdout, results)
				return err
			},
		})
		if err != nil {
			for _, built := range watchers {
				if closeErr := built.Close(); closeErr != nil {
					logger.Warn("close watcher", "err", closeErr)
				}
			}
			return err
		}
		watchers = append(watchers, w)
		logger.Info("watching for changes", "folder", folder)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range watchers {
		g.Go(func() error { return w.Run(gctx) })
	}
	return g.Wait()
}
