// SPDX-License-Identifier: MPL-2.0

package packager

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/lambdapack/lambdapack/internal/archive"
	"github.com/lambdapack/lambdapack/internal/issue"
	"github.com/lambdapack/lambdapack/internal/staging"
	"github.com/lambdapack/lambdapack/pkg/manifest"
)

type (
	// ReadinessChecker verifies the package manager before any staging.
	ReadinessChecker interface {
		EnsureReady(ctx context.Context) error
	}

	// Installer installs production dependencies inside dir.
	Installer interface {
		Install(ctx context.Context, dir string) error
	}

	// Reporter hands the published path over to the deployment step.
	Reporter interface {
		Record(distFolder, target, artifactPath string, at time.Time) error
	}

	// Clock supplies the time used in artifact names.
	Clock interface {
		Now() time.Time
	}

	// Result describes a published artifact.
	Result struct {
		Target string
		// Name is the artifact name without the .zip extension.
		Name string
		// Path is the archive location inside the dist folder.
		Path  string
		Size  int64
		Stats archive.Stats
		// PackagedAt is the clock reading the name was derived from.
		PackagedAt time.Time
	}

	// Packager runs packaging pipelines. It is safe for concurrent use.
	Packager struct {
		ready      ReadinessChecker
		installer  Installer
		builder    *archive.Builder
		publisher  *Publisher
		reporter   Reporter
		clock      Clock
		logger     *log.Logger
		stagingDir string
	}

	// Option configures a Packager.
	Option func(*Packager)

	systemClock struct{}
)

func (systemClock) Now() time.Time { return time.Now() }

// WithClock overrides the wall clock.
func WithClock(c Clock) Option { return func(p *Packager) { p.clock = c } }

// WithLogger sets the logger; runs log with a "target" key.
func WithLogger(l *log.Logger) Option { return func(p *Packager) { p.logger = l } }

// WithReporter records every published artifact.
func WithReporter(r Reporter) Option { return func(p *Packager) { p.reporter = r } }

// WithStagingDir sets the parent of staging areas (default os.TempDir()).
func WithStagingDir(dir string) Option { return func(p *Packager) { p.stagingDir = dir } }

// New returns a Packager. ready is consulted before every run; an
// implementation that remembers success makes the check run once.
func New(ready ReadinessChecker, installer Installer, opts ...Option) *Packager {
	p := &Packager{
		ready:     ready,
		installer: installer,
		clock:     systemClock{},
		publisher: NewPublisher(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = log.New(io.Discard)
	}
	p.builder = archive.NewBuilder(p.logger.WithPrefix("archive"))
	return p
}

// Run packages one target.
func (p *Packager) Run(ctx context.Context, req Request) (res Result, err error) {
	opts := req.Options
	target := req.Target
	if target == "" {
		target = DefaultTarget
	}
	logger := p.logger.With("target", target)

	if err := opts.Validate(); err != nil {
		return Result{}, issue.NewErrorContext().
			WithIssue(issue.ConfigLoadFailedId).
			WithOperation("validate options").
			WithResource(target).
			Wrap(err).
			BuildError()
	}

	if err := p.ready.EnsureReady(ctx); err != nil {
		return Result{}, issue.NewErrorContext().
			WithIssue(issue.PreconditionUnmetId).
			WithOperation("verify package manager").
			WithSuggestion("install npm 3 or newer, or set package_manager in the configuration").
			Wrap(err).
			BuildError()
	}

	m, err := manifest.LoadAndRewrite(opts.PackageFolder)
	if err != nil {
		id := issue.ManifestInvalidId
		if errors.Is(err, manifest.ErrManifestNotFound) {
			id = issue.ManifestNotFoundId
		}
		return Result{}, issue.WrapWithContext(err, id, "load manifest", filepath.Join(opts.PackageFolder, manifest.FileName))
	}

	now := p.clock.Now()
	name := ArtifactName(m.Name, m.Version, opts.IncludeTime, now)
	logger.Debug("resolved manifest", "path", m.Path(), "name", m.Name, "version", m.Version, "artifact", name)
	if local := m.LocalDependencies(); len(local) > 0 {
		logger.Debug("rewrote local dependencies", "deps", local)
	}

	area, err := staging.Create(p.stagingDir)
	if err != nil {
		return Result{}, issue.WrapWithContext(err, issue.StagingFailedId, "create staging area", p.stagingDir)
	}
	defer func() {
		if err != nil {
			p.cleanupAfterFailure(logger, area, opts.KeepStagingOnFailure)
		}
	}()
	logger.Debug("staging", "root", area.Root)

	if err = area.Populate(opts.PackageFolder, opts.DistFolder); err != nil {
		return Result{}, issue.WrapWithContext(err, issue.StagingFailedId, "copy package folder", opts.PackageFolder)
	}
	if m.HasDependencies() {
		if err = area.WriteManifest(m); err != nil {
			return Result{}, issue.WrapWithContext(err, issue.StagingFailedId, "write staged manifest", area.InstallRoot)
		}
	}

	logger.Info("installing production dependencies")
	if err = p.installer.Install(ctx, area.InstallRoot); err != nil {
		return Result{}, issue.NewErrorContext().
			WithIssue(issue.InstallFailedId).
			WithOperation("install dependencies").
			WithResource(area.InstallRoot).
			WithSuggestion("re-run with --keep-staging to inspect the staged copy").
			Wrap(err).
			BuildError()
	}

	var includes []archive.Include
	if len(opts.IncludeFiles) > 0 {
		includes = append(includes, archive.Include{BaseDir: opts.PackageFolder, Patterns: opts.IncludeFiles})
	}
	intermediate := area.ArchivePath(name)
	stats, err := p.builder.Build(ctx, area.InstallRoot, includes, intermediate)
	if err != nil {
		return Result{}, issue.WrapWithContext(err, issue.ArchiveFailedId, "build archive", intermediate)
	}

	path, size, err := p.publisher.Publish(intermediate, opts.DistFolder, name, area.Destroy)
	if err != nil {
		if errors.Is(err, staging.ErrStaging) {
			return Result{}, issue.WrapWithContext(err, issue.StagingFailedId, "remove staging area", area.Root)
		}
		return Result{}, issue.WrapWithContext(err, issue.PublishFailedId, "publish artifact", opts.DistFolder)
	}

	res = Result{
		Target:     target,
		Name:       name,
		Path:       path,
		Size:       size,
		Stats:      stats,
		PackagedAt: now,
	}

	if p.reporter != nil {
		if err = p.reporter.Record(opts.DistFolder, target, path, now); err != nil {
			return Result{}, issue.WrapWithContext(err, issue.PublishFailedId, "record handoff", opts.DistFolder)
		}
	}

	logger.Info("Created package", "path", path)
	return res, nil
}

func (p *Packager) cleanupAfterFailure(logger *log.Logger, area *staging.Area, keep bool) {
	if area.Destroyed() {
		return
	}
	if keep {
		logger.Warn("keeping staging area for inspection", "path", area.Root)
		return
	}
	if err := area.Destroy(); err != nil {
		logger.Warn("failed to remove staging area", "path", area.Root, "err", err)
	}
}

// RunAll packages independent targets concurrently, at most parallelism at a
// time (values below 1 mean 1). Results are returned in request order. The
// first failure cancels the runs that are still pending.
func (p *Packager) RunAll(ctx context.Context, reqs []Request, parallelism int) ([]Result, error) {
	if parallelism < 1 {
		parallelism = 1
	}

	results := make([]Result, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)

	for i, req := range reqs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := p.Run(gctx, req)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}
