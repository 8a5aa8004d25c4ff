// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/fang"
	"github.com/spf13/pflag"

	"github.com/lambdapack/lambdapack/internal/config"
	"github.com/lambdapack/lambdapack/internal/handoff"
	"github.com/lambdapack/lambdapack/internal/issue"
	"github.com/lambdapack/lambdapack/internal/packager"
	"github.com/lambdapack/lambdapack/internal/testutil"
	"github.com/lambdapack/lambdapack/internal/watch"
)

type staticConfig struct {
	cfg *config.Config
	err error
}

func (s staticConfig) Load(context.Context, config.LoadOptions) (*config.Config, error) {
	return s.cfg, s.err
}

type harness struct {
	app    *App
	stdout *bytes.Buffer
	stderr *bytes.Buffer
}

func newHarness(t *testing.T, provider ConfigProvider) *harness {
	t.Helper()
	h := &harness{stdout: &bytes.Buffer{}, stderr: &bytes.Buffer{}}
	h.app = NewApp(Dependencies{
		Config:     provider,
		Stdout:     h.stdout,
		Stderr:     h.stderr,
		Clock:      testutil.NewFakeClock(time.Time{}),
		StagingDir: t.TempDir(),
		ConfigDir:  t.TempDir(),
	})
	return h
}

func (h *harness) run(args ...string) error {
	root := NewRootCommand(h.app)
	root.SetArgs(args)
	root.SetOut(h.stdout)
	root.SetErr(h.stderr)
	return root.ExecuteContext(context.Background())
}

// project writes a package and a config pointing at it with a fake npm.
func project(t *testing.T, opts testutil.FakeNpmOptions) (*config.Config, string) {
	t.Helper()
	fake := testutil.WriteFakeNpm(t, t.TempDir(), opts)
	pkg := t.TempDir()
	testutil.WritePackage(t, pkg, "demo", "1.0.0", map[string]string{"left-pad": "^1.3.0"})

	cfg := config.DefaultConfig()
	cfg.PackageManager = fake.Path
	cfg.Defaults.PackageFolder = pkg
	cfg.Defaults.DistFolder = filepath.Join(t.TempDir(), "dist")
	cfg.Defaults.IncludeTime = false
	return cfg, pkg
}

func TestPackage_DefaultTarget(t *testing.T) {
	t.Parallel()

	cfg, _ := project(t, testutil.FakeNpmOptions{})
	h := newHarness(t, staticConfig{cfg: cfg})

	if err := h.run("package"); err != nil {
		t.Fatalf("package error = %v\nstderr:\n%s", err, h.stderr)
	}

	want := filepath.Join(cfg.Defaults.DistFolder, "demo_1-0-0_latest.zip")
	if !strings.Contains(h.stdout.String(), "Created package at "+want) {
		t.Errorf("stdout = %q, want created line for %s", h.stdout, want)
	}
	if _, err := os.Stat(want); err != nil {
		t.Errorf("archive missing: %v", err)
	}

	record, err := handoff.Read(cfg.Defaults.DistFolder)
	if err != nil {
		t.Fatalf("handoff.Read() error = %v", err)
	}
	if got, ok := record.Package("default"); !ok || got != filepath.ToSlash(want) {
		t.Errorf("handoff package = %q, %v", got, ok)
	}
	if entries := testutil.ListDir(t, h.app.stagingDir); len(entries) != 0 {
		t.Errorf("staging leftovers: %v", entries)
	}
}

func TestPackage_FlagsOverrideTarget(t *testing.T) {
	t.Parallel()

	cfg, _ := project(t, testutil.FakeNpmOptions{})
	h := newHarness(t, staticConfig{cfg: cfg})
	dist := filepath.Join(t.TempDir(), "elsewhere")

	if err := h.run("pkg", "--dist-folder", dist, "--include-time"); err != nil {
		t.Fatalf("pkg error = %v", err)
	}
	entries := testutil.ListDir(t, dist)
	var zips []string
	for _, e := range entries {
		if strings.HasSuffix(e, ".zip") {
			zips = append(zips, e)
		}
	}
	if len(zips) != 1 || !strings.HasPrefix(zips[0], "demo_1-0-0_2020-01-01-") {
		t.Errorf("dist entries = %v, want one timestamped archive", entries)
	}
}

func TestPackage_NamedTargets(t *testing.T) {
	t.Parallel()

	cfg, _ := project(t, testutil.FakeNpmOptions{})
	prodDist := filepath.Join(t.TempDir(), "prod")
	cfg.Targets["prod"] = config.TargetOverride{DistFolder: &prodDist}
	cfg.Parallelism = 2
	h := newHarness(t, staticConfig{cfg: cfg})

	if err := h.run("package", "default", "PROD", "prod"); err != nil {
		t.Fatalf("package error = %v", err)
	}
	if n := strings.Count(h.stdout.String(), "Created package at"); n != 2 {
		t.Errorf("created %d packages, want 2 (duplicates collapse):\n%s", n, h.stdout)
	}
	if _, err := os.Stat(filepath.Join(prodDist, "demo_1-0-0_latest.zip")); err != nil {
		t.Errorf("prod archive missing: %v", err)
	}
}

func TestPackage_UnknownTarget(t *testing.T) {
	t.Parallel()

	cfg, _ := project(t, testutil.FakeNpmOptions{})
	h := newHarness(t, staticConfig{cfg: cfg})

	err := h.run("package", "qa")
	if !errors.Is(err, config.ErrUnknownTarget) {
		t.Fatalf("error = %v, want ErrUnknownTarget", err)
	}
	if issue.IdOf(err) != issue.ConfigLoadFailedId {
		t.Errorf("IdOf() = %v", issue.IdOf(err))
	}
}

func TestPackage_InstallFailureKeepsDistEmpty(t *testing.T) {
	t.Parallel()

	cfg, _ := project(t, testutil.FakeNpmOptions{InstallExit: 1})
	h := newHarness(t, staticConfig{cfg: cfg})

	err := h.run("package")
	if issue.IdOf(err) != issue.InstallFailedId {
		t.Fatalf("IdOf(%v) = %v, want InstallFailedId", err, issue.IdOf(err))
	}
	if entries := testutil.ListDir(t, cfg.Defaults.DistFolder); len(entries) != 0 {
		t.Errorf("dist entries = %v, want none", entries)
	}
	if strings.Contains(h.stdout.String(), "Created package") {
		t.Errorf("stdout = %q", h.stdout)
	}
}

func TestPackage_OldNpm(t *testing.T) {
	t.Parallel()

	cfg, _ := project(t, testutil.FakeNpmOptions{Version: "2.15.12"})
	h := newHarness(t, staticConfig{cfg: cfg})

	err := h.run("package")
	if issue.IdOf(err) != issue.PreconditionUnmetId {
		t.Fatalf("IdOf(%v) = %v, want PreconditionUnmetId", err, issue.IdOf(err))
	}
	if entries := testutil.ListDir(t, h.app.stagingDir); len(entries) != 0 {
		t.Errorf("staging created before the precondition: %v", entries)
	}
}

func TestPackage_ConfigError(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")
	h := newHarness(t, staticConfig{err: cause})
	if err := h.run("package"); !errors.Is(err, cause) {
		t.Errorf("error = %v, want config error", err)
	}
}

func TestRenderError(t *testing.T) {
	t.Parallel()

	err := issue.NewErrorContext().
		WithIssue(issue.InstallFailedId).
		WithOperation("install dependencies").
		WithResource("/tmp/lambdapack-1/pkg").
		WithSuggestion("re-run with --keep-staging").
		Wrap(errors.New("exit status 1")).
		BuildError()

	cfg := config.DefaultConfig()
	cfg.UI.ColorScheme = config.ColorSchemeDark

	t.Run("quiet", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, staticConfig{cfg: cfg})
		var out bytes.Buffer
		h.app.renderError(&out, fang.Styles{}, err)
		if !strings.Contains(out.String(), "re-run with --keep-staging") {
			t.Errorf("output = %q, want suggestion", out.String())
		}
		if strings.Contains(out.String(), "Kind:") {
			t.Errorf("quiet output should not include the kind")
		}
	})

	t.Run("verbose", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, staticConfig{cfg: cfg})
		h.app.verbose = true
		if _, loadErr := h.app.loadConfig(context.Background()); loadErr != nil {
			t.Fatal(loadErr)
		}
		var out bytes.Buffer
		h.app.renderError(&out, fang.Styles{}, err)
		got := out.String()
		if !strings.Contains(got, "Kind: SubprocessError") {
			t.Errorf("output = %q, want kind", got)
		}
		if !strings.Contains(got, "Error chain:") {
			t.Errorf("output = %q, want error chain", got)
		}
	})

	t.Run("bare exit", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, staticConfig{cfg: cfg})
		var out bytes.Buffer
		h.app.renderError(&out, fang.Styles{}, &ExitError{Code: 2})
		if out.Len() != 0 {
			t.Errorf("output = %q, want nothing", out.String())
		}
	})
}

func TestVersion(t *testing.T) {
	t.Parallel()

	h := newHarness(t, staticConfig{cfg: config.DefaultConfig()})
	if err := h.run("version"); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(h.stdout.String(), "lambdapack dev (built from source)") {
		t.Errorf("stdout = %q", h.stdout)
	}
}

func TestConfigCommands(t *testing.T) {
	t.Parallel()

	file := filepath.Join(t.TempDir(), "ci.cue")
	testutil.MustWriteFile(t, file, `
parallelism: 2
targets: prod: { dist_folder: "out/prod", include_time: false }
`, 0o644)

	t.Run("show", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, nil)
		if err := h.run("--config", file, "config", "show"); err != nil {
			t.Fatal(err)
		}
		out := h.stdout.String()
		for _, want := range []string{"Config file: " + file, "parallelism: 2", "target default:", "target prod:", "dist_folder: out/prod"} {
			if !strings.Contains(out, want) {
				t.Errorf("show output missing %q:\n%s", want, out)
			}
		}
	})

	t.Run("dump", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, nil)
		if err := h.run("--config", file, "config", "dump"); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(h.stdout.String(), `"prod": {`) {
			t.Errorf("dump output:\n%s", h.stdout)
		}
	})

	t.Run("init", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, nil)
		if err := h.run("config", "init"); err != nil {
			t.Fatal(err)
		}
		path := filepath.Join(h.app.configDir, "config.cue")
		if !strings.Contains(h.stdout.String(), "Created default configuration at "+path) {
			t.Errorf("stdout = %q", h.stdout)
		}

		h.stdout.Reset()
		if err := h.run("config", "init"); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(h.stdout.String(), "already exists") {
			t.Errorf("second init stdout = %q", h.stdout)
		}
	})
}

func TestBuildRequests(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	prod := "out/prod"
	cfg.Targets["prod"] = config.TargetOverride{DistFolder: &prod, IncludeFiles: []string{"*.json"}}

	tests := []struct {
		name  string
		flags []string
		args  []string
		check func(t *testing.T, reqs []packager.Request)
	}{
		{
			name: "defaults",
			check: func(t *testing.T, reqs []packager.Request) {
				if len(reqs) != 1 || reqs[0].Target != "default" || reqs[0].Options.DistFolder != "dist" {
					t.Errorf("reqs = %+v", reqs)
				}
			},
		},
		{
			name: "target block",
			args: []string{"Prod"},
			check: func(t *testing.T, reqs []packager.Request) {
				o := reqs[0].Options
				if reqs[0].Target != "prod" || o.DistFolder != prod || o.IncludeFiles[0] != "*.json" || !o.IncludeTime {
					t.Errorf("reqs = %+v", reqs)
				}
			},
		},
		{
			name:  "flags win",
			flags: []string{"--include-time=false", "--include-file", "a.txt", "--include-file", "b/**", "--keep-staging", "--package-folder", "svc"},
			args:  []string{"prod"},
			check: func(t *testing.T, reqs []packager.Request) {
				o := reqs[0].Options
				if o.IncludeTime || !o.KeepStagingOnFailure || o.PackageFolder != "svc" || strings.Join(o.IncludeFiles, ",") != "a.txt,b/**" {
					t.Errorf("options = %+v", o)
				}
				if o.DistFolder != prod {
					t.Errorf("DistFolder = %q, unset flags must not override", o.DistFolder)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			pf := &packageFlags{}
			flags := pflag.NewFlagSet("package", pflag.ContinueOnError)
			bindPackageFlags(flags, pf)
			if err := flags.Parse(tt.flags); err != nil {
				t.Fatal(err)
			}

			reqs, err := buildRequests(cfg, flags, pf, tt.args)
			if err != nil {
				t.Fatalf("buildRequests() error = %v", err)
			}
			tt.check(t, reqs)
		})
	}
}

func TestPackage_Interrupted(t *testing.T) {
	t.Parallel()

	cfg, _ := project(t, testutil.FakeNpmOptions{})
	h := newHarness(t, staticConfig{cfg: cfg})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	root := NewRootCommand(h.app)
	root.SetArgs([]string{"package"})
	root.SetOut(h.stdout)
	root.SetErr(h.stderr)
	err := root.ExecuteContext(ctx)

	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("package error = %v, want *ExitError", err)
	}
	if exitErr.Code != ExitInterrupted {
		t.Errorf("Code = %d, want %d", exitErr.Code, ExitInterrupted)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error should wrap context.Canceled: %v", err)
	}
	if _, statErr := os.Stat(cfg.Defaults.DistFolder); !os.IsNotExist(statErr) {
		t.Errorf("dist folder created by an interrupted run: %v", statErr)
	}
}

func TestWatchTargets_SetupFailure(t *testing.T) {
	t.Parallel()

	first := t.TempDir()
	second := t.TempDir()
	reqs := []packager.Request{
		{Target: "a", Options: packager.Options{PackageFolder: first, DistFolder: filepath.Join(first, "dist")}},
		{Target: "b", Options: packager.Options{PackageFolder: second, DistFolder: filepath.Join(second, "out[")}},
	}

	h := newHarness(t, staticConfig{cfg: config.DefaultConfig()})
	p := packager.New(nil, nil)
	err := watchTargets(context.Background(), h.app, p, reqs, 1, h.app.newLogger())
	if !errors.Is(err, watch.ErrInvalidPattern) {
		t.Fatalf("watchTargets() error = %v, want ErrInvalidPattern", err)
	}
}

func TestPackage_VerboseLogsPackageManager(t *testing.T) {
	t.Parallel()

	cfg, _ := project(t, testutil.FakeNpmOptions{Version: "9.8.1"})
	h := newHarness(t, staticConfig{cfg: cfg})

	if err := h.run("package", "--verbose"); err != nil {
		t.Fatalf("package error = %v\nstderr:\n%s", err, h.stderr)
	}
	if !strings.Contains(h.stderr.String(), "package manager accepted") || !strings.Contains(h.stderr.String(), "9.8.1") {
		t.Errorf("accepted package manager version not logged, stderr:\n%s", h.stderr)
	}
}
