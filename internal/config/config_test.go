// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lambdapack/lambdapack/internal/issue"
	"github.com/lambdapack/lambdapack/internal/testutil"
)

func TestLoad_DefaultsWhenNoFile(t *testing.T) {
	t.Parallel()

	opts := LoadOptions{BaseDir: t.TempDir(), ConfigDirPath: t.TempDir()}
	if path, err := ResolvePath(opts); err != nil || path != "" {
		t.Errorf("ResolvePath() = %q, %v; want no file", path, err)
	}
	cfg, err := NewProvider().Load(context.Background(), opts)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.PackageManager != "npm" {
		t.Errorf("PackageManager = %q, want npm", cfg.PackageManager)
	}
	if cfg.Parallelism != 1 {
		t.Errorf("Parallelism = %d, want 1", cfg.Parallelism)
	}
	target, err := cfg.ResolveTarget("")
	if err != nil {
		t.Fatalf("ResolveTarget() error = %v", err)
	}
	if target.DistFolder != "dist" || !target.IncludeTime || target.PackageFolder != "./" {
		t.Errorf("default target = %+v", target)
	}
}

func TestLoad_LocalFileWinsOverUserFile(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	cfgDir := t.TempDir()
	testutil.MustWriteFile(t, filepath.Join(base, LocalFileName), "parallelism: 3\n", 0o644)
	testutil.MustWriteFile(t, filepath.Join(cfgDir, "config.cue"), "parallelism: 5\n", 0o644)

	opts := LoadOptions{BaseDir: base, ConfigDirPath: cfgDir}
	cfg, err := NewProvider().Load(context.Background(), opts)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Parallelism != 3 {
		t.Errorf("Parallelism = %d, want 3", cfg.Parallelism)
	}
	if path, _ := ResolvePath(opts); path != filepath.Join(base, LocalFileName) {
		t.Errorf("ResolvePath() = %q", path)
	}
}

func TestLoad_UserFile(t *testing.T) {
	t.Parallel()

	cfgDir := t.TempDir()
	testutil.MustWriteFile(t, filepath.Join(cfgDir, "config.cue"), `package_manager: "corepack npm"`+"\n", 0o644)

	cfg, err := NewProvider().Load(context.Background(), LoadOptions{BaseDir: t.TempDir(), ConfigDirPath: cfgDir})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.PackageManager != "corepack npm" {
		t.Errorf("PackageManager = %q", cfg.PackageManager)
	}
}

func TestLoad_ExplicitFile(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	testutil.MustWriteFile(t, filepath.Join(base, LocalFileName), "parallelism: 3\n", 0o644)
	explicit := filepath.Join(t.TempDir(), "ci.cue")
	testutil.MustWriteFile(t, explicit, "parallelism: 8\n", 0o644)

	cfg, err := NewProvider().Load(context.Background(), LoadOptions{ConfigFilePath: explicit, BaseDir: base})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Parallelism != 8 {
		t.Errorf("Parallelism = %d, want 8 from the explicit file", cfg.Parallelism)
	}
}

func TestLoad_ExplicitFileMissing(t *testing.T) {
	t.Parallel()

	_, err := NewProvider().Load(context.Background(), LoadOptions{
		ConfigFilePath: filepath.Join(t.TempDir(), "missing.cue"),
	})
	if err == nil {
		t.Fatal("Load() should fail for a missing explicit file")
	}
	if issue.IdOf(err) != issue.ConfigLoadFailedId {
		t.Errorf("IdOf() = %v, want ConfigLoadFailedId", issue.IdOf(err))
	}
}

func TestLoad_Targets(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	testutil.MustWriteFile(t, filepath.Join(base, LocalFileName), `
defaults: {
	dist_folder: "build"
	include_files: ["config/*.json"]
}
targets: {
	Prod: {
		include_time: false
		package_folder: "services/api"
	}
	staging: {
		dist_folder: "out/staging"
		include_files: []
	}
}
`, 0o644)

	cfg, err := NewProvider().Load(context.Background(), LoadOptions{BaseDir: base, ConfigDirPath: t.TempDir()})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if got := cfg.TargetNames(); strings.Join(got, ",") != "prod,staging" {
		t.Errorf("TargetNames() = %v", got)
	}

	prod, err := cfg.ResolveTarget("PROD")
	if err != nil {
		t.Fatalf("ResolveTarget(PROD) error = %v", err)
	}
	want := Target{
		DistFolder:    "build",
		IncludeTime:   false,
		PackageFolder: "services/api",
		IncludeFiles:  []string{"config/*.json"},
	}
	if prod.DistFolder != want.DistFolder || prod.IncludeTime != want.IncludeTime ||
		prod.PackageFolder != want.PackageFolder || strings.Join(prod.IncludeFiles, ",") != "config/*.json" {
		t.Errorf("prod = %+v, want %+v", prod, want)
	}

	staging, err := cfg.ResolveTarget("staging")
	if err != nil {
		t.Fatalf("ResolveTarget(staging) error = %v", err)
	}
	if staging.DistFolder != "out/staging" || !staging.IncludeTime || len(staging.IncludeFiles) != 0 {
		t.Errorf("staging = %+v", staging)
	}

	if _, err := cfg.ResolveTarget("qa"); !errors.Is(err, ErrUnknownTarget) {
		t.Errorf("ResolveTarget(qa) error = %v, want ErrUnknownTarget", err)
	}
}

func TestLoad_SchemaViolation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		wantMsg string
	}{
		{"wrong type", "parallelism: \"two\"\n", "parallelism"},
		{"below minimum", "parallelism: 0\n", "parallelism"},
		{"unknown field", "mystery: true\n", "mystery"},
		{"bad color scheme", "ui: color_scheme: \"neon\"\n", "ui.color_scheme"},
		{"empty dist folder", "targets: prod: dist_folder: \"\"\n", "targets.prod.dist_folder"},
		{"syntax", "parallelism: [\n", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			base := t.TempDir()
			testutil.MustWriteFile(t, filepath.Join(base, LocalFileName), tt.content, 0o644)

			_, err := NewProvider().Load(context.Background(), LoadOptions{BaseDir: base, ConfigDirPath: t.TempDir()})
			if err == nil {
				t.Fatal("Load() should fail")
			}
			if issue.IdOf(err) != issue.ConfigLoadFailedId {
				t.Errorf("IdOf() = %v, want ConfigLoadFailedId", issue.IdOf(err))
			}
			if tt.wantMsg != "" && !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q should mention %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

//nolint:paralleltest // t.Setenv
func TestLoad_EnvironmentOverrides(t *testing.T) {
	base := t.TempDir()
	testutil.MustWriteFile(t, filepath.Join(base, LocalFileName), "parallelism: 3\n", 0o644)
	t.Setenv("LAMBDAPACK_PARALLELISM", "6")
	t.Setenv("LAMBDAPACK_DEFAULTS_DIST_FOLDER", "artifacts")
	t.Setenv("LAMBDAPACK_DEFAULTS_INCLUDE_TIME", "false")

	cfg, err := NewProvider().Load(context.Background(), LoadOptions{BaseDir: base, ConfigDirPath: t.TempDir()})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Parallelism != 6 {
		t.Errorf("Parallelism = %d, want 6", cfg.Parallelism)
	}
	if cfg.Defaults.DistFolder != "artifacts" {
		t.Errorf("Defaults.DistFolder = %q", cfg.Defaults.DistFolder)
	}
	if cfg.Defaults.IncludeTime {
		t.Error("Defaults.IncludeTime should be overridden to false")
	}
}

//nolint:paralleltest // t.Setenv
func TestLoad_InvalidEnvironmentOverride(t *testing.T) {
	t.Setenv("LAMBDAPACK_UI_COLOR_SCHEME", "neon")

	_, err := NewProvider().Load(context.Background(), LoadOptions{BaseDir: t.TempDir(), ConfigDirPath: t.TempDir()})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("Load() error = %v, want ErrInvalidConfig", err)
	}
}

func TestLoad_Canceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewProvider().Load(ctx, LoadOptions{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Load() error = %v, want context.Canceled", err)
	}
}

func TestGenerateCUE_RoundTrip(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.InstallArgs = []string{"--no-audit"}
	prod := "out/prod"
	off := false
	cfg.Targets["prod"] = TargetOverride{DistFolder: &prod, IncludeTime: &off, IncludeFiles: []string{"*.json"}}

	path := filepath.Join(t.TempDir(), "nested", "config.cue")
	written, err := WriteFile(path, cfg, false)
	if err != nil || !written {
		t.Fatalf("WriteFile() = %v, %v", written, err)
	}

	loaded, err := NewProvider().Load(context.Background(), LoadOptions{ConfigFilePath: path})
	if err != nil {
		t.Fatalf("Load() of generated file error = %v\n%s", err, GenerateCUE(cfg))
	}
	target, err := loaded.ResolveTarget("prod")
	if err != nil {
		t.Fatalf("ResolveTarget() error = %v", err)
	}
	if target.DistFolder != prod || target.IncludeTime || strings.Join(target.IncludeFiles, ",") != "*.json" {
		t.Errorf("prod = %+v", target)
	}
	if strings.Join(loaded.InstallArgs, " ") != "--no-audit" {
		t.Errorf("InstallArgs = %v", loaded.InstallArgs)
	}
}

func TestWriteFile_KeepsExisting(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.cue")
	testutil.MustWriteFile(t, path, "parallelism: 4\n", 0o644)

	written, err := WriteFile(path, DefaultConfig(), false)
	if err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if written {
		t.Error("WriteFile() should not overwrite without the flag")
	}
	if written, _ = WriteFile(path, DefaultConfig(), true); !written {
		t.Error("WriteFile(overwrite) should replace the file")
	}
}

func TestConfig_IsValid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		valid  bool
	}{
		{"defaults", func(*Config) {}, true},
		{"blank package manager", func(c *Config) { c.PackageManager = "  " }, false},
		{"zero parallelism", func(c *Config) { c.Parallelism = 0 }, false},
		{"bad color scheme", func(c *Config) { c.UI.ColorScheme = "neon" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			tt.mutate(cfg)
			valid, errs := cfg.IsValid()
			if valid != tt.valid {
				t.Fatalf("IsValid() = %v, %v; want %v", valid, errs, tt.valid)
			}
			if !valid && !errors.Is(errs[0], ErrInvalidConfig) {
				t.Errorf("error %v should wrap ErrInvalidConfig", errs[0])
			}
		})
	}
}

func TestFormatPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   []string
		want string
	}{
		{nil, ""},
		{[]string{"parallelism"}, "parallelism"},
		{[]string{"targets", "prod", "include_files", "0"}, "targets.prod.include_files[0]"},
		{[]string{"0"}, "0"},
	}
	for _, tt := range tests {
		if got := formatPath(tt.in); got != tt.want {
			t.Errorf("formatPath(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

//nolint:paralleltest // changes the user config directory
func TestLoad_UserConfigDir(t *testing.T) {
	t.Cleanup(testutil.SetConfigDir(t, t.TempDir()))

	dir, err := ConfigDir()
	if err != nil {
		t.Fatalf("ConfigDir() error = %v", err)
	}
	if filepath.Base(dir) != AppName {
		t.Errorf("ConfigDir() = %q, want a %s directory", dir, AppName)
	}
	testutil.MustWriteFile(t, filepath.Join(dir, "config.cue"), "parallelism: 9\n", 0o644)

	cfg, err := NewProvider().Load(context.Background(), LoadOptions{BaseDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Parallelism != 9 {
		t.Errorf("Parallelism = %d, want 9 from the user config file", cfg.Parallelism)
	}
}
