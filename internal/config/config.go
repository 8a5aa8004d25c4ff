// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/spf13/viper"

	"github.com/lambdapack/lambdapack/internal/issue"
)

const (
	// AppName is the application name.
	AppName = "lambdapack"
	// ConfigFileName is the name of the user config file (without extension).
	ConfigFileName = "config"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "cue"
	// LocalFileName is the project-local config file.
	LocalFileName = AppName + "." + ConfigFileExt
	// EnvPrefix prefixes environment overrides (LAMBDAPACK_PARALLELISM).
	EnvPrefix = "LAMBDAPACK"

	// maxFileSize bounds config files read into memory.
	maxFileSize = 1 << 20
)

//go:embed config_schema.cue
var configSchema string

// ConfigDir returns the lambdapack directory inside the user configuration
// directory (os.UserConfigDir).
//
//nolint:revive // ConfigDir is more descriptive than Dir for external callers
func ConfigDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(dir, AppName), nil
}

// UserConfigPath returns the path of the user-level config file.
func UserConfigPath(configDirPath string) (string, error) {
	dir, err := configDirWithOverride(configDirPath)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ConfigFileName+"."+ConfigFileExt), nil
}

func loadWithOptions(ctx context.Context, opts LoadOptions) (*Config, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("package_manager", defaults.PackageManager)
	v.SetDefault("install_args", defaults.InstallArgs)
	v.SetDefault("parallelism", defaults.Parallelism)
	v.SetDefault("ui.verbose", defaults.UI.Verbose)
	v.SetDefault("ui.color_scheme", defaults.UI.ColorScheme)
	v.SetDefault("defaults.dist_folder", defaults.Defaults.DistFolder)
	v.SetDefault("defaults.include_time", defaults.Defaults.IncludeTime)
	v.SetDefault("defaults.package_folder", defaults.Defaults.PackageFolder)
	v.SetDefault("defaults.include_files", defaults.Defaults.IncludeFiles)
	v.SetDefault("defaults.keep_staging_on_failure", defaults.Defaults.KeepStagingOnFailure)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	resolvedPath, err := findConfigFile(opts)
	if err != nil {
		return nil, err
	}
	if resolvedPath != "" {
		if err := loadCUEIntoViper(v, resolvedPath); err != nil {
			return nil, issue.NewErrorContext().
				WithIssue(issue.ConfigLoadFailedId).
				WithOperation("load configuration").
				WithResource(resolvedPath).
				WithSuggestion("Check that the file contains valid CUE syntax").
				WithSuggestion("Verify the configuration values match the expected schema").
				WithSuggestion("Use 'lambdapack config dump' to see the default configuration").
				Wrap(err).
				BuildError()
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Targets == nil {
		cfg.Targets = map[string]TargetOverride{}
	}

	if valid, errs := cfg.IsValid(); !valid {
		return nil, issue.NewErrorContext().
			WithIssue(issue.ConfigLoadFailedId).
			WithOperation("validate configuration").
			WithResource(resolvedPath).
			WithSuggestion("Check LAMBDAPACK_* environment variables").
			Wrap(errs[0]).
			BuildError()
	}

	return &cfg, nil
}

// findConfigFile applies the lookup order: explicit file, project-local
// lambdapack.cue, user config file.
func findConfigFile(opts LoadOptions) (string, error) {
	if opts.ConfigFilePath != "" {
		if !fileExists(opts.ConfigFilePath) {
			return "", issue.NewErrorContext().
				WithIssue(issue.ConfigLoadFailedId).
				WithOperation("load configuration").
				WithResource(opts.ConfigFilePath).
				WithSuggestion("Verify the file path is correct").
				WithSuggestion("Use 'lambdapack config init' to create a configuration file").
				Wrap(fmt.Errorf("config file not found: %s", opts.ConfigFilePath)).
				BuildError()
		}
		return opts.ConfigFilePath, nil
	}

	local := filepath.Join(opts.BaseDir, LocalFileName)
	if fileExists(local) {
		return local, nil
	}

	user, err := UserConfigPath(opts.ConfigDirPath)
	if err != nil {
		// No resolvable user config directory: defaults only.
		return "", nil //nolint:nilerr
	}
	if fileExists(user) {
		return user, nil
	}
	return "", nil
}

// configDirWithOverride resolves the configuration directory, honoring
// explicit provider options before platform defaults.
func configDirWithOverride(configDirPath string) (string, error) {
	if configDirPath != "" {
		return configDirPath, nil
	}
	return ConfigDir()
}

// loadCUEIntoViper parses a CUE file, validates it against the #Config schema,
// and merges its contents into Viper.
func loadCUEIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if len(data) > maxFileSize {
		return fmt.Errorf("%s: file size %d bytes exceeds maximum %d bytes", path, len(data), maxFileSize)
	}

	ctx := cuecontext.New()

	schemaValue := ctx.CompileString(configSchema)
	if schemaValue.Err() != nil {
		return fmt.Errorf("internal error: failed to compile config schema: %w", schemaValue.Err())
	}

	userValue := ctx.CompileBytes(data, cue.Filename(path))
	if userValue.Err() != nil {
		return formatCUEError(userValue.Err(), path)
	}

	schema := schemaValue.LookupPath(cue.ParsePath("#Config"))
	unified := schema.Unify(userValue)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return formatCUEError(err, path)
	}

	var configMap map[string]any
	if err := unified.Decode(&configMap); err != nil {
		return formatCUEError(err, path)
	}

	// Merge into Viper (preserves defaults, allows env overrides)
	if err := v.MergeConfigMap(configMap); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}
	return nil
}

// fileExists checks if a file exists and is not a directory
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// WriteFile writes cfg as CUE to path, creating parent directories. An
// existing file is left alone unless overwrite is set; the returned bool
// reports whether the file was written.
func WriteFile(path string, cfg *Config, overwrite bool) (bool, error) {
	if !overwrite && fileExists(path) {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(GenerateCUE(cfg)), 0o644); err != nil {
		return false, fmt.Errorf("failed to write config file: %w", err)
	}
	return true, nil
}

// GenerateCUE generates a CUE representation of the configuration
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder

	sb.WriteString("// lambdapack configuration\n\n")
	fmt.Fprintf(&sb, "package_manager: %q\n", cfg.PackageManager)
	if len(cfg.InstallArgs) > 0 {
		fmt.Fprintf(&sb, "install_args: %s\n", cueList(cfg.InstallArgs))
	}
	fmt.Fprintf(&sb, "parallelism: %d\n", cfg.Parallelism)

	sb.WriteString("\nui: {\n")
	fmt.Fprintf(&sb, "\tverbose: %v\n", cfg.UI.Verbose)
	fmt.Fprintf(&sb, "\tcolor_scheme: %q\n", cfg.UI.ColorScheme)
	sb.WriteString("}\n")

	sb.WriteString("\ndefaults: {\n")
	fmt.Fprintf(&sb, "\tdist_folder: %q\n", cfg.Defaults.DistFolder)
	fmt.Fprintf(&sb, "\tinclude_time: %v\n", cfg.Defaults.IncludeTime)
	fmt.Fprintf(&sb, "\tpackage_folder: %q\n", cfg.Defaults.PackageFolder)
	fmt.Fprintf(&sb, "\tinclude_files: %s\n", cueList(cfg.Defaults.IncludeFiles))
	fmt.Fprintf(&sb, "\tkeep_staging_on_failure: %v\n", cfg.Defaults.KeepStagingOnFailure)
	sb.WriteString("}\n")

	if len(cfg.Targets) > 0 {
		sb.WriteString("\ntargets: {\n")
		for _, name := range cfg.TargetNames() {
			t := cfg.Targets[name]
			fmt.Fprintf(&sb, "\t%q: {\n", name)
			if t.DistFolder != nil {
				fmt.Fprintf(&sb, "\t\tdist_folder: %q\n", *t.DistFolder)
			}
			if t.IncludeTime != nil {
				fmt.Fprintf(&sb, "\t\tinclude_time: %v\n", *t.IncludeTime)
			}
			if t.PackageFolder != nil {
				fmt.Fprintf(&sb, "\t\tpackage_folder: %q\n", *t.PackageFolder)
			}
			if t.IncludeFiles != nil {
				fmt.Fprintf(&sb, "\t\tinclude_files: %s\n", cueList(t.IncludeFiles))
			}
			if t.KeepStagingOnFailure != nil {
				fmt.Fprintf(&sb, "\t\tkeep_staging_on_failure: %v\n", *t.KeepStagingOnFailure)
			}
			sb.WriteString("\t}\n")
		}
		sb.WriteString("}\n")
	}

	return sb.String()
}

func cueList(items []string) string {
	quoted := make([]string, 0, len(items))
	for _, item := range items {
		quoted = append(quoted, fmt.Sprintf("%q", item))
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
