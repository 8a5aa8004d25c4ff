// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

const (
	// ColorSchemeAuto detects the terminal color scheme automatically.
	ColorSchemeAuto ColorScheme = "auto"
	// ColorSchemeDark forces dark color scheme.
	ColorSchemeDark ColorScheme = "dark"
	// ColorSchemeLight forces light color scheme.
	ColorSchemeLight ColorScheme = "light"

	// DefaultTargetName is used when the CLI is given no target.
	DefaultTargetName = "default"
)

var (
	// ErrInvalidColorScheme is returned when a ColorScheme value is not recognized.
	ErrInvalidColorScheme = errors.New("invalid color scheme")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrUnknownTarget is returned when a named target is not configured.
	ErrUnknownTarget = errors.New("unknown target")
)

type (
	// ColorScheme specifies the terminal color scheme preference.
	ColorScheme string

	// InvalidColorSchemeError is returned when a ColorScheme value is not recognized.
	// It wraps ErrInvalidColorScheme for errors.Is() compatibility.
	InvalidColorSchemeError struct {
		Value ColorScheme
	}

	// Config is the decoded configuration file merged over the defaults.
	Config struct {
		// PackageManager is the command line of the package manager.
		PackageManager string `json:"package_manager" mapstructure:"package_manager"`
		// InstallArgs are appended to "install --production".
		InstallArgs []string `json:"install_args" mapstructure:"install_args"`
		// Parallelism bounds concurrently packaged targets.
		Parallelism int `json:"parallelism" mapstructure:"parallelism"`
		// UI configures the user interface.
		UI UIConfig `json:"ui" mapstructure:"ui"`
		// Defaults apply to every target.
		Defaults Target `json:"defaults" mapstructure:"defaults"`
		// Targets are the named option sets, keyed by lowercase name.
		Targets map[string]TargetOverride `json:"targets" mapstructure:"targets"`
	}

	// UIConfig configures the user interface.
	UIConfig struct {
		// Verbose enables debug logging, including package manager output.
		Verbose bool `json:"verbose" mapstructure:"verbose"`
		// ColorScheme sets the color scheme
		ColorScheme ColorScheme `json:"color_scheme" mapstructure:"color_scheme"`
	}

	// Target holds fully resolved per-target options.
	Target struct {
		DistFolder           string   `json:"dist_folder" mapstructure:"dist_folder"`
		IncludeTime          bool     `json:"include_time" mapstructure:"include_time"`
		PackageFolder        string   `json:"package_folder" mapstructure:"package_folder"`
		IncludeFiles         []string `json:"include_files" mapstructure:"include_files"`
		KeepStagingOnFailure bool     `json:"keep_staging_on_failure" mapstructure:"keep_staging_on_failure"`
	}

	// TargetOverride is a target block; nil fields inherit from Defaults.
	TargetOverride struct {
		DistFolder           *string  `json:"dist_folder,omitempty" mapstructure:"dist_folder"`
		IncludeTime          *bool    `json:"include_time,omitempty" mapstructure:"include_time"`
		PackageFolder        *string  `json:"package_folder,omitempty" mapstructure:"package_folder"`
		IncludeFiles         []string `json:"include_files,omitempty" mapstructure:"include_files"`
		KeepStagingOnFailure *bool    `json:"keep_staging_on_failure,omitempty" mapstructure:"keep_staging_on_failure"`
	}

	// InvalidConfigError is returned when a Config has invalid fields.
	// It wraps ErrInvalidConfig for errors.Is() compatibility.
	InvalidConfigError struct {
		FieldErrors []error
	}
)

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		PackageManager: "npm",
		InstallArgs:    []string{},
		Parallelism:    1,
		UI: UIConfig{
			Verbose:     false,
			ColorScheme: ColorSchemeAuto,
		},
		Defaults: Target{
			DistFolder:    "dist",
			IncludeTime:   true,
			PackageFolder: "./",
			IncludeFiles:  []string{},
		},
		Targets: map[string]TargetOverride{},
	}
}

// TargetNames returns the configured target names, sorted.
func (c *Config) TargetNames() []string {
	names := make([]string, 0, len(c.Targets))
	for name := range c.Targets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveTarget returns the options of the named target: Defaults overlaid by
// the target block. The name is matched case-insensitively. The "default"
// target resolves to Defaults when no block of that name exists.
func (c *Config) ResolveTarget(name string) (Target, error) {
	key := strings.ToLower(name)
	if key == "" {
		key = DefaultTargetName
	}

	resolved := c.Defaults
	resolved.IncludeFiles = append([]string(nil), c.Defaults.IncludeFiles...)

	override, ok := c.Targets[key]
	if !ok {
		if key == DefaultTargetName {
			return resolved, nil
		}
		return Target{}, fmt.Errorf("%w %q (configured: %s)", ErrUnknownTarget, name, strings.Join(c.TargetNames(), ", "))
	}
	return override.apply(resolved), nil
}

func (o TargetOverride) apply(t Target) Target {
	if o.DistFolder != nil {
		t.DistFolder = *o.DistFolder
	}
	if o.IncludeTime != nil {
		t.IncludeTime = *o.IncludeTime
	}
	if o.PackageFolder != nil {
		t.PackageFolder = *o.PackageFolder
	}
	if o.IncludeFiles != nil {
		t.IncludeFiles = append([]string(nil), o.IncludeFiles...)
	}
	if o.KeepStagingOnFailure != nil {
		t.KeepStagingOnFailure = *o.KeepStagingOnFailure
	}
	return t
}

// IsValid returns whether the Config has valid fields.
// CUE checks the file; this also covers environment overrides.
func (c Config) IsValid() (bool, []error) {
	var errs []error
	if strings.TrimSpace(c.PackageManager) == "" {
		errs = append(errs, errors.New("package_manager must not be empty"))
	}
	if c.Parallelism < 1 {
		errs = append(errs, fmt.Errorf("parallelism must be at least 1, got %d", c.Parallelism))
	}
	if valid, fieldErrs := c.UI.ColorScheme.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if len(errs) > 0 {
		return false, []error{&InvalidConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidConfigError.
func (e *InvalidConfigError) Error() string {
	if len(e.FieldErrors) == 1 {
		return fmt.Sprintf("invalid config: %v", e.FieldErrors[0])
	}
	return fmt.Sprintf("invalid config: %d field error(s)", len(e.FieldErrors))
}

// Unwrap returns ErrInvalidConfig for errors.Is() compatibility.
func (e *InvalidConfigError) Unwrap() error { return ErrInvalidConfig }

// Error implements the error interface for InvalidColorSchemeError.
func (e *InvalidColorSchemeError) Error() string {
	return fmt.Sprintf("invalid color scheme %q (valid: auto, dark, light)", e.Value)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidColorSchemeError) Unwrap() error {
	return ErrInvalidColorScheme
}

// String returns the string representation of the ColorScheme.
func (cs ColorScheme) String() string { return string(cs) }

// IsValid returns whether the ColorScheme is one of the defined color schemes,
// and a list of validation errors if it is not.
func (cs ColorScheme) IsValid() (bool, []error) {
	switch cs {
	case ColorSchemeAuto, ColorSchemeDark, ColorSchemeLight:
		return true, nil
	default:
		return false, []error{&InvalidColorSchemeError{Value: cs}}
	}
}
