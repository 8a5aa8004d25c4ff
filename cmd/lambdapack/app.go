// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"github.com/lambdapack/lambdapack/internal/config"
	"github.com/lambdapack/lambdapack/internal/issue"
	"github.com/lambdapack/lambdapack/internal/packager"
)

type (
	// ConfigProvider loads configuration using explicit options.
	ConfigProvider interface {
		Load(ctx context.Context, opts config.LoadOptions) (*config.Config, error)
	}

	// App wires CLI services and shared dependencies. Every command handler
	// receives the App and reads configuration through it.
	App struct {
		Config     ConfigProvider
		stdout     io.Writer
		stderr     io.Writer
		clock      packager.Clock
		stagingDir string
		configDir  string

		// Bound to the persistent flags of the root command.
		verbose    bool
		configPath string

		mu  sync.Mutex
		cfg *config.Config
	}

	// Dependencies defines the injection points for building an App. Nil
	// fields are replaced with production defaults by NewApp.
	Dependencies struct {
		Config ConfigProvider
		Stdout io.Writer
		Stderr io.Writer
		// Clock overrides the wall clock used in artifact names.
		Clock packager.Clock
		// StagingDir is the parent of staging areas ("" means os.TempDir()).
		StagingDir string
		// ConfigDir overrides the user configuration directory.
		ConfigDir string
	}
)

// NewApp creates an App from deps.
func NewApp(deps Dependencies) *App {
	app := &App{
		Config:     deps.Config,
		stdout:     deps.Stdout,
		stderr:     deps.Stderr,
		clock:      deps.Clock,
		stagingDir: deps.StagingDir,
		configDir:  deps.ConfigDir,
	}
	if app.Config == nil {
		app.Config = config.NewProvider()
	}
	if app.stdout == nil {
		app.stdout = os.Stdout
	}
	if app.stderr == nil {
		app.stderr = os.Stderr
	}
	return app
}

func (a *App) loadOptions() config.LoadOptions {
	return config.LoadOptions{ConfigFilePath: a.configPath, ConfigDirPath: a.configDir}
}

// loadConfig loads the configuration once per App.
func (a *App) loadConfig(ctx context.Context) (*config.Config, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cfg != nil {
		return a.cfg, nil
	}
	cfg, err := a.Config.Load(ctx, a.loadOptions())
	if err != nil {
		return nil, err
	}
	a.cfg = cfg
	return cfg, nil
}

func (a *App) isVerbose() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.verbose || (a.cfg != nil && a.cfg.UI.Verbose)
}

// newLogger returns the root logger for a command; components derive
// prefixed loggers from it.
func (a *App) newLogger() *log.Logger {
	level := log.InfoLevel
	if a.isVerbose() {
		level = log.DebugLevel
	}
	return log.NewWithOptions(a.stderr, log.Options{
		Prefix:          "lambdapack",
		Level:           level,
		ReportTimestamp: level == log.DebugLevel,
	})
}

// glamourStyle picks the catalog rendering style for the configured scheme.
func (a *App) glamourStyle() string {
	a.mu.Lock()
	scheme := config.ColorSchemeAuto
	if a.cfg != nil {
		scheme = a.cfg.UI.ColorScheme
	}
	a.mu.Unlock()

	switch scheme {
	case config.ColorSchemeDark:
		return "dark"
	case config.ColorSchemeLight:
		return "light"
	default:
		if lipgloss.HasDarkBackground() {
			return "dark"
		}
		return "light"
	}
}

// renderError is the fang error handler. Actionable errors print their
// suggestions; verbose mode adds the error chain and the catalog entry for
// the failure kind.
func (a *App) renderError(w io.Writer, _ fang.Styles, err error) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Err == nil {
		return
	}

	verbose := a.isVerbose()
	fmt.Fprintln(w, ErrorStyle.Render("Error: ")+formatErrorForDisplay(err, verbose))

	if !verbose {
		return
	}
	entry := issue.Get(issue.IdOf(err))
	if entry == nil {
		return
	}
	rendered, renderErr := entry.Render(a.glamourStyle())
	if renderErr != nil {
		fmt.Fprintln(w, WarningStyle.Render("failed to render help: ")+renderErr.Error())
		return
	}
	fmt.Fprint(w, rendered)
}

// formatErrorForDisplay formats an error for user display.
// If the error is an ActionableError, it uses the Format method.
func formatErrorForDisplay(err error, verboseMode bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verboseMode)
	}
	return err.Error()
}
