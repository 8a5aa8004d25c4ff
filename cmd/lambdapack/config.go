// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lambdapack/lambdapack/internal/config"
)

// newConfigCommand creates the `lambdapack config` command tree.
func newConfigCommand(app *App) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage lambdapack configuration",
		Long: `Manage lambdapack configuration.

Configuration is read from the first of:
  - the file given with --config
  - ./lambdapack.cue
  - the user config file:
      Linux: ~/.config/lambdapack/config.cue
      macOS: ~/Library/Application Support/lambdapack/config.cue
      Windows: %AppData%\lambdapack\config.cue

LAMBDAPACK_* environment variables override file values.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration and every target",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return showConfig(cmd.Context(), app)
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file locations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return showConfigPath(app)
		},
	})

	var force, local bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file with the defaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return initConfig(app, local, force)
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	initCmd.Flags().BoolVar(&local, "local", false, "write ./lambdapack.cue instead of the user config file")
	cfgCmd.AddCommand(initCmd)

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "dump",
		Short: "Output the effective configuration as CUE",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.loadConfig(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprint(app.stdout, config.GenerateCUE(cfg))
			return nil
		},
	})

	return cfgCmd
}

func showConfig(ctx context.Context, app *App) error {
	cfg, err := app.loadConfig(ctx)
	if err != nil {
		return err
	}
	out := app.stdout
	key := CmdStyle.Render
	val := SuccessStyle.Render

	fmt.Fprintln(out, TitleStyle.Render("Current Configuration"))
	fmt.Fprintln(out)

	path, err := config.ResolvePath(app.loadOptions())
	if err != nil || path == "" {
		fmt.Fprintf(out, "%s: %s\n", key("Config file"), SubtitleStyle.Render("(using defaults)"))
	} else {
		fmt.Fprintf(out, "%s: %s\n", key("Config file"), path)
	}
	fmt.Fprintln(out)

	fmt.Fprintf(out, "%s: %s\n", key("package_manager"), val(cfg.PackageManager))
	fmt.Fprintf(out, "%s: %s\n", key("install_args"), val(strings.Join(cfg.InstallArgs, " ")))
	fmt.Fprintf(out, "%s: %s\n", key("parallelism"), val(fmt.Sprint(cfg.Parallelism)))
	fmt.Fprintln(out)

	fmt.Fprintf(out, "%s:\n", key("ui"))
	fmt.Fprintf(out, "  verbose: %s\n", val(fmt.Sprint(cfg.UI.Verbose)))
	fmt.Fprintf(out, "  color_scheme: %s\n", val(cfg.UI.ColorScheme.String()))

	names := cfg.TargetNames()
	if _, ok := cfg.Targets[config.DefaultTargetName]; !ok {
		names = append([]string{config.DefaultTargetName}, names...)
	}
	for _, name := range names {
		target, err := cfg.ResolveTarget(name)
		if err != nil {
			return err
		}
		fmt.Fprintln(out)
		fmt.Fprintf(out, "%s %s:\n", key("target"), TitleStyle.Render(name))
		fmt.Fprintf(out, "  dist_folder: %s\n", val(target.DistFolder))
		fmt.Fprintf(out, "  include_time: %s\n", val(fmt.Sprint(target.IncludeTime)))
		fmt.Fprintf(out, "  package_folder: %s\n", val(target.PackageFolder))
		if len(target.IncludeFiles) == 0 {
			fmt.Fprintf(out, "  include_files: %s\n", SubtitleStyle.Render("(none)"))
		} else {
			fmt.Fprintf(out, "  include_files: %s\n", val(strings.Join(target.IncludeFiles, ", ")))
		}
		fmt.Fprintf(out, "  keep_staging_on_failure: %s\n", val(fmt.Sprint(target.KeepStagingOnFailure)))
	}
	return nil
}

func showConfigPath(app *App) error {
	out := app.stdout

	userPath, err := config.UserConfigPath(app.configDir)
	if err != nil {
		return err
	}
	local, err := filepath.Abs(config.LocalFileName)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Project file: %s\n", local)
	fmt.Fprintf(out, "User file: %s\n", userPath)

	path, err := config.ResolvePath(app.loadOptions())
	if err != nil {
		return err
	}
	if path == "" {
		fmt.Fprintln(out, "In use: (defaults)")
	} else {
		fmt.Fprintf(out, "In use: %s\n", path)
	}
	return nil
}

func initConfig(app *App, local, force bool) error {
	path := config.LocalFileName
	if !local {
		userPath, err := config.UserConfigPath(app.configDir)
		if err != nil {
			return err
		}
		path = userPath
	}

	written, err := config.WriteFile(path, config.DefaultConfig(), force)
	if err != nil {
		return fmt.Errorf("failed to create config: %w", err)
	}
	if !written {
		fmt.Fprintf(app.stdout, "%s %s already exists (use --force to overwrite)\n", WarningStyle.Render("!"), path)
		return nil
	}
	fmt.Fprintf(app.stdout, "%s Created default configuration at %s\n", SuccessStyle.Render("✓"), path)
	return nil
}
