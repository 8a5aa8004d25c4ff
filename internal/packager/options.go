// SPDX-License-Identifier: MPL-2.0

package packager

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lambdapack/lambdapack/internal/archive"
)

// DefaultTarget is the target name used when none is given.
const DefaultTarget = "default"

// ErrInvalidOptions is the sentinel error wrapped by InvalidOptionsError.
var ErrInvalidOptions = errors.New("invalid packaging options")

type (
	// Options are the per-target packaging settings.
	Options struct {
		// DistFolder receives the published archive. Relative paths are
		// resolved against the working directory.
		DistFolder string
		// IncludeTime appends a timestamp to the artifact name instead of "latest".
		IncludeTime bool
		// PackageFolder is the project root holding package.json.
		PackageFolder string
		// IncludeFiles are extra glob patterns, relative to PackageFolder,
		// added to the archive next to the staged install.
		IncludeFiles []string
		// KeepStagingOnFailure leaves the staging area on disk when a run fails.
		KeepStagingOnFailure bool
	}

	// Request asks for one target to be packaged.
	Request struct {
		Target  string
		Options Options
	}

	// InvalidOptionsError lists every problem found by Options.Validate.
	InvalidOptionsError struct {
		FieldErrors []error
	}
)

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		DistFolder:    "dist",
		IncludeTime:   true,
		PackageFolder: "./",
	}
}

// Validate checks the options once before a run starts.
func (o Options) Validate() error {
	var errs []error
	if strings.TrimSpace(o.DistFolder) == "" {
		errs = append(errs, errors.New("dist_folder must not be empty"))
	}
	if strings.TrimSpace(o.PackageFolder) == "" {
		errs = append(errs, errors.New("package_folder must not be empty"))
	}
	errs = append(errs, archive.ValidatePatterns(o.IncludeFiles)...)
	if len(errs) > 0 {
		return &InvalidOptionsError{FieldErrors: errs}
	}
	return nil
}

// Error implements the error interface.
func (e *InvalidOptionsError) Error() string {
	msgs := make([]string, 0, len(e.FieldErrors))
	for _, err := range e.FieldErrors {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("invalid options: %s", strings.Join(msgs, "; "))
}

// Unwrap returns ErrInvalidOptions for errors.Is() compatibility.
func (e *InvalidOptionsError) Unwrap() error { return ErrInvalidOptions }
