// SPDX-License-Identifier: MPL-2.0

package npm

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/mod/semver"
)

// MinimumMajor is the oldest npm major version that installs a flat
// node_modules tree.
const MinimumMajor = 3

// ErrPreconditionUnmet is returned when the package manager is missing,
// cannot report its version, or is older than required.
var ErrPreconditionUnmet = errors.New("package manager precondition not met")

type (
	// VersionReporter reports the installed package-manager version.
	VersionReporter interface {
		Version(ctx context.Context) (string, error)
	}

	// Precondition checks once per process that the package manager is usable.
	// A successful check is remembered; a failed one is retried on the next call.
	Precondition struct {
		tool    VersionReporter
		minimum int

		mu      sync.Mutex
		ready   bool
		version string
	}

	// PreconditionError describes why the package manager was rejected.
	PreconditionError struct {
		// Reported is the raw version string, empty when the query failed.
		Reported string
		// Minimum is the required major version.
		Minimum int
		// Err is the cause (query failure or parse failure), if any.
		Err error
	}
)

// NewPrecondition returns a Precondition requiring at least major version
// minimum. A minimum below 1 selects MinimumMajor.
func NewPrecondition(tool VersionReporter, minimum int) *Precondition {
	if minimum < 1 {
		minimum = MinimumMajor
	}
	return &Precondition{tool: tool, minimum: minimum}
}

// EnsureReady verifies the package manager. Concurrent callers block until the
// first check completes, so the version query runs at most once on success.
func (p *Precondition) EnsureReady(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ready {
		return nil
	}

	reported, err := p.tool.Version(ctx)
	if err != nil {
		return &PreconditionError{Minimum: p.minimum, Err: err}
	}

	major, err := ParseMajor(reported)
	if err != nil {
		return &PreconditionError{Reported: reported, Minimum: p.minimum, Err: err}
	}
	if major < p.minimum {
		return &PreconditionError{Reported: reported, Minimum: p.minimum}
	}

	p.ready = true
	p.version = reported
	return nil
}

// Version returns the version accepted by the last successful check.
func (p *Precondition) Version() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.version
}

// ParseMajor extracts the major version from output such as "10.2.4" or
// "v3.10.10". Strings that are not semantic versions fall back to their
// leading digits ("7.x-dev" is 7).
func ParseMajor(reported string) (int, error) {
	v := strings.TrimSpace(reported)
	canonical := v
	if !strings.HasPrefix(canonical, "v") {
		canonical = "v" + canonical
	}
	if semver.IsValid(canonical) {
		return strconv.Atoi(strings.TrimPrefix(semver.Major(canonical), "v"))
	}

	v = strings.TrimPrefix(v, "v")
	end := 0
	for end < len(v) && v[end] >= '0' && v[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, fmt.Errorf("unrecognized version %q", reported)
	}
	return strconv.Atoi(v[:end])
}

// Error implements the error interface for PreconditionError.
func (e *PreconditionError) Error() string {
	switch {
	case e.Reported == "" && e.Err != nil:
		return fmt.Sprintf("npm %d or newer is required: version query failed: %v", e.Minimum, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("npm %d or newer is required: %v", e.Minimum, e.Err)
	default:
		return fmt.Sprintf("npm %d or newer is required, found %s", e.Minimum, e.Reported)
	}
}

// Unwrap returns ErrPreconditionUnmet and the cause for errors.Is/As.
func (e *PreconditionError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrPreconditionUnmet, e.Err}
	}
	return []error{ErrPreconditionUnmet}
}
