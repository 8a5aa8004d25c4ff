// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"errors"
	"fmt"
	"strings"
)

// LocalFilePrefix marks a dependency specifier that references another package
// by filesystem path instead of a registry version.
const LocalFilePrefix = "file:"

var (
	// ErrInvalidPackageName is the sentinel error wrapped by InvalidPackageNameError.
	ErrInvalidPackageName = errors.New("invalid package name")
	// ErrInvalidVersion is the sentinel error wrapped by InvalidVersionError.
	ErrInvalidVersion = errors.New("invalid package version")
)

type (
	// PackageName is the "name" member of a manifest. Scoped names
	// ("@scope/pkg") are valid.
	PackageName string

	// InvalidPackageNameError is returned when a PackageName is empty or whitespace-only.
	InvalidPackageNameError struct {
		Value PackageName
	}

	// Version is the "version" member of a manifest, dot-separated numeric
	// segments with optional pre-release/build suffixes ("1.0.0", "2.4.3-beta.1").
	Version string

	// InvalidVersionError is returned when a Version is empty or contains a path separator.
	InvalidVersionError struct {
		Value  Version
		Reason string
	}

	// DependencyName is a key of the "dependencies" object.
	DependencyName string

	// DependencySpec is a dependency version specifier ("^1.2.0", "file:../lib").
	DependencySpec string
)

// String returns the string representation of the PackageName.
func (n PackageName) String() string { return string(n) }

// IsValid returns whether the PackageName is non-empty.
func (n PackageName) IsValid() (bool, []error) {
	if strings.TrimSpace(string(n)) == "" {
		return false, []error{&InvalidPackageNameError{Value: n}}
	}
	return true, nil
}

// FileSafe returns the name in a form usable as a single path segment.
// Unscoped names are returned unchanged; "@scope/pkg" becomes "scope-pkg".
func (n PackageName) FileSafe() string {
	s := strings.TrimPrefix(string(n), "@")
	return strings.NewReplacer("/", "-", "\\", "-").Replace(s)
}

// Error implements the error interface for InvalidPackageNameError.
func (e *InvalidPackageNameError) Error() string {
	return fmt.Sprintf("invalid package name %q: must be non-empty", e.Value)
}

// Unwrap returns ErrInvalidPackageName for errors.Is() compatibility.
func (e *InvalidPackageNameError) Unwrap() error { return ErrInvalidPackageName }

// String returns the string representation of the Version.
func (v Version) String() string { return string(v) }

// IsValid returns whether the Version can be embedded in an artifact file name.
func (v Version) IsValid() (bool, []error) {
	switch {
	case strings.TrimSpace(string(v)) == "":
		return false, []error{&InvalidVersionError{Value: v, Reason: "must be non-empty"}}
	case strings.ContainsAny(string(v), `/\`):
		return false, []error{&InvalidVersionError{Value: v, Reason: "must not contain path separators"}}
	}
	return true, nil
}

// FileSafe replaces every "." with "-" and leaves all other characters alone.
func (v Version) FileSafe() string {
	return strings.ReplaceAll(string(v), ".", "-")
}

// Error implements the error interface for InvalidVersionError.
func (e *InvalidVersionError) Error() string {
	return fmt.Sprintf("invalid package version %q: %s", e.Value, e.Reason)
}

// Unwrap returns ErrInvalidVersion for errors.Is() compatibility.
func (e *InvalidVersionError) Unwrap() error { return ErrInvalidVersion }

// IsLocalFile reports whether the specifier references a local path.
func (s DependencySpec) IsLocalFile() bool {
	return strings.HasPrefix(string(s), LocalFilePrefix)
}

// LocalPath returns the path part of a local-file specifier, or "" when the
// specifier is a registry version.
func (s DependencySpec) LocalPath() string {
	if !s.IsLocalFile() {
		return ""
	}
	return strings.TrimPrefix(string(s), LocalFilePrefix)
}
