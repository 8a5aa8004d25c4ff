// SPDX-License-Identifier: MPL-2.0

// Package staging owns the disposable working directory of one packaging run:
// the copy of the package folder, the installed dependencies and the
// intermediate archive.
package staging

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/u-root/u-root/pkg/cp"

	"github.com/lambdapack/lambdapack/pkg/manifest"
)

const (
	// DirPattern is the os.MkdirTemp pattern of staging roots.
	DirPattern = "lambdapack-*"
	// InstallDir is the name of the install root below the staging root.
	InstallDir = "pkg"
)

// ErrStaging is the sentinel error wrapped by every staging failure.
var ErrStaging = errors.New("staging failed")

type (
	// Area is one staging directory tree, exclusively owned by a single run.
	//
	//	<Root>/
	//	  pkg/           InstallRoot: project copy + node_modules
	//	  <name>.zip     ArchivePath: intermediate archive
	Area struct {
		// Root is the unique staging directory.
		Root string
		// InstallRoot is where the project copy lives and npm installs.
		InstallRoot string

		mu        sync.Mutex
		destroyed bool
	}

	// Error describes a failed staging operation. It wraps ErrStaging.
	Error struct {
		Op   string
		Path string
		Err  error
	}
)

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("staging: %s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns ErrStaging and the cause.
func (e *Error) Unwrap() []error { return []error{ErrStaging, e.Err} }

// Create allocates a uniquely named staging directory inside parent
// (os.TempDir() when parent is empty).
func Create(parent string) (*Area, error) {
	root, err := os.MkdirTemp(parent, DirPattern)
	if err != nil {
		return nil, &Error{Op: "create", Path: parent, Err: err}
	}
	return &Area{Root: root, InstallRoot: filepath.Join(root, InstallDir)}, nil
}

// ArchivePath returns the intermediate archive location for artifact name.
func (a *Area) ArchivePath(name string) string {
	return filepath.Join(a.Root, name+".zip")
}

// Populate copies the tree at src into InstallRoot, preserving structure and
// keeping symlinks as links. A relative link pointing outside src is
// recreated with an absolute target. Paths listed in skip (and the staging
// root itself) are left out when they lie strictly inside src.
func (a *Area) Populate(src string, skip ...string) error {
	absSrc, err := filepath.Abs(src)
	if err != nil {
		return &Error{Op: "resolve", Path: src, Err: err}
	}

	excluded := []string{a.Root}
	for _, p := range skip {
		if p == "" {
			continue
		}
		abs, absErr := filepath.Abs(p)
		if absErr != nil {
			return &Error{Op: "resolve", Path: p, Err: absErr}
		}
		if !strings.HasPrefix(abs, absSrc+string(filepath.Separator)) {
			continue
		}
		excluded = append(excluded, abs)
	}

	walkErr := filepath.WalkDir(absSrc, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != absSrc && isExcluded(path, excluded) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(absSrc, path)
		if err != nil {
			return err
		}
		dst := filepath.Join(a.InstallRoot, rel)
		if d.IsDir() {
			// Directories are created writable so their contents can be copied.
			info, infoErr := d.Info()
			if infoErr != nil {
				return infoErr
			}
			return os.MkdirAll(dst, info.Mode().Perm()|0o700)
		}
		if d.Type()&fs.ModeSymlink != 0 {
			if escaping, ok := escapingLink(absSrc, path); ok {
				return os.Symlink(escaping, dst)
			}
		}
		return cp.NoFollowSymlinks.Copy(path, dst)
	})
	if walkErr != nil {
		return &Error{Op: "copy", Path: src, Err: walkErr}
	}
	return nil
}

// escapingLink returns the absolute target of a relative link at path that
// leaves root.
func escapingLink(root, path string) (string, bool) {
	target, err := os.Readlink(path)
	if err != nil || filepath.IsAbs(target) {
		return "", false
	}
	abs := filepath.Join(filepath.Dir(path), target)
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return abs, true
	}
	return "", false
}

func isExcluded(path string, excluded []string) bool {
	for _, ex := range excluded {
		if path == ex || strings.HasPrefix(path, ex+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// WriteManifest writes m as package.json into InstallRoot, replacing the copy.
func (a *Area) WriteManifest(m *manifest.Manifest) error {
	if err := m.WriteTo(a.InstallRoot); err != nil {
		return &Error{Op: "write manifest", Path: a.InstallRoot, Err: err}
	}
	return nil
}

// Destroy removes the whole staging tree. It is safe to call more than once
// and on a partially created area.
func (a *Area) Destroy() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.destroyed || a.Root == "" {
		return nil
	}
	if err := os.RemoveAll(a.Root); err != nil {
		return &Error{Op: "destroy", Path: a.Root, Err: err}
	}
	a.destroyed = true
	return nil
}

// Destroyed reports whether Destroy completed.
func (a *Area) Destroyed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.destroyed
}
