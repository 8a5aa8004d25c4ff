// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/log"
)

// DefaultMode is the permission set stored for every archive entry.
const DefaultMode fs.FileMode = 0o777

// ErrArchiveFailed is the sentinel error wrapped by every Build failure.
var ErrArchiveFailed = errors.New("archive creation failed")

type (
	// Include selects extra files, relative to BaseDir, to add next to the
	// staged tree. A pattern starting with "!" removes earlier matches.
	Include struct {
		BaseDir  string
		Patterns []string
	}

	// Stats summarizes a finished archive.
	Stats struct {
		Files    int
		Dirs     int
		Included int
		// Skipped counts include matches dropped because the name was already written.
		Skipped int
		// Bytes is the uncompressed size of all file entries.
		Bytes int64
	}

	// Builder writes zip archives with a fixed entry mode.
	Builder struct {
		// ForcedMode replaces the permission bits of every entry.
		// Zero selects DefaultMode.
		ForcedMode fs.FileMode
		Logger     *log.Logger
	}

	// Error reports the path that made Build fail. It wraps ErrArchiveFailed.
	Error struct {
		Op   string
		Path string
		Err  error
	}

	entryWriter struct {
		ctx     context.Context
		builder *Builder
		zw      *zip.Writer
		written map[string]bool
		stats   Stats
	}
)

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("archive: %s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns ErrArchiveFailed and the cause.
func (e *Error) Unwrap() []error { return []error{ErrArchiveFailed, e.Err} }

// NewBuilder returns a Builder forcing DefaultMode. A nil logger discards output.
func NewBuilder(logger *log.Logger) *Builder {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Builder{ForcedMode: DefaultMode, Logger: logger}
}

// EntryMode rewrites the stored mode of h, keeping only the directory bit
// from the source.
func (b *Builder) EntryMode(h *zip.FileHeader, isDir bool) {
	mode := b.ForcedMode.Perm()
	if b.ForcedMode == 0 {
		mode = DefaultMode
	}
	if isDir {
		mode |= fs.ModeDir
	}
	h.SetMode(mode)
}

// Build streams a zip of root (rooted at the archive top level) plus the
// files matched by includes into outputPath. It returns once the central
// directory is written and the file is synced and closed. On failure the
// partial output is removed.
func (b *Builder) Build(ctx context.Context, root string, includes []Include, outputPath string) (stats Stats, err error) {
	if b.Logger == nil {
		b.Logger = log.New(io.Discard)
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return Stats{}, &Error{Op: "create", Path: outputPath, Err: err}
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(outputPath)
		}
	}()

	w := &entryWriter{
		ctx:     ctx,
		builder: b,
		zw:      zip.NewWriter(f),
		written: make(map[string]bool),
	}

	if err = w.addTree(root, "", map[string]bool{}); err != nil {
		return Stats{}, err
	}
	for _, inc := range includes {
		if err = w.addIncludes(inc); err != nil {
			return Stats{}, err
		}
	}

	if err = w.zw.Close(); err != nil {
		return Stats{}, &Error{Op: "finalize", Path: outputPath, Err: err}
	}
	if err = f.Sync(); err != nil {
		return Stats{}, &Error{Op: "sync", Path: outputPath, Err: err}
	}
	if err = f.Close(); err != nil {
		return Stats{}, &Error{Op: "close", Path: outputPath, Err: err}
	}

	b.Logger.Debug("archive written", "path", outputPath, "files", w.stats.Files, "dirs", w.stats.Dirs, "bytes", w.stats.Bytes)
	return w.stats, nil
}

// addTree adds the contents of dir below the archive prefix. Symlinks are
// followed; a directory already on the current path is not entered again.
func (w *entryWriter) addTree(dir, prefix string, active map[string]bool) error {
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return &Error{Op: "resolve", Path: dir, Err: err}
	}
	if active[resolved] {
		w.builder.Logger.Warn("skipping symlink cycle", "path", dir)
		return nil
	}
	active[resolved] = true
	defer delete(active, resolved)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return &Error{Op: "read", Path: dir, Err: err}
	}

	for _, e := range entries {
		if err := w.ctx.Err(); err != nil {
			return &Error{Op: "walk", Path: dir, Err: err}
		}

		full := filepath.Join(dir, e.Name())
		name := path.Join(prefix, e.Name())

		info, err := os.Stat(full)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && e.Type()&fs.ModeSymlink != 0 {
				w.builder.Logger.Warn("skipping dangling symlink", "path", full)
				continue
			}
			return &Error{Op: "stat", Path: full, Err: err}
		}

		switch {
		case info.IsDir():
			if err := w.addDir(name, info); err != nil {
				return err
			}
			if err := w.addTree(full, name, active); err != nil {
				return err
			}
		case info.Mode().IsRegular():
			if err := w.addFile(full, name, info); err != nil {
				return err
			}
		default:
			w.builder.Logger.Warn("skipping special file", "path", full, "mode", info.Mode().String())
		}
	}
	return nil
}

func (w *entryWriter) addDir(name string, info fs.FileInfo) error {
	h := &zip.FileHeader{
		Name:     name + "/",
		Method:   zip.Store,
		Modified: info.ModTime(),
	}
	w.builder.EntryMode(h, true)
	if _, err := w.zw.CreateHeader(h); err != nil {
		return &Error{Op: "write", Path: name, Err: err}
	}
	w.written[name+"/"] = true
	w.stats.Dirs++
	return nil
}

func (w *entryWriter) addFile(src, name string, info fs.FileInfo) (err error) {
	h, err := zip.FileInfoHeader(info)
	if err != nil {
		return &Error{Op: "header", Path: src, Err: err}
	}
	h.Name = name
	h.Method = zip.Deflate
	w.builder.EntryMode(h, false)

	in, err := os.Open(src)
	if err != nil {
		return &Error{Op: "open", Path: src, Err: err}
	}
	defer func() {
		if closeErr := in.Close(); closeErr != nil && err == nil {
			err = &Error{Op: "close", Path: src, Err: closeErr}
		}
	}()

	out, err := w.zw.CreateHeader(h)
	if err != nil {
		return &Error{Op: "write", Path: name, Err: err}
	}
	n, err := io.Copy(out, in)
	if err != nil {
		return &Error{Op: "copy", Path: src, Err: err}
	}

	w.written[name] = true
	w.stats.Files++
	w.stats.Bytes += n
	return nil
}

func (w *entryWriter) addIncludes(inc Include) error {
	matches, err := ExpandIncludes(inc)
	if err != nil {
		return err
	}
	for _, rel := range matches {
		if err := w.ctx.Err(); err != nil {
			return &Error{Op: "include", Path: rel, Err: err}
		}
		if w.written[rel] {
			w.builder.Logger.Debug("include already in archive", "name", rel)
			w.stats.Skipped++
			continue
		}
		if err := w.addParents(rel, inc.BaseDir); err != nil {
			return err
		}
		full := filepath.Join(inc.BaseDir, filepath.FromSlash(rel))
		info, err := os.Stat(full)
		if err != nil {
			return &Error{Op: "stat", Path: full, Err: err}
		}
		if err := w.addFile(full, rel, info); err != nil {
			return err
		}
		w.stats.Included++
	}
	return nil
}

// addParents writes directory entries for the parents of rel that are not in
// the archive yet.
func (w *entryWriter) addParents(rel, baseDir string) error {
	dir := path.Dir(rel)
	if dir == "." || w.written[dir+"/"] {
		return nil
	}
	if err := w.addParents(dir, baseDir); err != nil {
		return err
	}
	info, err := os.Stat(filepath.Join(baseDir, filepath.FromSlash(dir)))
	if err != nil {
		return &Error{Op: "stat", Path: dir, Err: err}
	}
	return w.addDir(dir, info)
}

// ExpandIncludes returns the sorted, slash-separated file paths matched by
// inc relative to inc.BaseDir.
func ExpandIncludes(inc Include) ([]string, error) {
	if len(inc.Patterns) == 0 {
		return nil, nil
	}
	fsys := os.DirFS(inc.BaseDir)

	selected := make(map[string]bool)
	for _, pattern := range inc.Patterns {
		pattern = filepath.ToSlash(pattern)
		if negated, ok := strings.CutPrefix(pattern, "!"); ok {
			for name := range selected {
				if match, _ := doublestar.Match(negated, name); match {
					delete(selected, name)
				}
			}
			continue
		}
		matches, err := doublestar.Glob(fsys, strings.TrimPrefix(pattern, "./"), doublestar.WithFilesOnly())
		if err != nil {
			return nil, &Error{Op: "glob", Path: pattern, Err: err}
		}
		for _, m := range matches {
			selected[m] = true
		}
	}

	out := make([]string, 0, len(selected))
	for name := range selected {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// ValidatePatterns reports the include patterns that are not valid globs.
func ValidatePatterns(patterns []string) []error {
	var errs []error
	for _, p := range patterns {
		if !doublestar.ValidatePattern(strings.TrimPrefix(filepath.ToSlash(p), "!")) {
			errs = append(errs, fmt.Errorf("invalid include pattern %q", p))
		}
	}
	return errs
}
