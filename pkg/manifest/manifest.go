// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// FileName is the manifest file name inside a package folder.
const FileName = "package.json"

var (
	// ErrManifestNotFound is returned when the package folder has no package.json.
	ErrManifestNotFound = errors.New("manifest not found")
	// ErrInvalidManifest is the sentinel error wrapped by InvalidManifestError.
	ErrInvalidManifest = errors.New("invalid manifest")
)

type (
	// Manifest is the parsed project descriptor.
	//
	// Dependencies holds the string-valued entries of the "dependencies" object.
	// The in-memory value is what gets installed; the file it was read from is
	// never written back.
	Manifest struct {
		Name         PackageName
		Version      Version
		Dependencies map[DependencyName]DependencySpec

		path    string
		members map[string]json.RawMessage
		rawDeps map[string]json.RawMessage
	}

	// InvalidManifestError is returned when package.json cannot be parsed or
	// lacks the required members. It wraps ErrInvalidManifest.
	InvalidManifestError struct {
		Path        string
		FieldErrors []error
	}
)

// Error implements the error interface for InvalidManifestError.
func (e *InvalidManifestError) Error() string {
	if len(e.FieldErrors) == 1 {
		return fmt.Sprintf("invalid manifest %s: %v", e.Path, e.FieldErrors[0])
	}
	return fmt.Sprintf("invalid manifest %s: %d field error(s)", e.Path, len(e.FieldErrors))
}

// Unwrap returns ErrInvalidManifest for errors.Is() compatibility.
func (e *InvalidManifestError) Unwrap() error { return ErrInvalidManifest }

// Load reads package.json from packageRoot.
func Load(packageRoot string) (*Manifest, error) {
	path := filepath.Join(packageRoot, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrManifestNotFound, path)
		}
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}
	return Parse(path, data)
}

// LoadAndRewrite loads the manifest of packageRoot and rewrites its local-file
// dependencies against that same root.
func LoadAndRewrite(packageRoot string) (*Manifest, error) {
	m, err := Load(packageRoot)
	if err != nil {
		return nil, err
	}
	if _, err := m.RewriteLocalDeps(packageRoot); err != nil {
		return nil, err
	}
	return m, nil
}

// Parse decodes manifest JSON. path is only used in error messages.
func Parse(path string, data []byte) (*Manifest, error) {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(data, &members); err != nil {
		return nil, &InvalidManifestError{Path: path, FieldErrors: []error{err}}
	}
	if members == nil {
		return nil, &InvalidManifestError{Path: path, FieldErrors: []error{errors.New("document is null")}}
	}

	m := &Manifest{
		path:         path,
		members:      members,
		Dependencies: make(map[DependencyName]DependencySpec),
	}

	var errs []error
	if err := decodeString(members, "name", (*string)(&m.Name)); err != nil {
		errs = append(errs, err)
	} else if ok, fieldErrs := m.Name.IsValid(); !ok {
		errs = append(errs, fieldErrs...)
	}
	if err := decodeString(members, "version", (*string)(&m.Version)); err != nil {
		errs = append(errs, err)
	} else if ok, fieldErrs := m.Version.IsValid(); !ok {
		errs = append(errs, fieldErrs...)
	}

	if raw, ok := members["dependencies"]; ok && string(raw) != "null" {
		if err := json.Unmarshal(raw, &m.rawDeps); err != nil {
			errs = append(errs, fmt.Errorf("dependencies: %w", err))
		}
		for name, value := range m.rawDeps {
			// Non-string values are carried through untouched.
			var spec string
			if json.Unmarshal(value, &spec) == nil {
				m.Dependencies[DependencyName(name)] = DependencySpec(spec)
			}
		}
	}

	if len(errs) > 0 {
		return nil, &InvalidManifestError{Path: path, FieldErrors: errs}
	}
	return m, nil
}

func decodeString(members map[string]json.RawMessage, key string, dst *string) error {
	raw, ok := members[key]
	if !ok {
		return fmt.Errorf("%s: missing", key)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%s: must be a string", key)
	}
	return nil
}

// Path returns the file the manifest was read from.
func (m *Manifest) Path() string { return m.path }

// HasDependencies reports whether the manifest declares a dependencies object.
func (m *Manifest) HasDependencies() bool { return m.rawDeps != nil }

// LocalDependencies returns the sorted names of dependencies with a local-file specifier.
func (m *Manifest) LocalDependencies() []DependencyName {
	var names []DependencyName
	for name, spec := range m.Dependencies {
		if spec.IsLocalFile() {
			names = append(names, name)
		}
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// RewriteLocalDeps replaces every "file:<rel>" specifier with "file:<abs>",
// where <abs> is <rel> resolved against packageRoot. Other specifiers are left
// untouched. It reports whether any specifier changed.
func (m *Manifest) RewriteLocalDeps(packageRoot string) (bool, error) {
	root, err := filepath.Abs(packageRoot)
	if err != nil {
		return false, fmt.Errorf("resolve package root %s: %w", packageRoot, err)
	}

	changed := false
	for name, spec := range m.Dependencies {
		if !spec.IsLocalFile() {
			continue
		}
		target := spec.LocalPath()
		if !filepath.IsAbs(target) {
			target = filepath.Join(root, target)
		}
		rewritten := DependencySpec(LocalFilePrefix + filepath.Clean(target))
		if rewritten != spec {
			m.Dependencies[name] = rewritten
			changed = true
		}
	}
	return changed, nil
}

// Marshal encodes the manifest, including all members that are not typed on
// Manifest, with the current dependency specifiers.
func (m *Manifest) Marshal() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(m.members)+3)
	for k, v := range m.members {
		out[k] = v
	}

	name, err := json.Marshal(m.Name)
	if err != nil {
		return nil, err
	}
	out["name"] = name

	version, err := json.Marshal(m.Version)
	if err != nil {
		return nil, err
	}
	out["version"] = version

	if m.rawDeps != nil || len(m.Dependencies) > 0 {
		deps := make(map[string]json.RawMessage, len(m.rawDeps)+len(m.Dependencies))
		for k, v := range m.rawDeps {
			deps[k] = v
		}
		for k, v := range m.Dependencies {
			encoded, encErr := json.Marshal(v)
			if encErr != nil {
				return nil, encErr
			}
			deps[string(k)] = encoded
		}
		encoded, encErr := json.Marshal(deps)
		if encErr != nil {
			return nil, encErr
		}
		out["dependencies"] = encoded
	}

	return json.MarshalIndent(out, "", "  ")
}

// WriteTo writes the encoded manifest as package.json inside dir.
func (m *Manifest) WriteTo(dir string) error {
	data, err := m.Marshal()
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write manifest %s: %w", path, err)
	}
	return nil
}
