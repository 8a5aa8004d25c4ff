// SPDX-License-Identifier: MPL-2.0

// Package handoff records published artifact paths for the deployment step.
//
// The record lives next to the artifacts as <dist>/lambdapack.toml:
//
//	[lambda_deploy.api]
//	package = "dist/api_1-0-0_latest.zip"
//	packaged_at = 2024-05-06T07:08:09+02:00
package handoff

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// FileName is the name of the handoff file inside a dist folder.
const FileName = "lambdapack.toml"

type (
	// Entry is the handoff of one target.
	Entry struct {
		Package    string    `toml:"package"`
		PackagedAt time.Time `toml:"packaged_at"`
	}

	// File is the decoded handoff file.
	File struct {
		LambdaDeploy map[string]Entry `toml:"lambda_deploy"`
	}

	// Store updates handoff files. Concurrent Record calls are serialized so
	// targets sharing a dist folder do not lose each other's entries.
	Store struct {
		mu sync.Mutex
	}
)

// NewStore returns a Store.
func NewStore() *Store { return &Store{} }

// Path returns the handoff file location for distFolder.
func Path(distFolder string) string { return filepath.Join(distFolder, FileName) }

// Record sets lambda_deploy.<target>.package to artifactPath in the handoff
// file of distFolder, keeping the entries of other targets.
func (s *Store) Record(distFolder, target, artifactPath string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := Read(distFolder)
	if err != nil {
		return err
	}
	if f.LambdaDeploy == nil {
		f.LambdaDeploy = make(map[string]Entry)
	}
	f.LambdaDeploy[target] = Entry{Package: filepath.ToSlash(artifactPath), PackagedAt: at.Truncate(time.Second)}

	data, err := toml.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode handoff: %w", err)
	}

	// Readers never observe a truncated file.
	path := Path(distFolder)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write handoff %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace handoff %s: %w", path, err)
	}
	return nil
}

// Read loads the handoff file of distFolder. A missing file yields an empty File.
func Read(distFolder string) (*File, error) {
	path := Path(distFolder)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &File{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read handoff %s: %w", path, err)
	}

	var f File
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode handoff %s: %w", path, err)
	}
	return &f, nil
}

// Package returns the recorded artifact path of target.
func (f *File) Package(target string) (string, bool) {
	e, ok := f.LambdaDeploy[target]
	return e.Package, ok
}
