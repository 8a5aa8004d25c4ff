// SPDX-License-Identifier: MPL-2.0

package packager

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// ErrPublishFailed is the sentinel error wrapped by PublishError.
var ErrPublishFailed = errors.New("publish failed")

type (
	// Publisher copies finished archives into the dist folder.
	Publisher struct {
		Fs afero.Fs
	}

	// PublishError reports which publication step failed.
	PublishError struct {
		Op   string
		Path string
		Err  error
	}
)

// NewPublisher returns a Publisher on the OS filesystem.
func NewPublisher() *Publisher {
	return &Publisher{Fs: afero.NewOsFs()}
}

// Error implements the error interface.
func (e *PublishError) Error() string {
	return fmt.Sprintf("publish: %s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns ErrPublishFailed and the cause.
func (e *PublishError) Unwrap() []error { return []error{ErrPublishFailed, e.Err} }

// Publish stream-copies intermediate to distFolder/name.zip, creating
// distFolder as needed. Once the destination is synced and closed, teardown
// runs (it destroys the staging area). It returns the destination path and
// its size. A teardown error is returned unchanged alongside the path.
func (p *Publisher) Publish(intermediate, distFolder, name string, teardown func() error) (string, int64, error) {
	if err := p.Fs.MkdirAll(distFolder, 0o755); err != nil {
		return "", 0, &PublishError{Op: "create folder", Path: distFolder, Err: err}
	}

	dst := filepath.Join(distFolder, name+".zip")
	size, err := p.copy(intermediate, dst)
	if err != nil {
		_ = p.Fs.Remove(dst)
		return "", 0, err
	}

	if teardown != nil {
		if err := teardown(); err != nil {
			return dst, size, err
		}
	}
	return dst, size, nil
}

func (p *Publisher) copy(src, dst string) (n int64, err error) {
	in, err := p.Fs.Open(src)
	if err != nil {
		return 0, &PublishError{Op: "open", Path: src, Err: err}
	}
	defer func() { _ = in.Close() }()

	out, err := p.Fs.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, &PublishError{Op: "create", Path: dst, Err: err}
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = &PublishError{Op: "close", Path: dst, Err: closeErr}
		}
	}()

	n, err = io.Copy(out, in)
	if err != nil {
		return 0, &PublishError{Op: "copy", Path: dst, Err: err}
	}
	if err = out.Sync(); err != nil {
		return 0, &PublishError{Op: "sync", Path: dst, Err: err}
	}
	return n, nil
}
