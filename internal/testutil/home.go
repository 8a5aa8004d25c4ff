// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"runtime"
	"testing"
)

// SetConfigDir points os.UserConfigDir at dir and returns a cleanup function
// restoring the previous value.
//
//   - Windows: sets APPDATA
//   - macOS: sets HOME (config lives in $HOME/Library/Application Support)
//   - others: sets XDG_CONFIG_HOME
//
// Usage:
//
//	t.Cleanup(testutil.SetConfigDir(t, t.TempDir()))
func SetConfigDir(t testing.TB, dir string) func() {
	t.Helper()

	switch runtime.GOOS {
	case "windows":
		return MustSetenv(t, "APPDATA", dir)
	case "darwin":
		return MustSetenv(t, "HOME", dir)
	default:
		return MustSetenv(t, "XDG_CONFIG_HOME", dir)
	}
}
