// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"testing"
)

type (
	// FakeNpmOptions scripts the behavior of the fake package manager.
	FakeNpmOptions struct {
		// Version is printed by "--version". Defaults to "10.2.4".
		Version string
		// VersionExit is the exit status of "--version".
		VersionExit int
		// InstallExit is the exit status of "install". On zero, the install
		// creates node_modules/fake-dep inside its working directory.
		InstallExit int
	}

	// FakeNpm is a shell script standing in for npm.
	FakeNpm struct {
		// Path is the executable to configure as package manager.
		Path string
		// CallLog receives one line per invocation: "<cwd> <args...>".
		CallLog string
	}
)

// FakeNpmScript returns the shell script body for opts. callLog is the file
// the script appends its invocations to.
func FakeNpmScript(opts FakeNpmOptions, callLog string) string {
	version := opts.Version
	if version == "" {
		version = "10.2.4"
	}
	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	fmt.Fprintf(&b, "echo \"$PWD $*\" >> '%s'\n", callLog)
	b.WriteString("case \"$1\" in\n")
	fmt.Fprintf(&b, "--version)\n  echo '%s'\n  exit %d\n  ;;\n", version, opts.VersionExit)
	b.WriteString("install)\n")
	b.WriteString("  echo 'added 1 package in 1s'\n")
	b.WriteString("  echo 'npm WARN config production Use --omit=dev instead.' 1>&2\n")
	if opts.InstallExit != 0 {
		b.WriteString("  echo 'npm ERR! code E404' 1>&2\n")
		fmt.Fprintf(&b, "  exit %d\n", opts.InstallExit)
	} else {
		b.WriteString("  mkdir -p node_modules/fake-dep || exit 1\n")
		b.WriteString("  echo '{\"name\":\"fake-dep\",\"version\":\"0.0.1\"}' > node_modules/fake-dep/package.json\n")
		b.WriteString("  echo 'module.exports = 42;' > node_modules/fake-dep/index.js\n")
		b.WriteString("  exit 0\n")
	}
	b.WriteString("  ;;\nesac\nexit 1\n")
	return b.String()
}

// WriteFakeNpm writes an executable fake npm into dir. The test is skipped on
// Windows, where the script cannot be executed.
func WriteFakeNpm(t testing.TB, dir string, opts FakeNpmOptions) *FakeNpm {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake npm is a POSIX shell script")
	}
	fake := &FakeNpm{
		Path:    filepath.Join(dir, "npm"),
		CallLog: filepath.Join(dir, "npm-calls.log"),
	}
	MustWriteFile(t, fake.Path, FakeNpmScript(opts, fake.CallLog), 0o755)
	return fake
}

// Calls returns the logged invocations, oldest first.
func (f *FakeNpm) Calls(t testing.TB) []string {
	t.Helper()
	data, err := os.ReadFile(f.CallLog)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		t.Fatalf("failed to read call log: %v", err)
	}
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

// WritePackage creates a minimal project folder at dir with a package.json for
// name and version, an index.js, and the given dependencies.
func WritePackage(t testing.TB, dir, name, version string, deps map[string]string) {
	t.Helper()
	var b strings.Builder
	fmt.Fprintf(&b, "{\n  \"name\": %q,\n  \"version\": %q", name, version)
	if deps != nil {
		b.WriteString(",\n  \"dependencies\": {")
		first := true
		for _, k := range sortedKeys(deps) {
			if !first {
				b.WriteString(",")
			}
			first = false
			fmt.Fprintf(&b, "\n    %q: %q", k, deps[k])
		}
		b.WriteString("\n  }")
	}
	b.WriteString("\n}\n")
	MustWriteFile(t, filepath.Join(dir, "package.json"), b.String(), 0o644)
	MustWriteFile(t, filepath.Join(dir, "index.js"), "exports.handler = async () => 'ok';\n", 0o644)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
