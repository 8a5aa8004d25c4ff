// SPDX-License-Identifier: MPL-2.0

// Package archive writes the deployment zip of a staged package.
//
// Every entry passes through Builder.EntryMode before it is serialized, which
// overrides the mode reported by the source filesystem with Builder.ForcedMode
// (0777 by default). Extra files are selected with doublestar globs relative
// to a base directory; dotfiles match like any other name.
package archive
