// SPDX-License-Identifier: MPL-2.0

// Package manifest loads a Node.js project descriptor (package.json) and prepares
// the copy that gets installed in a staging area.
//
// Only the fields the packager needs are typed (name, version, dependencies).
// Every other top-level member is carried through verbatim, so the staged
// package.json differs from the original only in rewritten local-file
// dependency specifiers.
package manifest
