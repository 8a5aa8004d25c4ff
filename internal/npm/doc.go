// SPDX-License-Identifier: MPL-2.0

// Package npm runs the external package manager: the version query behind the
// readiness precondition and the production-only dependency install inside a
// staging area.
//
// Subprocess output is forwarded line by line to a charmbracelet/log logger
// (stdout at debug level, stderr at warn level) and is otherwise not
// interpreted, except for the version query whose stdout is captured.
package npm
