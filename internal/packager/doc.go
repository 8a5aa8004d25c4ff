// SPDX-License-Identifier: MPL-2.0

// Package packager orchestrates one packaging run: precondition check,
// manifest resolution, staging, dependency install, archive construction and
// publication into the dist folder. Every step gates the next; the first
// failure aborts the run and is returned as an *issue.ActionableError.
//
// A Packager is long-lived: the readiness check it owns is performed once and
// reused by every later run, including concurrent ones started by RunAll.
package packager
