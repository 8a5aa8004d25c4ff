// SPDX-License-Identifier: MPL-2.0

// Package testutil provides helpers for tests that handle errors
// appropriately, reducing boilerplate and ensuring consistent error handling.
//
// Besides the Must* helpers it offers a controllable clock, a throwaway
// package-folder fixture, and a scripted stand-in for the npm executable.
package testutil
