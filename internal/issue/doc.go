// SPDX-License-Identifier: MPL-2.0

// Package issue provides actionable error handling with user-friendly messages.
//
// Every fatal packaging failure is classified by an Id (precondition, manifest,
// staging, install, archive, publish, config). The CLI renders the concise
// ActionableError message and, in verbose mode, the Markdown help registered
// for the Id.
package issue
