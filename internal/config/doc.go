// SPDX-License-Identifier: MPL-2.0

// Package config handles lambdapack configuration using Viper with CUE as the file format.
//
// The configuration file is looked up as ./lambdapack.cue, then
// <user config dir>/lambdapack/config.cue; --config selects a file exclusively.
// Files are validated against the embedded schema (config_schema.cue) before
// their values are merged over the built-in defaults. Environment variables
// prefixed with LAMBDAPACK_ override file values (LAMBDAPACK_DEFAULTS_DIST_FOLDER).
//
// A target's options are the built-in defaults, overlaid by the "defaults"
// block, overlaid by the target's own block.
package config
