// Package engine contains the core scanning logic for helloscan. It builds
// the file inventory, groups enabled rules by prefilter pattern, dispatches
// candidate lines and whole files to rules, and returns structured findings.
// This package is internal; external consumers should use the stable facade
// in pkg/core.
package engine
