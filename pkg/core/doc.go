// Package core provides a small, stable facade over helloscan's internal
// engine for external integrations. It re-exports a narrow API surface so
// other tools can depend on a stable import path without importing the
// internal packages.
//
// Example:
//
//	findings, err := core.Scan(ctx, core.Config{Root: "."})
//	if err != nil { /* handle */ }
//	_ = core.MarshalFindings(os.Stdout, findings)
package core
