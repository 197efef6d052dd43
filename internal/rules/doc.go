// Package rules defines the contract between the scan engine and matching
// rules: the Rule and FileScanner interfaces, the ScanContext handed to every
// call, and the Registry that owns rule instances for one invocation.
//
// Rule sources live in sub-packages: builtin (compiled-in rules),
// declarative (YAML-defined regex rules) and script (sandboxed Lua rules).
package rules
