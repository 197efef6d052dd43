// Package helloscan provides the command-line interface for helloscan. It
// configures subcommands (scan, rules, runs, baseline, config), resolves
// flags against the YAML configuration, and executes the selected command.
//
// Typical usage from a main package:
//
//	package main
//	import "github.com/helloscan/helloscan/cmd/helloscan"
//	func main() { helloscan.Execute() }
package helloscan
