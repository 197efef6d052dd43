// Package config loads helloscan configuration from local and global YAML
// files with precedence rules. It is internal; CLI code maps flags and files
// into loader, line source and engine options.
package config
