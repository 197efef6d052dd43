// Package builtin holds the rules compiled into helloscan. All returns fresh
// instances in a fixed order; there is no reflection-based discovery.
package builtin
