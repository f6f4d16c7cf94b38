// Package ir defines the deployment graph: modules, futures and their
// arguments, plus the constrained value model (IRValue) used for arguments,
// results and strategy configs.
//
// ir sits at the bottom of the dependency graph; it imports only the
// artifacts package. Two invariants hold throughout:
//   - no float values; integers beyond int64 are decimal strings
//   - structural comparison always goes through MarshalCanonical (RFC 8785)
package ir
