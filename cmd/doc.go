// Package cmd implements the command-line interface for administering
// the shared observatory state store. It provides a hierarchical command
// structure for schema management and record inspection.
//
// The package is organized into several subpackages:
//
//   - schema: Commands for declaring and verifying the database schema
//   - record: Commands for reading and writing shared state records
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See gtecs -help for a list of all commands.
package cmd
