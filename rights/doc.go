// Package rights maps role names to sets of named rights.
//
// A Table is built once from a fixed rights list and role assignments and is
// read-only afterwards, so lookups take no locks.
package rights
