// Package uuidb rebuilds the uuid index that pkg/symcache reads from,
// walking a tree of mounted binaries and recording each Mach-O's UUID
// (SPEC_FULL.md's supplemented uuid-database maintenance feature,
// grounded on original_source/scripts/RebuildUuidDatabase.py).
package uuidb
