// Package symcache implements the reader-side UUID-to-binary and
// UUID-to-symbol filesystem indices and the concurrency-safe local
// binary/symbol cache described in spec.md §4.6-§4.7.
package symcache
