// Package kvstore provides key-value implementations of the data storage
// interfaces (repositories) defined in the internal/store package. It owns the
// key layout, the record codecs, and the inverted indexes that make state and
// type lookups a prefix scan.
package kvstore
