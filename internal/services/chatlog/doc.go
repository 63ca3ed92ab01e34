// Package chatlog implements the shared, append-only encrypted group log.
//
// Entries are stored as a JSON array under one key per group (or a single
// shared key, see Partition). Author and timestamp stay in the clear; the
// text is encrypted by the group cipher. Reading decrypts every entry in
// parallel and silently omits the ones this member cannot decrypt.
//
// Appends read the current array, add the entry, trim to the retention cap
// and write it back. When the store implements domain.Swapper the write is
// a compare-and-swap retried on conflict, otherwise it is a plain
// overwrite and concurrent writers can lose updates.
package chatlog
