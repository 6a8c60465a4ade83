// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dag implements the page's content-addressed commit DAG: the
// commit log itself, the lazy tree reader, the transactional journal, and
// the commit watcher fan-out. The package generalizes
// services/syncbase/vsync/dag.go's per-object version graph (one DAG per
// store object, nodes keyed by object+version) into a single per-page DAG
// whose nodes are whole-tree commits. The bookkeeping idea is the same — a
// heads set, parent pointers, a graft point used to find a common ancestor
// for conflict resolution — but the unit of versioning is the page's entire
// keyspace rather than one key.
package dag

import (
	"bytes"
	"encoding/hex"
	"sort"

	"v.io/x/ref/services/ledger/object"
)

// PageID identifies a page: a 16-byte value, normally generated by
// NewPageID.
type PageID [16]byte

func (id PageID) String() string {
	return hex.EncodeToString(id[:])
}

// CommitID is the digest over a commit's serialized form.
type CommitID = object.ID

// Priority controls whether a synced entry's object is fetched proactively
// or on demand.
type Priority int

const (
	// Eager objects are fetched proactively on sync.
	Eager Priority = iota
	// Lazy objects are fetched only on demand.
	Lazy
)

func (p Priority) String() string {
	if p == Lazy {
		return "LAZY"
	}
	return "EAGER"
}

// Entry is a single (key, object, priority) triple. Key must be at most 256
// bytes.
type Entry struct {
	Key      []byte
	Object   object.ID
	Priority Priority
}

// MaxKeyLen is the maximum length, in bytes, of an Entry.Key.
const MaxKeyLen = 256

// Source identifies where a newly-observed commit came from, delivered to
// watchers alongside the commit.
type Source int

const (
	// Local commits originate from a journal Commit() on this device.
	Local Source = iota
	// Remote commits are ingested directly from a peer during sync.
	Remote
	// Sync marks a merge commit produced by this device's own merge
	// resolver, whatever caused the divergence it folds.
	Sync
)

func (s Source) String() string {
	switch s {
	case Local:
		return "Local"
	case Remote:
		return "Remote"
	case Sync:
		return "Sync"
	default:
		return "Unknown"
	}
}

// Commit is an immutable page snapshot with parent links forming the DAG.
type Commit struct {
	// ID is the digest over this commit's serialized contents (Parents,
	// RootTree, Timestamp, Generation). It is populated by the DAG when the
	// commit is built or parsed; it is never itself part of what gets
	// digested.
	ID CommitID
	// Parents has length 0 (root commit), 1 (regular), or 2 (merge).
	Parents    []CommitID
	RootTree   object.ID
	Timestamp  int64
	Generation uint64
}

// sortEntries sorts entries in strict lexicographic key order, the order
// invariant the tree's serialized form relies on.
func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i].Key, entries[j].Key) < 0
	})
}
