// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dag

import (
	"v.io/v23/vom"

	"v.io/x/ref/services/ledger/object"
)

// wireCommit is the serialized form digested to produce a CommitID. It
// deliberately excludes the ID field itself (a commit cannot digest its own
// identifier).
type wireCommit struct {
	Parents    []object.ID
	RootTree   object.ID
	Timestamp  int64
	Generation uint64
}

// wireTree is the serialized form of a Tree object. Entries are always
// stored in sorted key order so that two trees with identical contents
// always serialize identically — required for commit ID determinism.
type wireTree struct {
	Entries []Entry
}

// encodeCommit marshals a commit's content (sans ID) the way
// services/syncbase marshals everything that crosses a store boundary: via
// v.io/v23/vom, the Vanadium object marshaller. This keeps the on-disk
// encoder swappable — the DAG only ever calls through this file.
func encodeCommit(c Commit) ([]byte, error) {
	w := wireCommit{Parents: c.Parents, RootTree: c.RootTree, Timestamp: c.Timestamp, Generation: c.Generation}
	return vom.Encode(w)
}

// decodeCommit parses bytes produced by encodeCommit and computes the
// resulting Commit's ID from those same bytes.
func decodeCommit(data []byte) (Commit, error) {
	var w wireCommit
	if err := vom.Decode(data, &w); err != nil {
		return Commit{}, err
	}
	return Commit{
		ID:         object.Digest(data),
		Parents:    w.Parents,
		RootTree:   w.RootTree,
		Timestamp:  w.Timestamp,
		Generation: w.Generation,
	}, nil
}

// encodeTree marshals a sorted entry list into its object form.
func encodeTree(entries []Entry) ([]byte, error) {
	cp := make([]Entry, len(entries))
	copy(cp, entries)
	sortEntries(cp)
	return vom.Encode(wireTree{Entries: cp})
}

// decodeTree parses bytes produced by encodeTree.
func decodeTree(data []byte) ([]Entry, error) {
	var w wireTree
	if err := vom.Decode(data, &w); err != nil {
		return nil, err
	}
	return w.Entries, nil
}

// emptyTreeID is the ID of the canonical empty tree (no entries), shared by
// every page's root commit and used as the conceptual common ancestor when
// two heads have disjoint histories.
var emptyTreeID object.ID

func init() {
	data, err := encodeTree(nil)
	if err != nil {
		panic("dag: failed to encode empty tree: " + err.Error())
	}
	emptyTreeID = object.Digest(data)
}

// EmptyTreeID returns the well-known ID of the empty tree.
func EmptyTreeID() object.ID {
	return emptyTreeID
}
