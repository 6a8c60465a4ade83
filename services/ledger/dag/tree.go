// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dag

import (
	"bytes"
	"sort"

	"v.io/v23/context"

	lerrors "v.io/x/ref/services/ledger/errors"
	"v.io/x/ref/services/ledger/object"
)

// Contents performs a lazy, pull-based, key-ordered, restartable traversal
// of commit's tree, restricted to keys with the given prefix. onEntry is
// invoked once per matching entry in key order; it returns false to stop
// the stream early. If the commit's root tree object is not resolved
// locally (e.g. this page is lazily synced and the tree has not yet been
// fetched), the stream fails with errors.ErrNetworkNeeded rather than
// errors.ErrNotFound.
func (d *DAG) Contents(ctx *context.T, commit Commit, prefix []byte, onEntry func(Entry) bool) error {
	entries, err := d.loadTree(ctx, commit.RootTree)
	if err != nil {
		return err
	}
	start := sort.Search(len(entries), func(i int) bool {
		return bytes.Compare(entries[i].Key, prefix) >= 0
	})
	for _, e := range entries[start:] {
		if !bytes.HasPrefix(e.Key, prefix) {
			// Entries are sorted, so once one no longer shares the prefix
			// none of the rest will either.
			break
		}
		if !onEntry(e) {
			return nil
		}
	}
	return nil
}

// GetEntry performs a point lookup of key in commit's tree.
func (d *DAG) GetEntry(ctx *context.T, commit Commit, key []byte) (Entry, error) {
	entries, err := d.loadTree(ctx, commit.RootTree)
	if err != nil {
		return Entry{}, err
	}
	idx := sort.Search(len(entries), func(i int) bool {
		return bytes.Compare(entries[i].Key, key) >= 0
	})
	if idx < len(entries) && bytes.Equal(entries[idx].Key, key) {
		return entries[idx], nil
	}
	return Entry{}, lerrors.New(lerrors.ErrNotFound, ctx, string(key))
}

func (d *DAG) loadTree(ctx *context.T, treeID object.ID) ([]Entry, error) {
	data, err := d.objects.Get(ctx, treeID)
	if err != nil {
		if lerrors.Is(err, lerrors.ErrNotFound) {
			return nil, lerrors.New(lerrors.ErrNetworkNeeded, ctx, "tree object not resolved locally", treeID.String())
		}
		return nil, err
	}
	return decodeTree(data)
}
