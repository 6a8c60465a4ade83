// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package page

import (
	"bytes"

	"v.io/v23/context"

	"v.io/x/ref/services/ledger/dag"
	lerrors "v.io/x/ref/services/ledger/errors"
)

// MaxInlineSize bounds the total size, in bytes, of the keys (GetKeys) or
// keys plus values (GetEntries) a single response carries before it is
// paginated.
const MaxInlineSize = 64 * 1024

// KeyValue is one key's resolved contents.
type KeyValue struct {
	Key   []byte
	Value []byte
}

// Entry pairs a key with its priority annotation, returned by GetEntries.
type Entry struct {
	Key      []byte
	Value    []byte
	Priority dag.Priority
}

// Snapshot is a read-only, immutable view of a page pinned to one commit.
// It never observes writes made after it was captured.
type Snapshot struct {
	d      *dag.DAG
	commit dag.Commit
}

func newSnapshot(d *dag.DAG, commit dag.Commit) *Snapshot {
	return &Snapshot{d: d, commit: commit}
}

// Commit returns the commit this snapshot is pinned to.
func (s *Snapshot) Commit() dag.Commit { return s.commit }

// Get resolves key to its full value.
func (s *Snapshot) Get(ctx *context.T, key []byte) (Status, []byte) {
	e, err := s.d.GetEntry(ctx, s.commit, key)
	if err != nil {
		return statusForKeyLookup(err), nil
	}
	val, err := s.d.Objects().Get(ctx, e.Object)
	if err != nil {
		return statusForObjectFetch(err), nil
	}
	return OK, val
}

// GetPartial resolves a byte range of key's value.
func (s *Snapshot) GetPartial(ctx *context.T, key []byte, offset, maxSize int) (Status, []byte) {
	e, err := s.d.GetEntry(ctx, s.commit, key)
	if err != nil {
		return statusForKeyLookup(err), nil
	}
	val, err := s.d.Objects().Get(ctx, e.Object)
	if err != nil {
		return statusForObjectFetch(err), nil
	}
	if offset < 0 || offset > len(val) {
		return InvalidArgument, nil
	}
	end := offset + maxSize
	if maxSize < 0 || end > len(val) {
		end = len(val)
	}
	return OK, val[offset:end]
}

// GetKeys lists keys with the given prefix, in sorted order, starting
// at token (inclusive) if non-nil. It returns PartialResult plus a non-nil
// continuation token — equal to the first excluded key — if the response
// would exceed MaxInlineSize.
func (s *Snapshot) GetKeys(ctx *context.T, prefix, token []byte) (Status, [][]byte, []byte) {
	var keys [][]byte
	size := 0
	var next []byte

	err := s.d.Contents(ctx, s.commit, prefix, func(e dag.Entry) bool {
		if token != nil && bytes.Compare(e.Key, token) < 0 {
			return true
		}
		if size+len(e.Key) > MaxInlineSize {
			next = e.Key
			return false
		}
		keys = append(keys, e.Key)
		size += len(e.Key)
		return true
	})
	if err != nil {
		return statusForGeneric(err), nil, nil
	}
	if next != nil {
		return PartialResult, keys, next
	}
	return OK, keys, nil
}

// GetEntries lists (key, value, priority) entries with the given prefix,
// in sorted order, starting at token (inclusive) if non-nil. An entry whose
// object cannot be resolved (errors.ErrNotFound) short-circuits the whole
// batch with ReferenceNotFound rather than skipping it.
func (s *Snapshot) GetEntries(ctx *context.T, prefix, token []byte) (Status, []Entry, []byte) {
	var entries []Entry
	size := 0
	var next []byte
	var fetchErr error

	err := s.d.Contents(ctx, s.commit, prefix, func(e dag.Entry) bool {
		if token != nil && bytes.Compare(e.Key, token) < 0 {
			return true
		}
		val, err := s.d.Objects().Get(ctx, e.Object)
		if err != nil {
			fetchErr = err
			return false
		}
		if size+len(e.Key)+len(val) > MaxInlineSize {
			next = e.Key
			return false
		}
		entries = append(entries, Entry{Key: e.Key, Value: val, Priority: e.Priority})
		size += len(e.Key) + len(val)
		return true
	})
	if err != nil {
		return statusForGeneric(err), nil, nil
	}
	if fetchErr != nil {
		if lerrors.Is(fetchErr, lerrors.ErrNotFound) {
			return ReferenceNotFound, nil, nil
		}
		return statusForObjectFetch(fetchErr), nil, nil
	}
	if next != nil {
		return PartialResult, entries, next
	}
	return OK, entries, nil
}
