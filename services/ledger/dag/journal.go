// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dag

import (
	"sync"
	"time"

	"v.io/v23/context"

	lerrors "v.io/x/ref/services/ledger/errors"
	"v.io/x/ref/services/ledger/object"
)

type opKind int

const (
	opPut opKind = iota
	opDelete
)

type pendingOp struct {
	kind     opKind
	object   object.ID
	priority Priority
}

// Journal is a mutable staging area bound to exactly one base commit. It
// is owned by the client handle that created it. Calls on one Journal from
// several goroutines are serialized by an internal mutex and all take
// effect; concurrent use is not rejected.
type Journal struct {
	ID   JournalID
	Base Commit

	dag *DAG

	mu           sync.Mutex
	ops          map[string]pendingOp
	secondParent *Commit
	committed    bool
	discarded    bool
}

// StartTransaction creates a journal staged on top of base.
func (d *DAG) StartTransaction(base Commit) *Journal {
	return &Journal{
		ID:   NewJournalID(),
		Base: base,
		dag:  d,
		ops:  make(map[string]pendingOp),
	}
}

func (j *Journal) checkOpen() error {
	if j.committed {
		return lerrors.New(lerrors.ErrInvalidArgument, nil, "journal already committed", j.ID)
	}
	if j.discarded {
		return lerrors.New(lerrors.ErrInvalidArgument, nil, "journal already rolled back", j.ID)
	}
	return nil
}

// Put stages a write of key to objID at the given priority. Later writes to
// the same key override earlier ones within the same journal.
func (j *Journal) Put(key []byte, objID object.ID, priority Priority) error {
	if len(key) > MaxKeyLen {
		return lerrors.New(lerrors.ErrInvalidArgument, nil, "key exceeds max length", len(key))
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.checkOpen(); err != nil {
		return err
	}
	j.ops[string(key)] = pendingOp{kind: opPut, object: objID, priority: priority}
	return nil
}

// Delete stages a deletion of key. A delete followed by a put of the same
// key resurrects it, and vice versa — both are plain map overwrites, so the
// journal only ever remembers the last operation per key.
func (j *Journal) Delete(key []byte) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.checkOpen(); err != nil {
		return err
	}
	j.ops[string(key)] = pendingOp{kind: opDelete}
	return nil
}

// AddParent turns this journal into a merge journal by recording a second
// parent commit. It must be called before Commit. The merge resolver is the
// only caller; ordinary transactions never call it.
func (j *Journal) AddParent(other Commit) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.checkOpen(); err != nil {
		return err
	}
	j.secondParent = &other
	return nil
}

// Rollback discards the journal; its staged writes never become a commit.
func (j *Journal) Rollback() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.checkOpen(); err != nil {
		return err
	}
	j.discarded = true
	j.ops = nil
	return nil
}

// commitTimestamp picks the new commit's timestamp. An ordinary commit
// (second == nil) stamps the current wall-clock time. A merge commit
// derives its timestamp from its two parents instead, so that merging the
// same pair under the same strategy twice — e.g. after a retry — produces
// byte-identical commit content and therefore the same commit_id, letting
// AddCommit's content-addressed dedup collapse the two attempts.
func commitTimestamp(base Commit, second *Commit) int64 {
	if second == nil {
		return time.Now().UnixNano()
	}
	ts := base.Timestamp
	if second.Timestamp > ts {
		ts = second.Timestamp
	}
	return ts
}

// Commit serializes a new tree by applying the journal's staged
// operations to the base tree, writes the tree and commit objects, and
// adds the commit to the DAG with Base — and, if AddParent was called, a
// second parent — as its parents. A commit of an empty journal still
// produces a new commit, so that every explicit Commit() call is
// observable by watchers exactly once, with no special case for a no-op
// journal.
func (j *Journal) Commit(ctx *context.T, source Source) (CommitID, error) {
	j.mu.Lock()
	if err := j.checkOpen(); err != nil {
		j.mu.Unlock()
		return object.ID{}, err
	}
	ops := j.ops
	second := j.secondParent
	j.committed = true
	j.mu.Unlock()

	baseEntries, err := j.dag.loadTree(ctx, j.Base.RootTree)
	if err != nil {
		return object.ID{}, err
	}

	merged := make(map[string]Entry, len(baseEntries)+len(ops))
	for _, e := range baseEntries {
		merged[string(e.Key)] = e
	}
	for key, op := range ops {
		switch op.kind {
		case opPut:
			merged[key] = Entry{Key: []byte(key), Object: op.object, Priority: op.priority}
		case opDelete:
			delete(merged, key)
		}
	}

	newEntries := make([]Entry, 0, len(merged))
	for _, e := range merged {
		newEntries = append(newEntries, e)
	}
	sortEntries(newEntries)

	treeData, err := encodeTree(newEntries)
	if err != nil {
		return object.ID{}, err
	}
	treeID, err := j.dag.objects.Put(ctx, treeData)
	if err != nil {
		return object.ID{}, err
	}

	parents := []CommitID{j.Base.ID}
	maxGen := j.Base.Generation
	if second != nil {
		parents = append(parents, second.ID)
		if second.Generation > maxGen {
			maxGen = second.Generation
		}
	}
	newCommit := Commit{
		Parents:    parents,
		RootTree:   treeID,
		Timestamp:  commitTimestamp(j.Base, second),
		Generation: maxGen + 1,
	}
	commitData, err := encodeCommit(newCommit)
	if err != nil {
		return object.ID{}, err
	}
	return j.dag.AddCommit(ctx, commitData, source)
}
