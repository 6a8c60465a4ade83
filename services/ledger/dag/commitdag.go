// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dag

import (
	"sort"
	"sync"

	"v.io/v23/context"
	"v.io/x/lib/vlog"

	lerrors "v.io/x/ref/services/ledger/errors"
	"v.io/x/ref/services/ledger/object"
)

// DAG is one page's commit graph: the set of reachable commits and the
// current head set. It is single-threaded-cooperative per page — callers are
// expected to serialize access to one DAG the way a page's task runner
// would; DAG itself still guards its own maps with a mutex because the
// object/commit stores underneath may be shared across pages.
type DAG struct {
	mu sync.Mutex

	objects object.Store // tree and value blobs
	commits object.Store // serialized commits, keyed by CommitID
	heads   HeadStore

	insertSeq uint64
	watchers  map[int]*subscription
	nextSub   int
}

// Open builds a DAG over the given object/commit/head stores. If the head
// store is empty (a brand-new page), the empty-tree root commit is created
// and added as the sole head.
func Open(ctx *context.T, objects, commits object.Store, heads HeadStore) (*DAG, error) {
	d := &DAG{
		objects:  objects,
		commits:  commits,
		heads:    heads,
		watchers: make(map[int]*subscription),
	}
	existing, err := heads.List()
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return d, nil
	}

	root := Commit{Parents: nil, RootTree: EmptyTreeID(), Timestamp: 0, Generation: 0}
	data, err := encodeCommit(root)
	if err != nil {
		return nil, lerrors.New(lerrors.ErrIO, ctx, "encode root commit", err)
	}
	if _, err := d.AddCommit(ctx, data, Local); err != nil {
		return nil, err
	}
	return d, nil
}

// Objects returns the object store backing tree and value blobs.
func (d *DAG) Objects() object.Store { return d.objects }

// AddCommit parses a serialized commit, validates its parents and
// generation, atomically inserts it and updates the head set, and
// dispatches it to watchers. It returns the commit's ID. Re-adding a commit
// that already exists is a no-op that returns its existing ID: equal
// contents mean equal id mean deduplicated.
func (d *DAG) AddCommit(ctx *context.T, serialized []byte, source Source) (CommitID, error) {
	c, err := decodeCommit(serialized)
	if err != nil {
		return object.ID{}, lerrors.New(lerrors.ErrIllegalState, ctx, "malformed commit", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if has, err := d.commits.Has(ctx, c.ID); err != nil {
		return object.ID{}, err
	} else if has {
		return c.ID, nil
	}

	if len(c.Parents) > 2 {
		return object.ID{}, lerrors.New(lerrors.ErrIllegalState, ctx, "commit has more than 2 parents", c.ID.String())
	}

	if len(c.Parents) == 0 {
		if c.Generation != 0 {
			return object.ID{}, lerrors.New(lerrors.ErrIllegalState, ctx, "root commit must have generation 0", c.ID.String())
		}
	} else {
		var maxParentGen uint64
		haveMax := false
		for _, p := range c.Parents {
			parent, err := d.getCommitLocked(ctx, p)
			if err != nil {
				return object.ID{}, lerrors.New(lerrors.ErrIllegalState, ctx, "commit references unknown parent", p.String())
			}
			if !haveMax || parent.Generation > maxParentGen {
				maxParentGen = parent.Generation
				haveMax = true
			}
		}
		if c.Generation != maxParentGen+1 {
			return object.ID{}, lerrors.New(lerrors.ErrIllegalState, ctx, "commit generation inconsistent with parents", c.ID.String())
		}
	}

	if _, err := d.commits.Put(ctx, serialized); err != nil {
		return object.ID{}, err
	}

	if err := d.heads.Add(c.ID); err != nil {
		return object.ID{}, err
	}
	for _, p := range c.Parents {
		if err := d.heads.Remove(p); err != nil {
			return object.ID{}, err
		}
	}

	d.insertSeq++
	seq := d.insertSeq
	vlog.VI(2).Infof("dag: added commit %s gen=%d parents=%v source=%s seq=%d", c.ID, c.Generation, c.Parents, source, seq)
	d.dispatchLocked(c, source, seq)

	return c.ID, nil
}

// GetCommit returns the commit record for id.
func (d *DAG) GetCommit(ctx *context.T, id CommitID) (Commit, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.getCommitLocked(ctx, id)
}

func (d *DAG) getCommitLocked(ctx *context.T, id CommitID) (Commit, error) {
	data, err := d.commits.Get(ctx, id)
	if err != nil {
		return Commit{}, err
	}
	return decodeCommit(data)
}

// GetHeads returns the current heads, ordered deterministically by
// (generation desc, timestamp desc, id asc).
func (d *DAG) GetHeads(ctx *context.T) ([]Commit, error) {
	d.mu.Lock()
	ids, err := d.heads.List()
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out := make([]Commit, 0, len(ids))
	for _, id := range ids {
		c, err := d.GetCommit(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	sortHeads(out)
	return out, nil
}

func sortHeads(heads []Commit) {
	sort.Slice(heads, func(i, j int) bool {
		a, b := heads[i], heads[j]
		if a.Generation != b.Generation {
			return a.Generation > b.Generation
		}
		if a.Timestamp != b.Timestamp {
			return a.Timestamp > b.Timestamp
		}
		return lessID(a.ID, b.ID)
	})
}

func lessID(a, b object.ID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
