// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package page

import (
	"sync"

	"v.io/v23/context"
	"v.io/x/lib/vlog"

	"v.io/x/ref/services/ledger/dag"
	"v.io/x/ref/services/ledger/merge"
)

// Page is the wire-facing facade over one page's DAG: puts, deletes,
// explicit transactions, and snapshot/watcher creation. A Page owns at most
// one explicit client transaction at a time; put/delete issued without one
// are shorthand for start→op→commit.
type Page struct {
	id       dag.PageID
	d        *dag.DAG
	resolver *merge.Resolver
	ctx      *context.T // background context used by the watcher bridge

	mu        sync.Mutex
	txn       *dag.Journal
	unwatches []func()
	closed    bool
}

// New wraps d (already Open'd) as a Page identified by id, with resolver
// woken after every local commit (resolver may be nil for a page with no
// merge policy configured yet).
func New(ctx *context.T, id dag.PageID, d *dag.DAG, resolver *merge.Resolver) *Page {
	return &Page{id: id, d: d, resolver: resolver, ctx: ctx}
}

// GetId returns the page's identifier.
func (p *Page) GetId() dag.PageID { return p.id }

// Put stores value under key at Eager priority.
func (p *Page) Put(ctx *context.T, key, value []byte) Status {
	return p.PutWithPriority(ctx, key, value, dag.Eager)
}

// PutWithPriority stores value under key at the given priority.
func (p *Page) PutWithPriority(ctx *context.T, key, value []byte, priority dag.Priority) Status {
	objID, err := p.d.Objects().Put(ctx, value)
	if err != nil {
		return statusForGeneric(err)
	}
	return p.PutReference(ctx, key, objID, priority)
}

// PutReference stages key to point at the existing object objID.
func (p *Page) PutReference(ctx *context.T, key []byte, objID dag.CommitID, priority dag.Priority) Status {
	p.mu.Lock()
	if p.txn != nil {
		err := p.txn.Put(key, objID, priority)
		p.mu.Unlock()
		if err != nil {
			return statusForGeneric(err)
		}
		return OK
	}
	p.mu.Unlock()
	return p.runImplicit(ctx, func(j *dag.Journal) error {
		return j.Put(key, objID, priority)
	})
}

// Delete stages removal of key.
func (p *Page) Delete(ctx *context.T, key []byte) Status {
	p.mu.Lock()
	if p.txn != nil {
		err := p.txn.Delete(key)
		p.mu.Unlock()
		if err != nil {
			return statusForGeneric(err)
		}
		return OK
	}
	p.mu.Unlock()
	return p.runImplicit(ctx, func(j *dag.Journal) error {
		return j.Delete(key)
	})
}

// StartTransaction opens an explicit transaction against the page's
// current head. It fails with InvalidArgument if a transaction is already
// open. If the page's head set has diverged pending a merge, the
// transaction builds on the deterministically "current" head rather than
// blocking.
func (p *Page) StartTransaction(ctx *context.T) Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.txn != nil {
		return InvalidArgument
	}
	base, status := p.uniqueHead(ctx)
	if status != OK {
		return status
	}
	p.txn = p.d.StartTransaction(base)
	return OK
}

// Commit finalizes the open explicit transaction.
func (p *Page) Commit(ctx *context.T) Status {
	p.mu.Lock()
	txn := p.txn
	p.txn = nil
	p.mu.Unlock()
	if txn == nil {
		return InvalidArgument
	}
	if _, err := txn.Commit(ctx, dag.Local); err != nil {
		return statusForGeneric(err)
	}
	p.wakeResolver(ctx)
	return OK
}

// Rollback discards the open explicit transaction.
func (p *Page) Rollback(ctx *context.T) Status {
	p.mu.Lock()
	txn := p.txn
	p.txn = nil
	p.mu.Unlock()
	if txn == nil {
		return InvalidArgument
	}
	if err := txn.Rollback(); err != nil {
		return statusForGeneric(err)
	}
	return OK
}

// GetSnapshot captures the page's current unique head and, if w is
// non-nil, subscribes it to subsequent commits relative to that baseline.
func (p *Page) GetSnapshot(ctx *context.T, w Watcher) (Status, *Snapshot) {
	base, status := p.uniqueHead(ctx)
	if status != OK {
		return status, nil
	}
	snap := newSnapshot(p.d, base)
	if w != nil {
		bridge := &watcherBridge{p: p, w: w, baseline: base}
		unsubscribe := p.d.Subscribe(bridge)
		p.mu.Lock()
		p.unwatches = append(p.unwatches, unsubscribe)
		p.mu.Unlock()
	}
	return OK, snap
}

// Close cancels every outstanding watcher on the page. An explicit
// transaction in flight when Close is called is left uncommitted; the caller
// is expected to have already resolved it.
func (p *Page) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	unwatches := p.unwatches
	p.unwatches = nil
	p.mu.Unlock()
	for _, unwatch := range unwatches {
		unwatch()
	}
}

// SetResolver installs or replaces the page's merge resolver, the one woken
// after every local commit.
func (p *Page) SetResolver(r *merge.Resolver) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resolver = r
}

func (p *Page) wakeResolver(ctx *context.T) {
	p.mu.Lock()
	r := p.resolver
	p.mu.Unlock()
	if r != nil {
		r.Wake(ctx)
	}
}

func (p *Page) runImplicit(ctx *context.T, op func(*dag.Journal) error) Status {
	p.mu.Lock()
	base, status := p.uniqueHeadLocked(ctx)
	p.mu.Unlock()
	if status != OK {
		return status
	}
	j := p.d.StartTransaction(base)
	if err := op(j); err != nil {
		j.Rollback()
		return statusForGeneric(err)
	}
	if _, err := j.Commit(ctx, dag.Local); err != nil {
		return statusForGeneric(err)
	}
	p.wakeResolver(ctx)
	return OK
}

// uniqueHead returns the commit that new operations should build on top
// of: the page's sole head, or, while a merge is still converging a
// diverged head set, the deterministically "current" head — the same
// head GetHeads orders first. Client reads and writes are never blocked
// on the merge resolver; they simply proceed against whichever head is
// current and the resolver folds the rest in later.
func (p *Page) uniqueHead(ctx *context.T) (dag.Commit, Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.uniqueHeadLocked(ctx)
}

func (p *Page) uniqueHeadLocked(ctx *context.T) (dag.Commit, Status) {
	heads, err := p.d.GetHeads(ctx)
	if err != nil {
		return dag.Commit{}, statusForGeneric(err)
	}
	if len(heads) == 0 {
		return dag.Commit{}, InternalError
	}
	if len(heads) > 1 {
		vlog.VI(2).Infof("page: %s has %d heads, proceeding against the current one", p.id, len(heads))
	}
	return heads[0], OK
}
