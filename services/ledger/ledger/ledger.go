// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ledger implements the per-application namespace that owns a set
// of independent pages: it opens each page's own object/commit/head stores,
// drives its merge resolver, and propagates conflict-resolver-factory
// changes to every page it owns.
package ledger

import (
	"os"
	"path/filepath"
	"sync"

	"v.io/v23/context"
	"v.io/x/lib/vlog"

	"v.io/x/ref/services/ledger/dag"
	lerrors "v.io/x/ref/services/ledger/errors"
	"v.io/x/ref/services/ledger/merge"
	"v.io/x/ref/services/ledger/object"
	"v.io/x/ref/services/ledger/page"
)

// objectCacheSize bounds the in-memory LRU each page's filesystem object
// store keeps over its on-disk blobs.
const objectCacheSize = 4096

type pageHandle struct {
	page     *page.Page
	d        *dag.DAG
	resolver *merge.Resolver
}

// Ledger owns a set of pages sharing one conflict-resolver factory. Pages
// are created lazily and persist under rootDir, one subtree per page:
// pages/<hex(page_id)>/.
type Ledger struct {
	rootDir string
	ctx     *context.T

	mu      sync.Mutex
	pages   map[dag.PageID]*pageHandle
	factory merge.ConflictResolverFactory
}

// Open opens (creating if necessary) a filesystem-backed ledger rooted at
// rootDir.
func Open(ctx *context.T, rootDir string) (*Ledger, error) {
	if err := os.MkdirAll(rootDir, 0755); err != nil {
		return nil, lerrors.New(lerrors.ErrIO, ctx, "mkdir", rootDir, err)
	}
	return &Ledger{
		rootDir: rootDir,
		ctx:     ctx,
		pages:   make(map[dag.PageID]*pageHandle),
	}, nil
}

// OpenEphemeral returns an in-memory ledger suitable for tests and
// short-lived sessions; none of its pages survive process exit.
func OpenEphemeral(ctx *context.T) *Ledger {
	return &Ledger{ctx: ctx, pages: make(map[dag.PageID]*pageHandle)}
}

// GetPage returns the Page for id, opening (and, for a new id, creating)
// its on-disk subtree on first access.
func (l *Ledger) GetPage(ctx *context.T, id dag.PageID) (*page.Page, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if h, ok := l.pages[id]; ok {
		return h.page, nil
	}

	d, err := l.openPageDAG(ctx, id)
	if err != nil {
		return nil, err
	}

	resolver := merge.NewResolver(id, d, l.factory)
	p := page.New(ctx, id, d, resolver)
	l.pages[id] = &pageHandle{page: p, d: d, resolver: resolver}

	// A page opened with an already-diverged head set (e.g. resumed after
	// a crash mid-merge) needs its resolver woken immediately rather than
	// waiting for the next local write.
	resolver.Wake(ctx)

	return p, nil
}

func (l *Ledger) openPageDAG(ctx *context.T, id dag.PageID) (*dag.DAG, error) {
	if l.rootDir == "" {
		return dag.Open(ctx, object.NewMemStore(), object.NewMemStore(), dag.NewMemHeadStore())
	}

	pageDir := filepath.Join(l.rootDir, "pages", id.String())
	objects, err := object.NewFSStore(filepath.Join(pageDir, "objects"), objectCacheSize)
	if err != nil {
		return nil, err
	}
	commits, err := object.NewFSStore(filepath.Join(pageDir, "commits"), objectCacheSize)
	if err != nil {
		return nil, err
	}
	heads, err := dag.NewFSHeadStore(pageDir)
	if err != nil {
		return nil, err
	}
	return dag.Open(ctx, objects, commits, heads)
}

// SetConflictResolverFactory replaces the ledger's conflict-resolver
// factory and signals every currently-open page's resolver to discard its
// cached policy and re-evaluate. A merge already in flight is not
// interrupted: it finishes with the policy and custom resolver it obtained
// from the old factory.
func (l *Ledger) SetConflictResolverFactory(ctx *context.T, factory merge.ConflictResolverFactory) {
	l.mu.Lock()
	l.factory = factory
	handles := make([]*pageHandle, 0, len(l.pages))
	for _, h := range l.pages {
		handles = append(handles, h)
	}
	l.mu.Unlock()

	for _, h := range handles {
		h.resolver.SetFactory(factory)
		h.resolver.Wake(ctx)
	}
	vlog.VI(1).Infof("ledger: conflict resolver factory replaced, %d pages re-evaluating", len(handles))
}

// ClosePage tears down a page's watchers and resolver and forgets it; a
// later GetPage for the same id reopens its on-disk state from scratch.
func (l *Ledger) ClosePage(id dag.PageID) {
	l.mu.Lock()
	h, ok := l.pages[id]
	if ok {
		delete(l.pages, id)
	}
	l.mu.Unlock()
	if !ok {
		return
	}
	h.page.Close()
	h.resolver.Destroy()
}
