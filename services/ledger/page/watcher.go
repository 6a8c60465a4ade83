// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package page

import (
	"bytes"

	"v.io/v23/context"
	"v.io/x/lib/vlog"

	"v.io/x/ref/services/ledger/dag"
)

// ResultState classifies one PageChange delivery.
type ResultState int

const (
	// Completed means the whole change fit in one delivery.
	Completed ResultState = iota
	// Started means this is the first of a paginated sequence.
	Started
	// Continued means this is a middle page of a paginated sequence.
	Continued
	// CompletedPaginated means this is the final page of a paginated
	// sequence.
	CompletedPaginated
)

func (r ResultState) String() string {
	switch r {
	case Completed:
		return "COMPLETED"
	case Started:
		return "STARTED"
	case Continued:
		return "CONTINUED"
	case CompletedPaginated:
		return "COMPLETED_PAGINATED"
	default:
		return "UNKNOWN"
	}
}

// PageChange is one delivered slice of a commit's delta.
type PageChange struct {
	Entries   []Entry
	Deletions [][]byte
}

// Watcher receives page change notifications relative to the snapshot it
// was registered against. newSnapshot is the snapshot that change should be
// read against going forward.
type Watcher interface {
	OnChange(ctx *context.T, change PageChange, state ResultState, newSnapshot *Snapshot)
}

// watcherBridge adapts a page Watcher to the DAG's commit-level
// CommitWatcher, translating commit batches into content-level PageChange
// deliveries relative to a running baseline.
type watcherBridge struct {
	p        *Page
	w        Watcher
	baseline dag.Commit
}

func (b *watcherBridge) OnNewCommits(commits []dag.Commit, source dag.Source) {
	ctx := b.p.ctx
	for _, c := range commits {
		cs, err := diffCommits(ctx, b.p.d, b.baseline, c)
		if err != nil {
			vlog.Errorf("page: watcher for %s: diff failed: %v", b.p.id, err)
			continue
		}
		b.baseline = c
		deliver(ctx, b.w, cs, newSnapshot(b.p.d, c))
	}
}

func (b *watcherBridge) OnOverflow(err error) {
	vlog.Errorf("page: watcher for %s detached: %v", b.p.id, err)
}

// deliver splits cs into MaxInlineSize-bounded pages, in key order, and
// calls w.OnChange once per page with the appropriate ResultState.
func deliver(ctx *context.T, w Watcher, cs changeSet, snap *Snapshot) {
	total := len(cs.entries) + len(cs.deletions)
	if total == 0 {
		return
	}

	type item struct {
		entry    *Entry
		deletion []byte
	}
	items := make([]item, 0, total)
	ei, di := 0, 0
	for ei < len(cs.entries) || di < len(cs.deletions) {
		switch {
		case di >= len(cs.deletions):
			e := cs.entries[ei]
			items = append(items, item{entry: &e})
			ei++
		case ei >= len(cs.entries):
			items = append(items, item{deletion: cs.deletions[di]})
			di++
		default:
			if bytes.Compare(cs.entries[ei].Key, cs.deletions[di]) <= 0 {
				e := cs.entries[ei]
				items = append(items, item{entry: &e})
				ei++
			} else {
				items = append(items, item{deletion: cs.deletions[di]})
				di++
			}
		}
	}

	var pages []PageChange
	var cur PageChange
	size := 0
	flush := func() {
		if len(cur.Entries) > 0 || len(cur.Deletions) > 0 {
			pages = append(pages, cur)
		}
		cur = PageChange{}
		size = 0
	}
	for _, it := range items {
		var itemSize int
		if it.entry != nil {
			itemSize = len(it.entry.Key) + len(it.entry.Value)
		} else {
			itemSize = len(it.deletion)
		}
		if size > 0 && size+itemSize > MaxInlineSize {
			flush()
		}
		if it.entry != nil {
			cur.Entries = append(cur.Entries, *it.entry)
		} else {
			cur.Deletions = append(cur.Deletions, it.deletion)
		}
		size += itemSize
	}
	flush()

	for i, p := range pages {
		state := Completed
		switch {
		case len(pages) == 1:
			state = Completed
		case i == 0:
			state = Started
		case i == len(pages)-1:
			state = CompletedPaginated
		default:
			state = Continued
		}
		w.OnChange(ctx, p, state, snap)
	}
}
