// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dag

import (
	"sync"

	"v.io/x/lib/vlog"
)

// watcherBufferSize bounds how far a slow watcher may lag the producer
// before it is detached.
const watcherBufferSize = 256

// CommitWatcher receives ordered commit notifications. A single call may
// batch several commits that were coalesced because they share a Source and
// the watcher fell behind the producer.
type CommitWatcher interface {
	OnNewCommits(commits []Commit, source Source)
}

// OverflowHandler is notified once, at most, when a watcher is detached
// because its buffer overflowed.
type OverflowHandler interface {
	OnOverflow(err error)
}

type dispatchItem struct {
	commit Commit
	source Source
	seq    uint64
}

type subscription struct {
	id      int
	watcher CommitWatcher
	ch      chan dispatchItem
	done    chan struct{}
	once    sync.Once
}

// Subscribe registers a commit watcher. Watcher delivery is sequenced
// with head-set mutation — a watcher observes every commit added after
// Subscribe returns, in insertion order, exactly once.
func (d *DAG) Subscribe(w CommitWatcher) func() {
	d.mu.Lock()
	id := d.nextSub
	d.nextSub++
	sub := &subscription{
		id:      id,
		watcher: w,
		ch:      make(chan dispatchItem, watcherBufferSize),
		done:    make(chan struct{}),
	}
	d.watchers[id] = sub
	d.mu.Unlock()

	go sub.run()

	return func() {
		d.mu.Lock()
		delete(d.watchers, id)
		d.mu.Unlock()
		sub.detach(nil)
	}
}

func (sub *subscription) run() {
	for {
		item, ok := <-sub.ch
		if !ok {
			return
		}
		commits := []Commit{item.commit}
		source := item.source

	drain:
		for {
			select {
			case next, ok := <-sub.ch:
				if !ok {
					break drain
				}
				if next.source != source {
					sub.watcher.OnNewCommits(commits, source)
					commits = []Commit{next.commit}
					source = next.source
					continue
				}
				commits = append(commits, next.commit)
			default:
				break drain
			}
		}
		sub.watcher.OnNewCommits(commits, source)
	}
}

func (sub *subscription) detach(err error) {
	sub.once.Do(func() {
		close(sub.ch)
		if err != nil {
			if oh, ok := sub.watcher.(OverflowHandler); ok {
				oh.OnOverflow(err)
			}
		}
	})
}

// dispatchLocked delivers a newly-added commit to every subscriber. Called
// with d.mu held, immediately after the head set is updated, so that
// mutation-then-delivery ordering holds without a separate sequencing
// mechanism.
func (d *DAG) dispatchLocked(c Commit, source Source, seq uint64) {
	for id, sub := range d.watchers {
		select {
		case sub.ch <- dispatchItem{commit: c, source: source, seq: seq}:
		default:
			vlog.Errorf("dag: watcher %d buffer overflow, detaching", id)
			delete(d.watchers, id)
			go sub.detach(lerrOverflow)
		}
	}
}

var lerrOverflow = overflowErr{}

type overflowErr struct{}

func (overflowErr) Error() string { return "dag: watcher buffer overflow" }
