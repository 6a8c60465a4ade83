// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dag

import (
	"container/heap"

	"v.io/v23/context"
)

// genHeap is a max-heap of commits ordered by generation, breaking ties by
// id so two walks over the same DAG always expand commits in the same
// order.
type genHeap []Commit

func (h genHeap) Len() int { return len(h) }
func (h genHeap) Less(i, j int) bool {
	if h[i].Generation != h[j].Generation {
		return h[i].Generation > h[j].Generation
	}
	return lessID(h[i].ID, h[j].ID)
}
func (h genHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *genHeap) Push(x interface{}) { *h = append(*h, x.(Commit)) }
func (h *genHeap) Pop() interface{} {
	old := *h
	n := len(old)
	c := old[n-1]
	*h = old[:n-1]
	return c
}

// FindLCA returns the lowest common ancestor of left and right: left's
// full ancestor set paired with a generation-ordered walk outward from
// right, in the spirit of vsync/dag.go's findBreadthFirst for
// per-object-version DAGs, generalized here to whole-page commits. If
// left and right share no ancestor — two pages independently seeded
// before ever syncing — the synthetic empty-tree root is returned as the
// fallback ancestor, so that a 3-way diff against it degenerates to
// "everything in left/right is new".
func (d *DAG) FindLCA(ctx *context.T, left, right Commit) (Commit, error) {
	if left.ID == right.ID {
		return left, nil
	}

	leftAncestors, err := d.ancestorSet(ctx, left)
	if err != nil {
		return Commit{}, err
	}
	if _, ok := leftAncestors[right.ID]; ok {
		return right, nil
	}

	// Walk from right, always expanding the highest-generation unvisited
	// commit next via a generation-ordered heap rather than a plain
	// edge-distance BFS: once merge commits are in the DAG, a parent edge
	// no longer means "one generation back" (a merge commit's two parents
	// can sit at very different generations), so edge distance and
	// generation order can disagree. Expanding strictly by generation
	// guarantees the first hit is the highest-generation (closest) common
	// ancestor.
	visited := make(map[CommitID]bool)
	h := &genHeap{right}
	visited[right.ID] = true
	for h.Len() > 0 {
		c := heap.Pop(h).(Commit)
		if anc, ok := leftAncestors[c.ID]; ok {
			return anc, nil
		}
		for _, pid := range c.Parents {
			if visited[pid] {
				continue
			}
			visited[pid] = true
			p, err := d.GetCommit(ctx, pid)
			if err != nil {
				return Commit{}, err
			}
			heap.Push(h, p)
		}
	}

	return Commit{Parents: nil, RootTree: EmptyTreeID(), Timestamp: 0, Generation: 0}, nil
}

func (d *DAG) ancestorSet(ctx *context.T, start Commit) (map[CommitID]Commit, error) {
	set := map[CommitID]Commit{start.ID: start}
	frontier := []Commit{start}
	for len(frontier) > 0 {
		var next []Commit
		for _, c := range frontier {
			for _, pid := range c.Parents {
				if _, ok := set[pid]; ok {
					continue
				}
				p, err := d.GetCommit(ctx, pid)
				if err != nil {
					return nil, err
				}
				set[pid] = p
				next = append(next, p)
			}
		}
		frontier = next
	}
	return set, nil
}
