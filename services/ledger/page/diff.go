// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package page

import (
	"bytes"

	"v.io/v23/context"

	"v.io/x/ref/services/ledger/dag"
)

// changeSet is one commit's content delta relative to a prior baseline
// commit, in sorted key order.
type changeSet struct {
	entries   []Entry
	deletions [][]byte
}

func diffCommits(ctx *context.T, d *dag.DAG, from, to dag.Commit) (changeSet, error) {
	var fromEntries, toEntries []dag.Entry
	if err := d.Contents(ctx, from, nil, func(e dag.Entry) bool {
		fromEntries = append(fromEntries, e)
		return true
	}); err != nil {
		return changeSet{}, err
	}
	if err := d.Contents(ctx, to, nil, func(e dag.Entry) bool {
		toEntries = append(toEntries, e)
		return true
	}); err != nil {
		return changeSet{}, err
	}

	var cs changeSet
	i, j := 0, 0
	for i < len(fromEntries) || j < len(toEntries) {
		switch {
		case j >= len(toEntries):
			cs.deletions = append(cs.deletions, fromEntries[i].Key)
			i++
		case i >= len(fromEntries):
			e, err := resolveEntry(ctx, d, toEntries[j])
			if err != nil {
				return changeSet{}, err
			}
			cs.entries = append(cs.entries, e)
			j++
		default:
			cmp := bytes.Compare(fromEntries[i].Key, toEntries[j].Key)
			switch {
			case cmp < 0:
				cs.deletions = append(cs.deletions, fromEntries[i].Key)
				i++
			case cmp > 0:
				e, err := resolveEntry(ctx, d, toEntries[j])
				if err != nil {
					return changeSet{}, err
				}
				cs.entries = append(cs.entries, e)
				j++
			default:
				if fromEntries[i].Object != toEntries[j].Object || fromEntries[i].Priority != toEntries[j].Priority {
					e, err := resolveEntry(ctx, d, toEntries[j])
					if err != nil {
						return changeSet{}, err
					}
					cs.entries = append(cs.entries, e)
				}
				i++
				j++
			}
		}
	}
	return cs, nil
}

func resolveEntry(ctx *context.T, d *dag.DAG, e dag.Entry) (Entry, error) {
	val, err := d.Objects().Get(ctx, e.Object)
	if err != nil {
		return Entry{}, err
	}
	return Entry{Key: e.Key, Value: val, Priority: e.Priority}, nil
}
