// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package merge

import (
	"bytes"

	"v.io/v23/context"

	"v.io/x/ref/services/ledger/dag"
)

// diffAgainstCommon returns side's changes relative to common, keyed in
// sorted key order. Both trees are read in full since pages are expected to
// be small enough to diff in memory — the same assumption vsync/dag.go makes
// when it loads a whole generation range to find conflicting mutations.
func diffAgainstCommon(ctx *context.T, d *dag.DAG, common, side dag.Commit) ([]Change, error) {
	var commonEntries, sideEntries []dag.Entry
	if err := d.Contents(ctx, common, nil, func(e dag.Entry) bool {
		commonEntries = append(commonEntries, e)
		return true
	}); err != nil {
		return nil, err
	}
	if err := d.Contents(ctx, side, nil, func(e dag.Entry) bool {
		sideEntries = append(sideEntries, e)
		return true
	}); err != nil {
		return nil, err
	}

	var changes []Change
	i, j := 0, 0
	for i < len(commonEntries) || j < len(sideEntries) {
		switch {
		case j >= len(sideEntries):
			// Key present in common, absent from side: deleted.
			changes = append(changes, Change{Key: commonEntries[i].Key, Kind: ChangedDelete})
			i++
		case i >= len(commonEntries):
			changes = append(changes, Change{
				Key:      sideEntries[j].Key,
				Kind:     ChangedPut,
				Object:   sideEntries[j].Object,
				Priority: sideEntries[j].Priority,
			})
			j++
		default:
			cmp := bytes.Compare(commonEntries[i].Key, sideEntries[j].Key)
			switch {
			case cmp < 0:
				changes = append(changes, Change{Key: commonEntries[i].Key, Kind: ChangedDelete})
				i++
			case cmp > 0:
				changes = append(changes, Change{
					Key:      sideEntries[j].Key,
					Kind:     ChangedPut,
					Object:   sideEntries[j].Object,
					Priority: sideEntries[j].Priority,
				})
				j++
			default:
				if commonEntries[i].Object != sideEntries[j].Object {
					changes = append(changes, Change{
						Key:      sideEntries[j].Key,
						Kind:     ChangedPut,
						Object:   sideEntries[j].Object,
						Priority: sideEntries[j].Priority,
					})
				}
				i++
				j++
			}
		}
	}
	return changes, nil
}
