// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package merge

import (
	"v.io/v23/context"
	"v.io/x/lib/vlog"

	"v.io/x/ref/services/ledger/dag"
	lerrors "v.io/x/ref/services/ledger/errors"
	"v.io/x/ref/services/ledger/object"
)

// Strategy merges left and right against their common ancestor by staging
// the result into journal. It never calls journal.Commit — the resolver does
// that once, after optionally attaching the second parent via
// journal.AddParent.
type Strategy interface {
	Merge(ctx *context.T, d *dag.DAG, left, right, common dag.Commit, journal *dag.Journal) error
}

// lastOneWins merges left and right as a union of their changes against
// common: every key changed only on one side survives, and a key changed on
// both sides is won by left, the side the resolver selects as the winner of
// the deterministic head order (generation desc, timestamp desc, id asc).
type lastOneWins struct{}

// LastOneWins returns the strategy that unions left's and right's changes,
// breaking ties on a key changed on both sides in left's favor.
func LastOneWins() Strategy { return lastOneWins{} }

func (lastOneWins) Merge(ctx *context.T, d *dag.DAG, left, right, common dag.Commit, journal *dag.Journal) error {
	rightChanges, err := diffAgainstCommon(ctx, d, common, right)
	if err != nil {
		return err
	}
	if len(rightChanges) == 0 {
		// journal was started with Base == left, so nothing further to stage.
		return nil
	}
	leftChanges, err := diffAgainstCommon(ctx, d, common, left)
	if err != nil {
		return err
	}
	leftByKey := indexChanges(leftChanges)
	for _, rc := range rightChanges {
		if _, onLeftToo := leftByKey[string(rc.Key)]; onLeftToo {
			// Key changed on both sides: left wins, and left is already
			// the journal's base.
			continue
		}
		if err := applyChange(journal, rc); err != nil {
			return err
		}
	}
	return nil
}

// automaticWithFallback auto-merges keys changed on only one side and
// delegates keys changed (differently) on both sides to a custom resolver.
type automaticWithFallback struct {
	newResolver func(ctx *context.T) (ConflictResolver, error)
}

// AutomaticWithFallback returns the strategy that auto-resolves
// non-conflicting changes and falls back to newResolver only for the keys
// that actually conflict.
func AutomaticWithFallback(newResolver func(ctx *context.T) (ConflictResolver, error)) Strategy {
	return automaticWithFallback{newResolver: newResolver}
}

func (s automaticWithFallback) Merge(ctx *context.T, d *dag.DAG, left, right, common dag.Commit, journal *dag.Journal) error {
	leftChanges, err := diffAgainstCommon(ctx, d, common, left)
	if err != nil {
		return err
	}
	rightChanges, err := diffAgainstCommon(ctx, d, common, right)
	if err != nil {
		return err
	}

	leftByKey := indexChanges(leftChanges)
	rightByKey := indexChanges(rightChanges)

	var conflictLeft, conflictRight []Change
	for key, rc := range rightByKey {
		lc, onLeftToo := leftByKey[key]
		if !onLeftToo {
			// Changed only on right: apply right's change as-is.
			if err := applyChange(journal, rc); err != nil {
				return err
			}
			continue
		}
		if sameChange(lc, rc) {
			// Both sides made the identical change; nothing to do, left
			// (the journal's base) already reflects it.
			continue
		}
		conflictLeft = append(conflictLeft, lc)
		conflictRight = append(conflictRight, rc)
	}
	// Keys changed only on left need no action: left is the journal base.

	if len(conflictLeft) == 0 {
		return nil
	}

	vlog.VI(1).Infof("merge: %d conflicting keys against left tree %s, falling back to custom resolver", len(conflictLeft), left.RootTree)
	resolver, err := s.newResolver(ctx)
	if err != nil {
		return err
	}
	merged, err := resolver.Resolve(ctx, ResolveRequest{
		Left: left, Right: right, Common: common,
		LeftChanges: conflictLeft, RightChanges: conflictRight,
	})
	if err != nil {
		return err
	}
	return applyMergedValues(ctx, d, journal, right, merged)
}

// custom always delegates the full change lists to a resolver.
type custom struct {
	newResolver func(ctx *context.T) (ConflictResolver, error)
}

// Custom returns the strategy that hands every changed key, conflicting or
// not, to newResolver.
func Custom(newResolver func(ctx *context.T) (ConflictResolver, error)) Strategy {
	return custom{newResolver: newResolver}
}

func (s custom) Merge(ctx *context.T, d *dag.DAG, left, right, common dag.Commit, journal *dag.Journal) error {
	leftChanges, err := diffAgainstCommon(ctx, d, common, left)
	if err != nil {
		return err
	}
	rightChanges, err := diffAgainstCommon(ctx, d, common, right)
	if err != nil {
		return err
	}
	resolver, err := s.newResolver(ctx)
	if err != nil {
		return err
	}
	merged, err := resolver.Resolve(ctx, ResolveRequest{
		Left: left, Right: right, Common: common,
		LeftChanges: leftChanges, RightChanges: rightChanges,
	})
	if err != nil {
		return err
	}
	return applyMergedValues(ctx, d, journal, right, merged)
}

func indexChanges(changes []Change) map[string]Change {
	m := make(map[string]Change, len(changes))
	for _, c := range changes {
		m[string(c.Key)] = c
	}
	return m
}

func sameChange(a, b Change) bool {
	if a.Kind != b.Kind {
		return false
	}
	if a.Kind == ChangedDelete {
		return true
	}
	return a.Object == b.Object
}

func applyChange(journal *dag.Journal, c Change) error {
	switch c.Kind {
	case ChangedPut:
		return journal.Put(c.Key, c.Object, c.Priority)
	case ChangedDelete:
		return journal.Delete(c.Key)
	}
	return lerrors.New(lerrors.ErrIllegalState, nil, "unknown change kind", c.Kind)
}

func applyMergedValues(ctx *context.T, d *dag.DAG, journal *dag.Journal, right dag.Commit, values []MergedValue) error {
	for _, v := range values {
		switch v.Source {
		case FromLeft:
			// Left is already the journal's base; nothing to stage.
		case FromRight:
			entry, err := d.GetEntry(ctx, right, v.Key)
			if err != nil {
				return err
			}
			if err := journal.Put(v.Key, entry.Object, entry.Priority); err != nil {
				return err
			}
		case FromDelete:
			if err := journal.Delete(v.Key); err != nil {
				return err
			}
		case FromNew:
			objID := v.NewObject
			if objID == (object.ID{}) {
				var err error
				objID, err = d.Objects().Put(ctx, v.NewBytes)
				if err != nil {
					return err
				}
			}
			if err := journal.Put(v.Key, objID, dag.Eager); err != nil {
				return err
			}
		default:
			return lerrors.New(lerrors.ErrIllegalState, ctx, "unknown merge source", v.Source)
		}
	}
	return nil
}
