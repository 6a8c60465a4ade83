// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package merge

import (
	"testing"

	"github.com/stretchr/testify/require"

	"v.io/v23/context"

	"v.io/x/ref/services/ledger/dag"
	"v.io/x/ref/services/ledger/object"
)

// recordingResolver captures the ResolveRequest it was handed and returns a
// fixed set of merged values, standing in for an application's custom
// resolver channel.
type recordingResolver struct {
	got     ResolveRequest
	results []MergedValue
}

func (r *recordingResolver) Resolve(ctx *context.T, req ResolveRequest) ([]MergedValue, error) {
	r.got = req
	return r.results, nil
}

// TestAutomaticWithFallbackOnlyEscalatesConflicts verifies that keys
// changed on only one side merge automatically, and only a key changed
// differently on both sides reaches the custom resolver.
func TestAutomaticWithFallbackOnlyEscalatesConflicts(t *testing.T) {
	d := newTestDAG(t)
	heads, err := d.GetHeads(nil)
	require.NoError(t, err)
	root := heads[0]

	left := putKey(t, d, root, "shared", []byte("from-left"))
	right := putKey(t, d, root, "shared", []byte("from-right"))
	right = putKey(t, d, right, "right-only", []byte("r"))

	resolver := &recordingResolver{
		results: []MergedValue{
			{Key: []byte("shared"), Source: FromNew, NewBytes: []byte("resolved")},
		},
	}
	strategy := AutomaticWithFallback(func(ctx *context.T) (ConflictResolver, error) {
		return resolver, nil
	})

	journal := d.StartTransaction(left)
	require.NoError(t, strategy.Merge(nil, d, left, right, root, journal))
	require.NoError(t, journal.AddParent(right))
	id, err := journal.Commit(nil, dag.Sync)
	require.NoError(t, err)
	merged, err := d.GetCommit(nil, id)
	require.NoError(t, err)

	// The non-conflicting key from right merged in automatically.
	e, err := d.GetEntry(nil, merged, []byte("right-only"))
	require.NoError(t, err)
	require.NotEqual(t, object.ID{}, e.Object)

	// Only the truly conflicting key reached the resolver.
	require.Len(t, resolver.got.LeftChanges, 1)
	require.Equal(t, "shared", string(resolver.got.LeftChanges[0].Key))
}
