// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package merge

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"v.io/v23/context"

	"v.io/x/ref/services/ledger/dag"
	"v.io/x/ref/services/ledger/object"
)

func newTestDAG(t *testing.T) *dag.DAG {
	t.Helper()
	d, err := dag.Open(nil, object.NewMemStore(), object.NewMemStore(), dag.NewMemHeadStore())
	require.NoError(t, err)
	return d
}

func putKey(t *testing.T, d *dag.DAG, base dag.Commit, key string, val []byte) dag.Commit {
	t.Helper()
	objID, err := d.Objects().Put(nil, val)
	require.NoError(t, err)
	j := d.StartTransaction(base)
	require.NoError(t, j.Put([]byte(key), objID, dag.Eager))
	id, err := j.Commit(nil, dag.Local)
	require.NoError(t, err)
	c, err := d.GetCommit(nil, id)
	require.NoError(t, err)
	return c
}

func putKeys(t *testing.T, d *dag.DAG, base dag.Commit, kvs map[string][]byte) dag.Commit {
	t.Helper()
	j := d.StartTransaction(base)
	for key, val := range kvs {
		objID, err := d.Objects().Put(nil, val)
		require.NoError(t, err)
		require.NoError(t, j.Put([]byte(key), objID, dag.Eager))
	}
	id, err := j.Commit(nil, dag.Local)
	require.NoError(t, err)
	c, err := d.GetCommit(nil, id)
	require.NoError(t, err)
	return c
}

func entryString(t *testing.T, d *dag.DAG, c dag.Commit, key string) (string, bool) {
	t.Helper()
	entry, err := d.GetEntry(nil, c, []byte(key))
	if err != nil {
		return "", false
	}
	val, err := d.Objects().Get(nil, entry.Object)
	require.NoError(t, err)
	return string(val), true
}

// TestLastOneWinsUnionsNonConflictingKeysAndLeftWinsConflicts verifies that
// LastOneWins merges two diverged commits as a union of their changes: a
// key changed on only one side survives unconditionally, and a key changed
// on both sides resolves to whichever commit selectPair designates as
// left.
func TestLastOneWinsUnionsNonConflictingKeysAndLeftWinsConflicts(t *testing.T) {
	d := newTestDAG(t)
	heads, err := d.GetHeads(nil)
	require.NoError(t, err)
	require.Len(t, heads, 1)
	root := heads[0]

	a := putKeys(t, d, root, map[string][]byte{"name": []byte("Alice"), "city": []byte("Paris")})
	b := putKeys(t, d, root, map[string][]byte{"name": []byte("Bob"), "phone": []byte("0123456789")})

	// selectPair over the diverged heads names the left side, whose value
	// must win the key changed on both sides.
	diverged, err := d.GetHeads(nil)
	require.NoError(t, err)
	require.Len(t, diverged, 2)
	left, _ := selectPair(diverged)
	wantName := "Bob"
	if left.ID == a.ID {
		wantName = "Alice"
	}

	r := NewResolver(dag.PageID{}, d, nil)
	r.Wake(nil)
	waitSingleHead(t, d)

	finalHeads, err := d.GetHeads(nil)
	require.NoError(t, err)
	require.Len(t, finalHeads, 1)
	merged := finalHeads[0]
	require.Len(t, merged.Parents, 2)
	require.ElementsMatch(t, []object.ID{a.ID, b.ID}, merged.Parents)

	// Keys changed on only one side always survive.
	city, ok := entryString(t, d, merged, "city")
	require.True(t, ok, "city should survive from the non-winning side")
	require.Equal(t, "Paris", city)
	phone, ok := entryString(t, d, merged, "phone")
	require.True(t, ok, "phone should survive from the non-winning side")
	require.Equal(t, "0123456789", phone)

	// "name" was changed on both sides and must resolve to left's value,
	// not be dropped or merged.
	name, ok := entryString(t, d, merged, "name")
	require.True(t, ok, "name must survive the merge")
	require.Equal(t, wantName, name)
}

// waitSingleHead blocks until d's head set has converged to exactly one
// commit, the externally-observable signal that a triggered merge (or
// chain of merges) has finished.
func waitSingleHead(t *testing.T, d *dag.DAG) {
	t.Helper()
	require.Eventually(t, func() bool {
		heads, err := d.GetHeads(nil)
		require.NoError(t, err)
		return len(heads) == 1
	}, time.Second, time.Millisecond)
}

// fakeFactory is a minimal ConflictResolverFactory used by the policy
// caching and custom-resolver tests below.
type fakeFactory struct {
	mu          sync.Mutex
	policy      Policy
	getPolicyN  int
	newResolver func() ConflictResolver
}

func (f *fakeFactory) GetPolicy(ctx *context.T, page dag.PageID) (Policy, error) {
	f.mu.Lock()
	f.getPolicyN++
	f.mu.Unlock()
	return f.policy, nil
}

func (f *fakeFactory) NewConflictResolver(ctx *context.T, page dag.PageID) (ConflictResolver, error) {
	return f.newResolver(), nil
}

// TestPolicyCachedAcrossMerges verifies that repeated merges under the
// same factory query GetPolicy exactly once.
func TestPolicyCachedAcrossMerges(t *testing.T) {
	d := newTestDAG(t)
	heads, err := d.GetHeads(nil)
	require.NoError(t, err)
	root := heads[0]

	factory := &fakeFactory{policy: PolicyLastOneWins}
	r := NewResolver(dag.PageID{}, d, factory)

	putKey(t, d, root, "a", []byte("1"))
	putKey(t, d, root, "b", []byte("2"))
	r.Wake(nil)
	waitSingleHead(t, d)

	finalHeads, err := d.GetHeads(nil)
	require.NoError(t, err)
	require.Len(t, finalHeads, 1)

	putKey(t, d, finalHeads[0], "c", []byte("3"))
	putKey(t, d, finalHeads[0], "d", []byte("4"))
	r.Wake(nil)
	waitSingleHead(t, d)

	require.Equal(t, 1, factory.getPolicyN)
}
