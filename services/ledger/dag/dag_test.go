// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dag

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"v.io/x/ref/services/ledger/object"
)

func newTestDAG(t *testing.T) *DAG {
	t.Helper()
	d, err := Open(nil, object.NewMemStore(), object.NewMemStore(), NewMemHeadStore())
	require.NoError(t, err)
	return d
}

func TestOpenCreatesEmptyRootCommit(t *testing.T) {
	d := newTestDAG(t)
	heads, err := d.GetHeads(nil)
	require.NoError(t, err)
	require.Len(t, heads, 1)
	require.Equal(t, EmptyTreeID(), heads[0].RootTree)
	require.Equal(t, uint64(0), heads[0].Generation)
	require.Empty(t, heads[0].Parents)
}

func TestJournalCommitAdvancesHead(t *testing.T) {
	d := newTestDAG(t)
	root, err := d.GetHeads(nil)
	require.NoError(t, err)

	objID, err := d.Objects().Put(nil, []byte("value"))
	require.NoError(t, err)

	j := d.StartTransaction(root[0])
	require.NoError(t, j.Put([]byte("k"), objID, Eager))
	id, err := j.Commit(nil, Local)
	require.NoError(t, err)

	heads, err := d.GetHeads(nil)
	require.NoError(t, err)
	require.Len(t, heads, 1)
	require.Equal(t, id, heads[0].ID)
	require.Equal(t, uint64(1), heads[0].Generation)

	entry, err := d.GetEntry(nil, heads[0], []byte("k"))
	require.NoError(t, err)
	require.Equal(t, objID, entry.Object)
}

func TestConcurrentCommitsProduceTwoHeads(t *testing.T) {
	d := newTestDAG(t)
	root, err := d.GetHeads(nil)
	require.NoError(t, err)

	objA, err := d.Objects().Put(nil, []byte("a"))
	require.NoError(t, err)
	objB, err := d.Objects().Put(nil, []byte("b"))
	require.NoError(t, err)

	j1 := d.StartTransaction(root[0])
	require.NoError(t, j1.Put([]byte("a"), objA, Eager))
	_, err = j1.Commit(nil, Local)
	require.NoError(t, err)

	j2 := d.StartTransaction(root[0])
	require.NoError(t, j2.Put([]byte("b"), objB, Eager))
	_, err = j2.Commit(nil, Remote)
	require.NoError(t, err)

	heads, err := d.GetHeads(nil)
	require.NoError(t, err)
	require.Len(t, heads, 2)
}

func TestAddCommitIsIdempotent(t *testing.T) {
	d := newTestDAG(t)
	root, err := d.GetHeads(nil)
	require.NoError(t, err)

	objID, err := d.Objects().Put(nil, []byte("v"))
	require.NoError(t, err)
	j := d.StartTransaction(root[0])
	require.NoError(t, j.Put([]byte("k"), objID, Eager))
	id, err := j.Commit(nil, Local)
	require.NoError(t, err)

	commit, err := d.GetCommit(nil, id)
	require.NoError(t, err)
	data, err := encodeCommit(commit)
	require.NoError(t, err)

	again, err := d.AddCommit(nil, data, Local)
	require.NoError(t, err)
	require.Equal(t, id, again)

	heads, err := d.GetHeads(nil)
	require.NoError(t, err)
	require.Len(t, heads, 1)
}

func TestRollbackProducesNoCommit(t *testing.T) {
	d := newTestDAG(t)
	root, err := d.GetHeads(nil)
	require.NoError(t, err)

	j := d.StartTransaction(root[0])
	require.NoError(t, j.Put([]byte("k"), object.Digest([]byte("x")), Eager))
	require.NoError(t, j.Rollback())

	heads, err := d.GetHeads(nil)
	require.NoError(t, err)
	require.Len(t, heads, 1)
	require.Equal(t, root[0].ID, heads[0].ID)
}

func TestCommitAfterRollbackRejected(t *testing.T) {
	d := newTestDAG(t)
	root, err := d.GetHeads(nil)
	require.NoError(t, err)
	j := d.StartTransaction(root[0])
	require.NoError(t, j.Rollback())
	_, err = j.Commit(nil, Local)
	require.Error(t, err)
}

func TestFindLCAOfDivergedHeads(t *testing.T) {
	d := newTestDAG(t)
	root, err := d.GetHeads(nil)
	require.NoError(t, err)

	objA, err := d.Objects().Put(nil, []byte("a"))
	require.NoError(t, err)
	objB, err := d.Objects().Put(nil, []byte("b"))
	require.NoError(t, err)

	j1 := d.StartTransaction(root[0])
	require.NoError(t, j1.Put([]byte("a"), objA, Eager))
	id1, err := j1.Commit(nil, Local)
	require.NoError(t, err)

	j2 := d.StartTransaction(root[0])
	require.NoError(t, j2.Put([]byte("b"), objB, Eager))
	id2, err := j2.Commit(nil, Remote)
	require.NoError(t, err)

	c1, err := d.GetCommit(nil, id1)
	require.NoError(t, err)
	c2, err := d.GetCommit(nil, id2)
	require.NoError(t, err)

	lca, err := d.FindLCA(nil, c1, c2)
	require.NoError(t, err)
	require.Equal(t, root[0].ID, lca.ID)
}

func TestWatcherReceivesCommitsInOrder(t *testing.T) {
	d := newTestDAG(t)
	root, err := d.GetHeads(nil)
	require.NoError(t, err)

	var mu sync.Mutex
	var received []Commit
	w := watcherFunc(func(commits []Commit, source Source) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, commits...)
	})
	d.Subscribe(w)

	prev := root[0]
	var ids []object.ID
	for i := 0; i < 5; i++ {
		objID, err := d.Objects().Put(nil, []byte{byte(i)})
		require.NoError(t, err)
		j := d.StartTransaction(prev)
		require.NoError(t, j.Put([]byte{byte(i)}, objID, Eager))
		id, err := j.Commit(nil, Local)
		require.NoError(t, err)
		ids = append(ids, id)
		prev, err = d.GetCommit(nil, id)
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 5
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for i, c := range received {
		require.Equal(t, ids[i], c.ID)
	}
}

type watcherFunc func(commits []Commit, source Source)

func (f watcherFunc) OnNewCommits(commits []Commit, source Source) { f(commits, source) }
