// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package page

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"v.io/v23/context"

	"v.io/x/ref/services/ledger/dag"
	"v.io/x/ref/services/ledger/object"
)

func newTestPage(t *testing.T) *Page {
	t.Helper()
	d, err := dag.Open(nil, object.NewMemStore(), object.NewMemStore(), dag.NewMemHeadStore())
	require.NoError(t, err)
	return New(nil, dag.PageID{}, d, nil)
}

func TestPutGetRoundTrip(t *testing.T) {
	p := newTestPage(t)
	require.Equal(t, OK, p.Put(nil, []byte("k"), []byte("v")))

	status, snap := p.GetSnapshot(nil, nil)
	require.Equal(t, OK, status)

	s, val := snap.Get(nil, []byte("k"))
	require.Equal(t, OK, s)
	require.Equal(t, []byte("v"), val)
}

func TestGetMissingKeyReturnsKeyNotFound(t *testing.T) {
	p := newTestPage(t)
	_, snap := p.GetSnapshot(nil, nil)
	s, _ := snap.Get(nil, []byte("nope"))
	require.Equal(t, KeyNotFound, s)
}

func TestExplicitTransaction(t *testing.T) {
	p := newTestPage(t)
	require.Equal(t, OK, p.StartTransaction(nil))
	require.Equal(t, OK, p.Put(nil, []byte("a"), []byte("1")))
	require.Equal(t, OK, p.Put(nil, []byte("b"), []byte("2")))
	require.Equal(t, OK, p.Commit(nil))

	_, snap := p.GetSnapshot(nil, nil)
	s, v := snap.Get(nil, []byte("a"))
	require.Equal(t, OK, s)
	require.Equal(t, []byte("1"), v)
}

func TestRollbackDiscardsChanges(t *testing.T) {
	p := newTestPage(t)
	require.Equal(t, OK, p.StartTransaction(nil))
	require.Equal(t, OK, p.Put(nil, []byte("a"), []byte("1")))
	require.Equal(t, OK, p.Rollback(nil))

	_, snap := p.GetSnapshot(nil, nil)
	s, _ := snap.Get(nil, []byte("a"))
	require.Equal(t, KeyNotFound, s)
}

func TestStartTransactionTwiceRejected(t *testing.T) {
	p := newTestPage(t)
	require.Equal(t, OK, p.StartTransaction(nil))
	require.Equal(t, InvalidArgument, p.StartTransaction(nil))
}

// TestWatcherReceivesChanges exercises the PageWatcher delivery path
// end-to-end for a single, unpaginated change.
func TestWatcherReceivesChanges(t *testing.T) {
	p := newTestPage(t)
	recorder := &recordingWatcher{}
	status, _ := p.GetSnapshot(nil, recorder)
	require.Equal(t, OK, status)

	require.Equal(t, OK, p.Put(nil, []byte("k"), []byte("v")))

	require.Eventually(t, func() bool {
		recorder.mu.Lock()
		defer recorder.mu.Unlock()
		return len(recorder.changes) == 1
	}, time.Second, time.Millisecond)
}

type recordingWatcher struct {
	mu      sync.Mutex
	changes []PageChange
}

func (w *recordingWatcher) OnChange(ctx *context.T, change PageChange, state ResultState, snap *Snapshot) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.changes = append(w.changes, change)
}
