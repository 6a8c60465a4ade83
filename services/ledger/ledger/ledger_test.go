// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ledger

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"v.io/v23/context"

	"v.io/x/ref/services/ledger/dag"
	"v.io/x/ref/services/ledger/merge"
	"v.io/x/ref/services/ledger/page"
)

func TestGetPageIsIdempotent(t *testing.T) {
	l := OpenEphemeral(nil)
	id := dag.NewPageID()

	p1, err := l.GetPage(nil, id)
	require.NoError(t, err)
	p2, err := l.GetPage(nil, id)
	require.NoError(t, err)
	require.Same(t, p1, p2)
}

func TestPutAndReadBackThroughPage(t *testing.T) {
	l := OpenEphemeral(nil)
	p, err := l.GetPage(nil, dag.NewPageID())
	require.NoError(t, err)

	require.Equal(t, page.OK, p.Put(nil, []byte("k"), []byte("v")))
	status, snap := p.GetSnapshot(nil, nil)
	require.Equal(t, page.OK, status)
	s, v := snap.Get(nil, []byte("k"))
	require.Equal(t, page.OK, s)
	require.Equal(t, []byte("v"), v)
}

// stubFactory always selects LastOneWins and never hands out a custom
// resolver, sufficient for exercising factory propagation. It counts
// GetPolicy calls so a test can tell that a page's resolver consulted it.
type stubFactory struct {
	getPolicyN atomic.Int32
}

func (f *stubFactory) GetPolicy(ctx *context.T, pageID dag.PageID) (merge.Policy, error) {
	f.getPolicyN.Add(1)
	return merge.PolicyLastOneWins, nil
}

func (f *stubFactory) NewConflictResolver(ctx *context.T, pageID dag.PageID) (merge.ConflictResolver, error) {
	return nil, nil
}

// TestSetConflictResolverFactoryPropagatesToOpenPages verifies that every
// already-open page picks up a replacement factory without needing to be
// reopened.
func TestSetConflictResolverFactoryPropagatesToOpenPages(t *testing.T) {
	l := OpenEphemeral(nil)
	id := dag.NewPageID()
	_, err := l.GetPage(nil, id)
	require.NoError(t, err)

	factory := &stubFactory{}
	l.SetConflictResolverFactory(nil, factory)

	l.mu.Lock()
	h := l.pages[id]
	l.mu.Unlock()
	require.NotNil(t, h)

	// Diverge the already-open page's head set directly on its DAG; the
	// merge its resolver then runs must consult the replacement factory.
	heads, err := h.d.GetHeads(nil)
	require.NoError(t, err)
	for _, key := range []string{"a", "b"} {
		objID, err := h.d.Objects().Put(nil, []byte(key))
		require.NoError(t, err)
		j := h.d.StartTransaction(heads[0])
		require.NoError(t, j.Put([]byte(key), objID, dag.Eager))
		_, err = j.Commit(nil, dag.Local)
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		h.resolver.Wake(nil)
		return factory.getPolicyN.Load() > 0
	}, time.Second, 10*time.Millisecond)
}
