// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package object

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDigestPure(t *testing.T) {
	a := Digest([]byte("hello"))
	b := Digest([]byte("hello"))
	require.Equal(t, a, b)
	c := Digest([]byte("hello!"))
	require.NotEqual(t, a, c)
}

func TestIDRoundTrip(t *testing.T) {
	id := Digest([]byte("round trip"))
	parsed, err := ParseID(id.String())
	require.NoError(t, err)
	require.Equal(t, id, parsed)
}

func testStoreRoundTrip(t *testing.T, st Store) {
	t.Helper()
	data := []byte("the quick brown fox jumps over the lazy dog")
	id, err := st.Put(nil, data)
	require.NoError(t, err)

	has, err := st.Has(nil, id)
	require.NoError(t, err)
	require.True(t, has)

	got, err := st.Get(nil, id)
	require.NoError(t, err)
	require.Equal(t, data, got)

	// Put is idempotent.
	id2, err := st.Put(nil, data)
	require.NoError(t, err)
	require.Equal(t, id, id2)
}

func TestMemStoreRoundTrip(t *testing.T) {
	testStoreRoundTrip(t, NewMemStore())
}

func TestMemStoreNotFound(t *testing.T) {
	st := NewMemStore()
	_, err := st.Get(nil, Digest([]byte("missing")))
	require.Error(t, err)
}

func TestFSStoreRoundTrip(t *testing.T) {
	st, err := NewFSStore(t.TempDir(), 16)
	require.NoError(t, err)
	testStoreRoundTrip(t, st)
}
