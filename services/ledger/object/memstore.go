// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package object

import (
	"sync"

	"v.io/v23/context"

	lerrors "v.io/x/ref/services/ledger/errors"
)

// memStore is an in-memory Store, used by ephemeral pages and in tests.
// It is safe for concurrent use by multiple pages.
type memStore struct {
	mu   sync.RWMutex
	data map[ID][]byte
}

// NewMemStore returns a Store backed by an in-memory map.
func NewMemStore() Store {
	return &memStore{data: make(map[ID][]byte)}
}

func (s *memStore) Put(ctx *context.T, data []byte) (ID, error) {
	id := Digest(data)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[id]; !ok {
		// Copy so the caller cannot mutate stored bytes after the fact.
		cp := make([]byte, len(data))
		copy(cp, data)
		s.data[id] = cp
	}
	return id, nil
}

func (s *memStore) Get(ctx *context.T, id ID) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[id]
	if !ok {
		return nil, lerrors.New(lerrors.ErrNotFound, ctx, id.String())
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

func (s *memStore) Has(ctx *context.T, id ID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[id]
	return ok, nil
}
