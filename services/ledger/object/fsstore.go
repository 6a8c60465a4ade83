// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package object

import (
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"

	"v.io/v23/context"
	"v.io/x/lib/vlog"

	lerrors "v.io/x/ref/services/ledger/errors"
)

// fsStore persists objects under <root>/objects/<hex(object_id)>, one
// immutable file per object. A bounded LRU cache absorbs repeat reads of
// hot objects (tree nodes in particular, which are read on every
// GetEntries call).
type fsStore struct {
	root  string
	cache *lru.Cache[ID, []byte]
}

// NewFSStore opens (creating if necessary) a filesystem-backed object store
// rooted at dir. cacheSize is the number of objects kept in the read cache;
// callers with memory pressure concerns should size it to the working set
// of tree nodes for their busiest pages.
func NewFSStore(dir string, cacheSize int) (Store, error) {
	if cacheSize <= 0 {
		cacheSize = 4096
	}
	objDir := filepath.Join(dir, "objects")
	if err := os.MkdirAll(objDir, 0755); err != nil {
		return nil, lerrors.New(lerrors.ErrIO, nil, "mkdir", objDir, err)
	}
	c, err := lru.New[ID, []byte](cacheSize)
	if err != nil {
		return nil, lerrors.New(lerrors.ErrIO, nil, "object cache", err)
	}
	return &fsStore{root: objDir, cache: c}, nil
}

func (s *fsStore) path(id ID) string {
	return filepath.Join(s.root, id.String())
}

func (s *fsStore) Put(ctx *context.T, data []byte) (ID, error) {
	id := Digest(data)
	path := s.path(id)
	if _, err := os.Stat(path); err == nil {
		// Already stored; Put is idempotent.
		s.cache.Add(id, data)
		return id, nil
	}

	// Write to a temp file in the same directory and rename into place so a
	// crash never leaves a partially-written object visible.
	tmp, err := os.CreateTemp(s.root, id.String()+".tmp-*")
	if err != nil {
		return id, lerrors.New(lerrors.ErrIO, ctx, "create temp object", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return id, lerrors.New(lerrors.ErrIO, ctx, "write object", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return id, lerrors.New(lerrors.ErrIO, ctx, "fsync object", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return id, lerrors.New(lerrors.ErrIO, ctx, "close object", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return id, lerrors.New(lerrors.ErrIO, ctx, "rename object into place", err)
	}
	vlog.VI(3).Infof("object: wrote %s (%d bytes)", id, len(data))
	s.cache.Add(id, data)
	return id, nil
}

func (s *fsStore) Get(ctx *context.T, id ID) ([]byte, error) {
	if data, ok := s.cache.Get(id); ok {
		cp := make([]byte, len(data))
		copy(cp, data)
		return cp, nil
	}
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, lerrors.New(lerrors.ErrNotFound, ctx, id.String())
		}
		return nil, lerrors.New(lerrors.ErrIO, ctx, "read object", id.String(), err)
	}
	s.cache.Add(id, data)
	return data, nil
}

func (s *fsStore) Has(ctx *context.T, id ID) (bool, error) {
	if _, ok := s.cache.Get(id); ok {
		return true, nil
	}
	_, err := os.Stat(s.path(id))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, lerrors.New(lerrors.ErrIO, ctx, "stat object", id.String(), err)
}
