// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dag

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"v.io/x/lib/vlog"

	lerrors "v.io/x/ref/services/ledger/errors"
	"v.io/x/ref/services/ledger/object"
)

// HeadStore persists the set of head commit ids for one page as
// heads/<hex(commit_id)> zero-byte marker files; presence means head.
type HeadStore interface {
	Add(id CommitID) error
	Remove(id CommitID) error
	List() ([]CommitID, error)
}

// memHeadStore is an in-memory HeadStore for ephemeral pages and tests.
type memHeadStore struct {
	mu    sync.Mutex
	heads map[CommitID]struct{}
}

// NewMemHeadStore returns an in-memory HeadStore.
func NewMemHeadStore() HeadStore {
	return &memHeadStore{heads: make(map[CommitID]struct{})}
}

func (s *memHeadStore) Add(id CommitID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.heads[id] = struct{}{}
	return nil
}

func (s *memHeadStore) Remove(id CommitID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.heads, id)
	return nil
}

func (s *memHeadStore) List() ([]CommitID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CommitID, 0, len(s.heads))
	for id := range s.heads {
		out = append(out, id)
	}
	return out, nil
}

// fsHeadStore persists head markers as zero-byte files under
// <root>/heads/<hex(commit_id)>. A flock-guarded lock file serializes the
// create-marker/fsync/remove-marker sequence, so that a crash between
// steps leaves at most an extra head (which the merge resolver reduces on
// restart) rather than a torn, ambiguous head set.
type fsHeadStore struct {
	dir  string
	lock *flock.Flock
}

// NewFSHeadStore opens (creating if necessary) a filesystem-backed
// HeadStore rooted at dir.
func NewFSHeadStore(dir string) (HeadStore, error) {
	headsDir := filepath.Join(dir, "heads")
	if err := os.MkdirAll(headsDir, 0755); err != nil {
		return nil, lerrors.New(lerrors.ErrIO, nil, "mkdir", headsDir, err)
	}
	return &fsHeadStore{
		dir:  headsDir,
		lock: flock.New(filepath.Join(headsDir, ".lock")),
	}, nil
}

func (s *fsHeadStore) markerPath(id CommitID) string {
	return filepath.Join(s.dir, id.String())
}

func (s *fsHeadStore) Add(id CommitID) error {
	if err := s.lock.Lock(); err != nil {
		return lerrors.New(lerrors.ErrIO, nil, "lock heads dir", err)
	}
	defer s.lock.Unlock()

	f, err := os.Create(s.markerPath(id))
	if err != nil {
		return lerrors.New(lerrors.ErrIO, nil, "create head marker", id.String(), err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return lerrors.New(lerrors.ErrIO, nil, "fsync head marker", id.String(), err)
	}
	return f.Close()
}

func (s *fsHeadStore) Remove(id CommitID) error {
	if err := s.lock.Lock(); err != nil {
		return lerrors.New(lerrors.ErrIO, nil, "lock heads dir", err)
	}
	defer s.lock.Unlock()

	if err := os.Remove(s.markerPath(id)); err != nil && !os.IsNotExist(err) {
		return lerrors.New(lerrors.ErrIO, nil, "remove head marker", id.String(), err)
	}
	return nil
}

func (s *fsHeadStore) List() ([]CommitID, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, lerrors.New(lerrors.ErrIO, nil, "list heads dir", err)
	}
	out := make([]CommitID, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || e.Name() == ".lock" {
			continue
		}
		id, err := object.ParseID(e.Name())
		if err != nil {
			vlog.Errorf("dag: skipping malformed head marker %q: %v", e.Name(), err)
			continue
		}
		out = append(out, id)
	}
	return out, nil
}
