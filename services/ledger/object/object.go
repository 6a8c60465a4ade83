// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package object implements the content-addressed immutable blob store.
// Objects are written at most once; reads are idempotent and byte-exact.
package object

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"

	"v.io/v23/context"

	lerrors "v.io/x/ref/services/ledger/errors"
)

// ID is the 32-byte collision-resistant digest that identifies an object.
type ID [32]byte

// Nil is the zero ID; it never identifies a stored object and is used as a
// sentinel (e.g. the conceptual empty-tree commit's root has a well-known,
// non-Nil ID — see dag.EmptyTreeID — while Nil marks "no object").
var Nil ID

// String returns the lowercase hex encoding used throughout the persisted
// layout, e.g. objects/<hex(object_id)>.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// ParseID parses the hex encoding produced by String.
func ParseID(s string) (ID, error) {
	var id ID
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(id) {
		return id, lerrors.New(lerrors.ErrInvalidArgument, nil, "malformed object id", s)
	}
	copy(id[:], b)
	return id, nil
}

// Digest computes the ID of a byte sequence. It is pure and
// collision-resistant in practice, the two properties a commit's ID
// being a function of its contents relies on.
func Digest(data []byte) ID {
	return ID(blake2b.Sum256(data))
}

// Store is the object store contract.
type Store interface {
	// Put computes data's ID, stores it idempotently, and returns the ID.
	Put(ctx *context.T, data []byte) (ID, error)
	// Get returns the exact bytes previously stored under id.
	Get(ctx *context.T, id ID) ([]byte, error)
	// Has reports whether id is present locally.
	Has(ctx *context.T, id ID) (bool, error)
}
