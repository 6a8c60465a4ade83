// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package merge implements the three-way merge resolver and its strategy
// plugins — "the heart of the core".
package merge

import (
	"v.io/v23/context"

	"v.io/x/ref/services/ledger/dag"
	"v.io/x/ref/services/ledger/object"
)

// ChangeKind describes how a key changed relative to a common ancestor.
type ChangeKind int

const (
	// ChangedPut means the key was set to a new object.
	ChangedPut ChangeKind = iota
	// ChangedDelete means the key was removed.
	ChangedDelete
)

// Change is one key's delta between a common-ancestor snapshot and a
// descendant snapshot, as passed to strategies and to a custom resolver.
type Change struct {
	Key      []byte
	Kind     ChangeKind
	Object   object.ID // valid when Kind == ChangedPut
	Priority dag.Priority
}

// MergeSource identifies where a MergedValue's final content comes from.
type MergeSource int

const (
	// FromLeft keeps the left side's value for the key.
	FromLeft MergeSource = iota
	// FromRight keeps the right side's value for the key.
	FromRight
	// FromDelete removes the key.
	FromDelete
	// FromNew supplies a brand new value, either inline bytes or an
	// existing object reference.
	FromNew
)

// MergedValue is one custom resolver's decision for one conflicting key.
type MergedValue struct {
	Key    []byte
	Source MergeSource
	// Exactly one of NewBytes/NewObject is meaningful, and only when
	// Source == FromNew. If NewObject is the zero value, NewBytes is
	// written to the object store by the engine.
	NewBytes  []byte
	NewObject object.ID
}

// ConflictResolver is the external custom-resolver channel contract.
// Implementations are supplied by a ConflictResolverFactory and typically
// bridge to an application's own RPC-exposed resolver process; this package
// treats it purely as an interface.
type ConflictResolver interface {
	// Resolve is handed read-only snapshots of all three commits plus the
	// change lists relative to common — only the conflicting keys under
	// AutomaticWithFallback, every changed key under Custom — and returns
	// the merged values for those keys.
	Resolve(ctx *context.T, req ResolveRequest) ([]MergedValue, error)
}

// ResolveRequest bundles everything a custom resolver needs.
type ResolveRequest struct {
	Left, Right, Common dag.Commit
	LeftChanges         []Change
	RightChanges        []Change
}

// Policy names one of the three built-in merge policies.
type Policy int

const (
	// PolicyLastOneWins always prefers the more recent side.
	PolicyLastOneWins Policy = iota
	// PolicyAutomaticWithFallback auto-merges non-conflicting keys and
	// delegates only conflicting keys to a custom resolver.
	PolicyAutomaticWithFallback
	// PolicyCustom always delegates the full change lists.
	PolicyCustom
)

// ConflictResolverFactory is the per-ledger external collaborator
// contract. GetPolicy's result is cached by the resolver until the factory
// is replaced.
type ConflictResolverFactory interface {
	GetPolicy(ctx *context.T, page dag.PageID) (Policy, error)
	NewConflictResolver(ctx *context.T, page dag.PageID) (ConflictResolver, error)
}
