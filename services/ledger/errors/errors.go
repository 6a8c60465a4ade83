// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package errors defines the storage-internal error enum shared by every
// services/ledger package. These never leak to a wire client verbatim;
// services/ledger/page translates them into the wire Status taxonomy at the
// API boundary.
package errors

import (
	"v.io/v23/context"
	"v.io/v23/verror"
)

const pkgPath = "v.io/x/ref/services/ledger/errors"

var (
	// ErrNotFound indicates the requested object, commit, or key does not
	// exist locally.
	ErrNotFound = verror.Register(pkgPath+".ErrNotFound", verror.NoRetry, "{1:}{2:} not found{:_}")

	// ErrIO indicates a local storage-media failure (disk full, permission
	// denied, corrupt file).
	ErrIO = verror.Register(pkgPath+".ErrIO", verror.NoRetry, "{1:}{2:} storage I/O error{:_}")

	// ErrInterrupted indicates an operation was cancelled because its page
	// was closed.
	ErrInterrupted = verror.Register(pkgPath+".ErrInterrupted", verror.NoRetry, "{1:}{2:} operation interrupted{:_}")

	// ErrNotConnected indicates a custom conflict-resolver channel is
	// disconnected.
	ErrNotConnected = verror.Register(pkgPath+".ErrNotConnected", verror.RetryRefetch, "{1:}{2:} conflict resolver not connected{:_}")

	// ErrNetworkNeeded indicates a tree or object fetch requires a network
	// round-trip that the local snapshot cannot satisfy.
	ErrNetworkNeeded = verror.Register(pkgPath+".ErrNetworkNeeded", verror.RetryRefetch, "{1:}{2:} network access needed{:_}")

	// ErrIllegalState indicates a structural DAG inconsistency (a malformed
	// commit, or a commit that references a missing parent). It is returned
	// to the caller; the page is not put into a read-only state.
	ErrIllegalState = verror.Register(pkgPath+".ErrIllegalState", verror.NoRetry, "{1:}{2:} illegal DAG state{:_}")

	// ErrInvalidArgument indicates a caller-supplied argument violates an
	// API precondition (e.g. a key longer than 256 bytes, or a journal used
	// after it was committed or rolled back).
	ErrInvalidArgument = verror.Register(pkgPath+".ErrInvalidArgument", verror.NoRetry, "{1:}{2:} invalid argument{:_}")
)

// New is a thin wrapper over verror.New that every services/ledger package
// uses so that every storage-internal error carries a stack trace and the
// calling context, matching the pattern in
// services/syncbase/localblobstore/chunkmap.
func New(id verror.IDAction, ctx *context.T, v ...interface{}) error {
	return verror.New(id, ctx, v...)
}

// Is reports whether err was constructed from the given registered
// IDAction, mirroring verror.ErrorID(err) == id.ID comparisons used
// throughout services/syncbase.
func Is(err error, id verror.IDAction) bool {
	return verror.ErrorID(err) == id.ID
}
