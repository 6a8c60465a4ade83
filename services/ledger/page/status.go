// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package page implements the wire-facing Page/PageSnapshot/PageWatcher
// API on top of services/ledger/dag, translating the storage-internal error
// enum (services/ledger/errors) into the wire Status taxonomy at the
// boundary.
package page

import (
	lerrors "v.io/x/ref/services/ledger/errors"
)

// Status is the wire-visible result code returned by every Page,
// PageSnapshot, and PageWatcher call. It never carries a storage-internal
// error past the API boundary.
type Status int

const (
	// OK indicates success.
	OK Status = iota
	// PartialResult indicates a paginated call truncated its response; a
	// continuation token is also returned.
	PartialResult
	// KeyNotFound indicates the requested key does not exist in the
	// snapshot.
	KeyNotFound
	// PageNotFound indicates the referenced page does not exist.
	PageNotFound
	// ReferenceNotFound indicates an entry's object is not resolvable
	// locally.
	ReferenceNotFound
	// IOError indicates a local storage failure.
	IOError
	// NetworkError indicates an operation needed network access that
	// wasn't available.
	NetworkError
	// UnknownError is the catch-all for unrecognized storage-internal
	// failures.
	UnknownError
	// InvalidArgument indicates a caller-supplied argument violated an API
	// precondition.
	InvalidArgument
	// InternalError indicates a structural DAG inconsistency.
	InternalError
)

func (s Status) String() string {
	switch s {
	case OK:
		return "OK"
	case PartialResult:
		return "PARTIAL_RESULT"
	case KeyNotFound:
		return "KEY_NOT_FOUND"
	case PageNotFound:
		return "PAGE_NOT_FOUND"
	case ReferenceNotFound:
		return "REFERENCE_NOT_FOUND"
	case IOError:
		return "IO_ERROR"
	case NetworkError:
		return "NETWORK_ERROR"
	case UnknownError:
		return "UNKNOWN_ERROR"
	case InvalidArgument:
		return "INVALID_ARGUMENT"
	case InternalError:
		return "INTERNAL_ERROR"
	default:
		return "UNKNOWN_ERROR"
	}
}

// statusForKeyLookup translates a storage-internal error from a point key
// lookup into a wire Status.
func statusForKeyLookup(err error) Status {
	if err == nil {
		return OK
	}
	switch {
	case lerrors.Is(err, lerrors.ErrNotFound):
		return KeyNotFound
	default:
		return statusForGeneric(err)
	}
}

// statusForObjectFetch translates an error from resolving an entry's
// object contents — a sync-dependent read — into a wire Status.
func statusForObjectFetch(err error) Status {
	if err == nil {
		return OK
	}
	switch {
	case lerrors.Is(err, lerrors.ErrNotFound):
		return ReferenceNotFound
	case lerrors.Is(err, lerrors.ErrNetworkNeeded):
		return NetworkError
	default:
		return statusForGeneric(err)
	}
}

func statusForGeneric(err error) Status {
	switch {
	case lerrors.Is(err, lerrors.ErrNetworkNeeded):
		return NetworkError
	case lerrors.Is(err, lerrors.ErrIO):
		return IOError
	case lerrors.Is(err, lerrors.ErrInvalidArgument):
		return InvalidArgument
	case lerrors.Is(err, lerrors.ErrIllegalState):
		return InternalError
	case lerrors.Is(err, lerrors.ErrInterrupted):
		return InternalError
	default:
		return UnknownError
	}
}
