// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dag

import (
	"github.com/pborman/uuid"
)

// NewPageID generates a fresh, cryptographically random page identifier.
// uuid.NewRandom draws from crypto/rand under the hood and needs no
// further pooling on our part.
func NewPageID() PageID {
	var id PageID
	copy(id[:], uuid.NewRandom())
	return id
}

// JournalID identifies an open journal.
type JournalID [16]byte

// NewJournalID generates a fresh journal identifier.
func NewJournalID() JournalID {
	var id JournalID
	copy(id[:], uuid.NewRandom())
	return id
}
