// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package merge

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/singleflight"

	"v.io/v23/context"
	"v.io/x/lib/vlog"

	"v.io/x/ref/services/ledger/dag"
	lerrors "v.io/x/ref/services/ledger/errors"
)

// mergeFlightKey is the sole singleflight.Group key a Resolver ever uses.
// A Resolver is already scoped to one page, so there is only ever one
// logical "thing" to collapse concurrent Wake calls onto.
const mergeFlightKey = "merge"

// State names the resolver's position in its merge state machine: IDLE ->
// SELECTING -> ANCESTOR -> MERGING -> IDLE.
type State int

const (
	// StateIdle means the page currently has at most one head.
	StateIdle State = iota
	// StateSelecting means two or more heads exist and a pair is being
	// chosen to merge.
	StateSelecting
	// StateAncestor means the selected pair's common ancestor is being
	// computed.
	StateAncestor
	// StateMerging means a strategy is producing the merged content.
	StateMerging
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateSelecting:
		return "SELECTING"
	case StateAncestor:
		return "ANCESTOR"
	case StateMerging:
		return "MERGING"
	default:
		return "UNKNOWN"
	}
}

// Resolver drives one page's merge state machine. It is woken whenever the
// page's DAG reports two or more heads, and runs until the head set is back
// down to one, at which point it returns to IDLE. Exactly one merge loop
// runs at a time per page, enforced with golang.org/x/sync/singleflight:
// concurrent Wake calls collapse onto whichever loop is already in flight
// instead of starting a second one.
type Resolver struct {
	page dag.PageID
	d    *dag.DAG

	flight singleflight.Group

	mu          sync.Mutex
	state       State
	running     bool
	factory     ConflictResolverFactory
	policy      *Policy // cached until the factory is replaced
	destroyed   bool
	onDestroyed func()

	newBackoff func() backoff.BackOff
}

// NewResolver returns a resolver for the given page, driven by d and
// initially configured with factory, which may be nil — SetFactory can
// supply one later, once a ledger's resolver factory is installed after
// pages already exist.
func NewResolver(page dag.PageID, d *dag.DAG, factory ConflictResolverFactory) *Resolver {
	return &Resolver{
		page:    page,
		d:       d,
		factory: factory,
		newBackoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 50 * time.Millisecond
			b.MaxInterval = 5 * time.Second
			return b
		},
	}
}

// SetFactory replaces the conflict-resolver factory, invalidating the
// cached policy. The next wake-up re-queries GetPolicy exactly once.
func (r *Resolver) SetFactory(factory ConflictResolverFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factory = factory
	r.policy = nil
}

// OnDestroyed registers a callback invoked when the resolver is
// permanently stopped.
func (r *Resolver) OnDestroyed(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onDestroyed = fn
}

// Destroy stops the resolver; any merge already running finishes, but no
// further wake-ups start new ones.
func (r *Resolver) Destroy() {
	r.mu.Lock()
	r.destroyed = true
	fn := r.onDestroyed
	r.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Wake is called whenever the page's DAG may have gained a second head.
// If the resolver has been destroyed it is a no-op; otherwise it starts
// the SELECTING→…→IDLE loop, or, if one is already in flight for this
// page, joins it instead of starting a second one.
func (r *Resolver) Wake(ctx *context.T) {
	r.mu.Lock()
	destroyed := r.destroyed
	r.mu.Unlock()
	if destroyed {
		return
	}

	go func() {
		r.flight.Do(mergeFlightKey, func() (interface{}, error) {
			r.mu.Lock()
			r.running = true
			r.mu.Unlock()
			r.run(ctx)
			r.mu.Lock()
			r.running = false
			r.mu.Unlock()
			return nil, nil
		})
	}()
}

// Running reports whether a merge loop is currently in flight for this
// page, for diagnostics and tests.
func (r *Resolver) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *Resolver) run(ctx *context.T) {
	for {
		heads, err := r.d.GetHeads(ctx)
		if err != nil {
			vlog.Errorf("merge: page %s: list heads: %v", r.page, err)
			return
		}
		if len(heads) < 2 {
			r.setState(StateIdle)
			return
		}

		r.setState(StateSelecting)
		left, right := selectPair(heads)

		r.setState(StateAncestor)
		common, err := r.d.FindLCA(ctx, left, right)
		if err != nil {
			vlog.Errorf("merge: page %s: find common ancestor: %v", r.page, err)
			return
		}

		r.setState(StateMerging)
		if err := r.mergeOnce(ctx, left, right, common); err != nil {
			if lerrors.Is(err, lerrors.ErrNetworkNeeded) || lerrors.Is(err, lerrors.ErrNotConnected) {
				vlog.VI(1).Infof("merge: page %s: resolver unavailable, retrying: %v", r.page, err)
				r.waitBackoff(ctx)
				continue
			}
			vlog.Errorf("merge: page %s: merge failed: %v", r.page, err)
			return
		}
	}
}

// mergeOnce runs the MERGING step for the given pair and their common
// ancestor. It returns nil once the merge commit lands, or an error — possibly
// one of the retryable errors.ErrNetworkNeeded/ErrNotConnected — otherwise.
func (r *Resolver) mergeOnce(ctx *context.T, left, right, common dag.Commit) error {
	strategy, err := r.strategy(ctx)
	if err != nil {
		return err
	}

	journal := r.d.StartTransaction(left)
	if err := strategy.Merge(ctx, r.d, left, right, common, journal); err != nil {
		journal.Rollback()
		return err
	}
	if err := journal.AddParent(right); err != nil {
		journal.Rollback()
		return err
	}
	if _, err := journal.Commit(ctx, dag.Sync); err != nil {
		return err
	}
	return nil
}

func (r *Resolver) waitBackoff(ctx *context.T) {
	b := r.newBackoff()
	d := b.NextBackOff()
	if d == backoff.Stop {
		return
	}
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}

func (r *Resolver) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// State returns the resolver's current state, for diagnostics and tests.
func (r *Resolver) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// strategy resolves the current Policy into a Strategy, querying and
// caching GetPolicy on the factory at most once per factory generation:
// two sequential merges under the same factory call GetPolicy exactly
// once.
func (r *Resolver) strategy(ctx *context.T) (Strategy, error) {
	r.mu.Lock()
	factory := r.factory
	cached := r.policy
	r.mu.Unlock()

	if factory == nil {
		return LastOneWins(), nil
	}

	var policy Policy
	if cached != nil {
		policy = *cached
	} else {
		p, err := factory.GetPolicy(ctx, r.page)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.policy = &p
		r.mu.Unlock()
		policy = p
	}

	switch policy {
	case PolicyLastOneWins:
		return LastOneWins(), nil
	case PolicyAutomaticWithFallback:
		return AutomaticWithFallback(func(ctx *context.T) (ConflictResolver, error) {
			return factory.NewConflictResolver(ctx, r.page)
		}), nil
	case PolicyCustom:
		return Custom(func(ctx *context.T) (ConflictResolver, error) {
			return factory.NewConflictResolver(ctx, r.page)
		}), nil
	default:
		return nil, lerrors.New(lerrors.ErrIllegalState, ctx, "unknown merge policy", policy)
	}
}

// selectPair deterministically chooses the two heads to merge next: the
// two with the smallest generation gap, breaking ties by (generation desc,
// timestamp desc, id asc) — i.e. simply the DAG's own GetHeads order, since
// heads is already sorted that way and the closest pair by that order is
// always adjacent.
func selectPair(heads []dag.Commit) (left, right dag.Commit) {
	best := 0
	bestGap := int64(-1)
	for i := 0; i+1 < len(heads); i++ {
		gap := int64(heads[i].Generation) - int64(heads[i+1].Generation)
		if gap < 0 {
			gap = -gap
		}
		if bestGap == -1 || gap < bestGap {
			bestGap = gap
			best = i
		}
	}
	return heads[best], heads[best+1]
}
