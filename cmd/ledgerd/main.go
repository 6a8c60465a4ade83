// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// ledgerd hosts the page storage and conflict-resolution engine
// (services/ledger) as a standalone process, opening one ledger rooted at
// --root-dir and keeping it alive until shut down. The client-facing RPC
// surface that would dispatch wire requests into this ledger is out of
// scope; this binary exists to exercise composing the storage engine the way
// a real server would.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"v.io/v23"
	"v.io/x/lib/vlog"

	"v.io/x/ref/services/ledger/ledger"
)

var rootDir = flag.String("root-dir", "/var/lib/ledgerd", "Root dir for page storage.")

func main() {
	ctx, shutdown := v23.Init()
	defer shutdown()

	if _, err := ledger.Open(ctx, *rootDir); err != nil {
		vlog.Fatal("ledger.Open() failed: ", err)
	}
	vlog.Infof("ledgerd: storage rooted at %s", *rootDir)

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	sig := <-ch
	vlog.Infof("ledgerd: received %v, shutting down", sig)
}
