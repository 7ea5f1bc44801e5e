// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fips140tls reports and controls whether the TLS package should
// restrict itself to FIPS 140-3 approved configurations, mirroring the
// internal/fips140tls package in the standard library.
package fips140tls

import "sync/atomic"

var required atomic.Bool

// Required reports whether FIPS 140-3 mode is enabled, in which case the
// package must only negotiate approved versions, cipher suites, curves, and
// signature algorithms.
func Required() bool {
	return required.Load()
}

// testingOnlyAbortEnforcement is used by tests to force a particular mode
// without depending on the GODEBUG fips140 setting.
func testingOnlyAbortEnforcement(v bool) {
	required.Store(v)
}
