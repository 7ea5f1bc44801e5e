// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package testenv provides information about what functionality is
// available in the test environment, mirroring the standard library's
// internal/testenv for the subset this module's tests rely on.
package testenv

import (
	"os/exec"
	"runtime"
	"testing"
)

// HasGoBuild reports whether the current system can build programs with
// ``go build'' and then run them with os.StartProcess or exec.Command.
func HasGoBuild() bool {
	switch runtime.GOOS {
	case "js", "wasip1", "ios":
		return false
	}
	_, err := exec.LookPath("go")
	return err == nil
}

// MustHaveGoBuild checks that the current system can build programs with
// ``go build'' and then run them with os.StartProcess or exec.Command. If
// not, MustHaveGoBuild calls t.Skip with an explanation.
func MustHaveGoBuild(t testing.TB) {
	if !HasGoBuild() {
		t.Skipf("skipping test: 'go build' not available on %s", runtime.GOOS)
	}
}

// GoToolPath reports the path to the Go tool, skipping the test if it is
// not available.
func GoToolPath(t testing.TB) string {
	MustHaveGoBuild(t)
	path, err := exec.LookPath("go")
	if err != nil {
		t.Skipf("skipping test: go tool not found: %v", err)
	}
	return path
}
