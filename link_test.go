// Copyright 2020 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tls

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/refraction-networking/utls/testenv"
)

// modulePath is this module's import path, used to build the standalone
// programs below. This test predates the fork from the standard library's
// crypto/tls linker-GC test and must reference this module's own path rather
// than the stdlib package it was originally written against.
const modulePath = "github.com/refraction-networking/utls"

// Tests that the linker is able to remove references to the Client or Server if unused.
// This is an integration test that requires subprocess compilation.
func TestLinkerGC(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping in short mode: requires subprocess compilation")
	}
	t.Parallel()
	goBin := testenv.GoToolPath(t)
	testenv.MustHaveGoBuild(t)

	moduleDir, err := os.Getwd()
	if err != nil {
		t.Fatalf("os.Getwd: %v", err)
	}

	tests := []struct {
		name    string
		program string
		want    []string
		bad     []string
	}{
		{
			name: "empty_import",
			program: fmt.Sprintf(`package main
import _ %q
func main() {}
`, modulePath),
			bad: []string{
				"tls.(*Conn)",
				"type:" + modulePath + ".clientHandshakeState",
				"type:" + modulePath + ".serverHandshakeState",
			},
		},
		{
			name: "client_and_server",
			program: fmt.Sprintf(`package main
import tls %q
func main() {
  tls.Dial("", "", nil)
  tls.Server(nil, nil)
}
`, modulePath),
			want: []string{
				modulePath + ".(*Conn).clientHandshake",
				modulePath + ".(*Conn).serverHandshake",
			},
		},
		{
			name: "only_client",
			program: fmt.Sprintf(`package main
import tls %q
func main() { tls.Dial("", "", nil) }
`, modulePath),
			want: []string{
				modulePath + ".(*Conn).clientHandshake",
			},
			bad: []string{
				modulePath + ".(*Conn).serverHandshake",
			},
		},
		// TODO: add only_server like func main() { tls.Server(nil, nil) }
		// That currently brings in the client via Conn.handleRenegotiation.

	}
	for _, tt := range tests {
		tt := tt // capture range variable for parallel execution
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel() // run subtests in parallel for faster execution

			// Each subtest gets its own temp directory for parallel safety
			tmpDir := t.TempDir()
			goFile := filepath.Join(tmpDir, "x.go")
			exeFile := filepath.Join(tmpDir, "x.exe")
			modFile := filepath.Join(tmpDir, "go.mod")

			if err := os.WriteFile(goFile, []byte(tt.program), 0644); err != nil {
				t.Fatal(err)
			}
			modContent := fmt.Sprintf("module linkgctest\n\ngo 1.24\n\nrequire %s v0.0.0\n\nreplace %s => %s\n",
				modulePath, modulePath, moduleDir)
			if err := os.WriteFile(modFile, []byte(modContent), 0644); err != nil {
				t.Fatal(err)
			}

			// Use optimized build flags:
			// -trimpath removes file system paths for reproducible builds and better cache hits
			// CGO_ENABLED=0 forces pure Go build which is faster
			// Note: cannot use -ldflags="-s -w" as we need symbols for nm inspection
			cmd := exec.Command(goBin, "build", "-trimpath", "-o", exeFile, goFile)
			cmd.Dir = tmpDir
			cmd.Env = append(os.Environ(), "CGO_ENABLED=0")
			if out, err := cmd.CombinedOutput(); err != nil {
				t.Fatalf("compile: %v, %s", err, out)
			}

			cmd = exec.Command(goBin, "tool", "nm", exeFile)
			nm, err := cmd.CombinedOutput()
			if err != nil {
				t.Fatalf("nm: %v, %s", err, nm)
			}
			for _, sym := range tt.want {
				if !bytes.Contains(nm, []byte(sym)) {
					t.Errorf("expected symbol %q not found", sym)
				}
			}
			for _, sym := range tt.bad {
				if bytes.Contains(nm, []byte(sym)) {
					t.Errorf("unexpected symbol %q found", sym)
				}
			}
		})
	}
}
