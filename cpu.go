// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tls

import "golang.org/x/sys/cpu"

// hasAESGCMHardware reports whether the running CPU has hardware support
// for AES-GCM, used to decide whether to prefer AES-GCM or ChaCha20-Poly1305
// cipher suites when the client doesn't express a preference.
func hasAESGCMHardware() bool {
	return cpu.X86.HasAES && cpu.X86.HasPCLMULQDQ || cpu.ARM64.HasAES || cpu.S390X.HasAES && cpu.S390X.HasAESGCM
}
