// Copyright 2024 The uTLS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package tls12 implements the TLS 1.2 pseudorandom function and the
// derived master-secret computations, RFC 5246 Section 5 and RFC 7627.
package tls12

import (
	"crypto/hmac"
	"hash"
)

// pHash implements the TLS P_hash function, RFC 5246 Section 5.
func pHash(result, secret, seed []byte, hashFunc func() hash.Hash) {
	h := hmac.New(hashFunc, secret)
	h.Write(seed)
	a := h.Sum(nil)

	j := 0
	for j < len(result) {
		h.Reset()
		h.Write(a)
		h.Write(seed)
		b := h.Sum(nil)
		copy(result[j:], b)
		j += len(b)

		h.Reset()
		h.Write(a)
		a = h.Sum(nil)
	}
}

// PRF implements the TLS pseudorandom function, RFC 5246 Section 5:
//
//	PRF(secret, label, seed) = P_<hash>(secret, label + seed)
func PRF(hashFunc func() hash.Hash, secret []byte, label string, seed []byte, keyLen int) []byte {
	labelAndSeed := make([]byte, len(label)+len(seed))
	copy(labelAndSeed, label)
	copy(labelAndSeed[len(label):], seed)

	result := make([]byte, keyLen)
	pHash(result, secret, labelAndSeed, hashFunc)
	return result
}

const masterSecretLength = 48

// MasterSecret derives the (extended) master secret from a pre-master
// secret and a session hash, per RFC 7627. TLS 1.2 implementations that
// negotiate the extended_master_secret extension use the handshake
// transcript hash as the seed instead of client||server random.
func MasterSecret(hashFunc func() hash.Hash, preMasterSecret, sessionHash []byte) []byte {
	return PRF(hashFunc, preMasterSecret, "extended master secret", sessionHash, masterSecretLength)
}
