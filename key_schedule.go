// Copyright 2018 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tls

import (
	"crypto/ecdh"
	"crypto/hmac"
	"crypto/mlkem"
	"errors"
	"hash"
	"io"
	"time"

	"github.com/refraction-networking/utls/internal/tls13"
)

// This file contains the functions necessary to compute the TLS 1.3 key
// schedule. See RFC 8446, Section 7.

// nextTrafficSecret generates the next traffic secret, given the current one,
// according to RFC 8446, Section 7.2.
func (c *cipherSuiteTLS13) nextTrafficSecret(trafficSecret []byte) ([]byte, error) {
	return tls13.ExpandLabel(c.hash.New, trafficSecret, "traffic upd", nil, c.hash.Size())
}

// trafficKey generates traffic keys according to RFC 8446, Section 7.3.
func (c *cipherSuiteTLS13) trafficKey(trafficSecret []byte) (key, iv []byte, err error) {
	key, err = tls13.ExpandLabel(c.hash.New, trafficSecret, "key", nil, c.keyLen)
	if err != nil {
		return nil, nil, err
	}
	iv, err = tls13.ExpandLabel(c.hash.New, trafficSecret, "iv", nil, aeadNonceLength)
	if err != nil {
		return nil, nil, err
	}
	return key, iv, nil
}

// finishedHash generates the Finished verify_data or PskBinderEntry according
// to RFC 8446, Section 4.4.4. See sections 4.4 and 4.2.11.2 for the baseKey
// selection.
func (c *cipherSuiteTLS13) finishedHash(baseKey []byte, transcript hash.Hash) ([]byte, error) {
	finishedKey, err := tls13.ExpandLabel(c.hash.New, baseKey, "finished", nil, c.hash.Size())
	if err != nil {
		return nil, err
	}
	verifyData := hmac.New(c.hash.New, finishedKey)
	verifyData.Write(transcript.Sum(nil))
	return verifyData.Sum(nil), nil
}

// pskBinderMinDuration is the minimum time floor for PSK binder computation
// when constant-time mode is enabled.
//
// The value is chosen to be longer than typical binder computation time
// (which varies based on transcript size) but short enough to not
// significantly impact handshake latency.
const pskBinderMinDuration = 150 * time.Microsecond

// finishedHashConstantTime generates PSK binders with a normalized minimum
// duration, masking timing variation introduced by transcript hashing.
// The underlying HMAC computation is already constant-time; this adds a
// floor so the overall operation timing doesn't vary with input size.
func (c *cipherSuiteTLS13) finishedHashConstantTime(baseKey []byte, transcript hash.Hash) ([]byte, error) {
	start := time.Now()

	binder, err := c.finishedHash(baseKey, transcript)

	elapsed := time.Since(start)
	if elapsed < pskBinderMinDuration {
		time.Sleep(pskBinderMinDuration - elapsed)
	}

	return binder, err
}

// exportKeyingMaterial implements RFC5705 exporters for TLS 1.3 according to
// RFC 8446, Section 7.5.
func (c *cipherSuiteTLS13) exportKeyingMaterial(s *tls13.MasterSecret, transcript hash.Hash) func(string, []byte, int) ([]byte, error) {
	expMasterSecret, err := s.ExporterMasterSecret(transcript)
	if err != nil {
		// Return a function that always returns the error
		return func(label string, context []byte, length int) ([]byte, error) {
			return nil, err
		}
	}
	return func(label string, context []byte, length int) ([]byte, error) {
		return expMasterSecret.Exporter(label, context, length)
	}
}

type keySharePrivateKeys struct {
	curveID CurveID
	ecdhe   *ecdh.PrivateKey
	mlkem   *mlkem.DecapsulationKey768
	// mlkem1024 is used only for SecP384r1MLKEM1024, which pairs P-384 with
	// the larger ML-KEM-1024 parameter set.
	mlkem1024 *mlkem.DecapsulationKey1024
}

const (
	x25519PublicKeySize = 32
	p256PublicKeySize   = 65
	p384PublicKeySize   = 97

	mlkem768EncapsulationKeySize  = mlkem.EncapsulationKeySize768
	mlkem1024EncapsulationKeySize = mlkem.EncapsulationKeySize1024
)

// generateECDHEKey returns a PrivateKey that implements Diffie-Hellman
// according to RFC 8446, Section 4.2.8.2.
func generateECDHEKey(rand io.Reader, curveID CurveID) (*ecdh.PrivateKey, error) {
	curve, ok := curveForCurveID(curveID)
	if !ok {
		return nil, errors.New("tls: internal error: unsupported curve")
	}

	return curve.GenerateKey(rand)
}

func curveForCurveID(id CurveID) (ecdh.Curve, bool) {
	switch id {
	case X25519:
		return ecdh.X25519(), true
	case CurveP256:
		return ecdh.P256(), true
	case CurveP384:
		return ecdh.P384(), true
	case CurveP521:
		return ecdh.P521(), true
	default:
		return nil, false
	}
}
