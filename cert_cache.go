// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tls

import (
	"crypto/x509"
	"runtime"
	"sync"
	"weak"
)

// certCache implements an intern table for parsed x509.Certificates, keyed by
// their DER encoding, in a similar fashion to BoringSSL's CRYPTO_BUFFER_POOL.
// This allows for a single x509.Certificate to be kept in memory and referenced
// from multiple Conns. Returned references should not be mutated. A DER
// encoding whose cached entry is still reachable is not parsed again; the
// cached certificate is returned instead.
type certCache struct {
	sync.Map
}

var globalCertCache = new(certCache)

// activeCert represents a potentially shared x509.Certificate. The cache holds
// only a weak pointer to it; once no Conn references the activeCert any more,
// it is garbage collected and a cleanup removes its entry from the cache.
type activeCert struct {
	cert *x509.Certificate
}

// newCert returns a x509.Certificate parsed from der. If there is already a
// reference to the certificate in the cache, the existing reference will be
// returned, otherwise a new one will be created.
func (cc *certCache) newCert(der []byte) (*activeCert, error) {
	if entry, ok := cc.Load(string(der)); ok {
		if cert := entry.(weak.Pointer[activeCert]).Value(); cert != nil {
			return cert, nil
		}
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, err
	}

	entry := &activeCert{cert}

	cc.Store(string(der), weak.Make(entry))

	runtime.AddCleanup(entry, func(derString string) {
		cc.evict(derString)
	}, string(der))

	return entry, nil
}

// evict removes a cert from the cache if a weak pointer to it is still stored
// there, and if that weak pointer points to no-longer-reachable memory.
func (cc *certCache) evict(der string) {
	if entry, ok := cc.Load(der); ok {
		if entry.(weak.Pointer[activeCert]).Value() == nil {
			cc.CompareAndDelete(der, entry)
		}
	}
}
