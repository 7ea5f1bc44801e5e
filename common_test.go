// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tls

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"time"
)

// testRSAPrivateKey and testRSACertificate are a matched self-signed RSA
// key pair used by the key-agreement and ticket tests. They are generated
// once at test-binary startup rather than embedded as fixed PEM blobs so
// the key and the certificate's public key are guaranteed to agree.
var testRSAPrivateKey, testRSACertificate = mustGenerateTestRSAPair()

func mustGenerateTestRSAPair() (*rsa.PrivateKey, []byte) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic("tls: failed to generate test RSA key: " + err.Error())
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			CommonName: "Test RSA Certificate",
		},
		NotBefore:             time.Unix(0, 0),
		NotAfter:              time.Unix(0, 0).AddDate(100, 0, 0),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		panic("tls: failed to create test RSA certificate: " + err.Error())
	}

	return key, der
}
