// Copyright 2018 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tls

import (
	"context"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"fmt"

	utlserrors "github.com/refraction-networking/utls/errors"
)

// clientHelloInfo builds a [ClientHelloInfo] from a parsed ClientHello, for
// use with [Config.GetCertificate] and [Config.GetConfigForClient].
func clientHelloInfo(ctx context.Context, c *Conn, clientHello *clientHelloMsg) *ClientHelloInfo {
	supportedVersions := clientHello.supportedVersions
	if len(supportedVersions) == 0 {
		supportedVersions = supportedVersionsFromMax(clientHello.vers)
	}

	return &ClientHelloInfo{
		CipherSuites:      clientHello.cipherSuites,
		ServerName:        clientHello.serverName,
		SupportedCurves:   clientHello.supportedCurves,
		SupportedPoints:   clientHello.supportedPoints,
		SignatureSchemes:  clientHello.supportedSignatureAlgorithms,
		SupportedProtos:   clientHello.alpnProtocols,
		SupportedVersions: supportedVersions,
		Extensions:        clientHello.extensions,
		Conn:              c.conn,
		config:            c.config,
		ctx:               ctx,
	}
}


// negotiateALPN picks a shared application protocol from a list advertised by
// the server and one advertised by the client, preferring the server's order.
// See RFC 7301.
func negotiateALPN(serverProtos, clientProtos []string, quic bool) (string, error) {
	if len(serverProtos) == 0 || len(clientProtos) == 0 {
		if quic && len(serverProtos) != 0 {
			// RFC 9001, Section 8.1: the server MUST select an application
			// protocol if it supports one. If it cannot, it must close the
			// connection; there is no way to leave ALPN unnegotiated on a
			// QUIC connection that offered it.
			return "", utlserrors.New("tls: client did not request ALPN protocol").AtError()
		}
		return "", nil
	}
	for _, s := range serverProtos {
		for _, c := range clientProtos {
			if s == c {
				return s, nil
			}
		}
	}
	return "", utlserrors.New("tls: no application protocol").AtError()
}

// processCertsFromClient verifies the client's certificate chain (presented
// during mutual authentication), populating c.peerCertificates and
// c.verifiedChains as appropriate for the configured [Config.ClientAuth] policy.
func (c *Conn) processCertsFromClient(certificate Certificate) error {
	certificates := certificate.Certificate
	certs := make([]*x509.Certificate, len(certificates))
	activeHandles := make([]*activeCert, len(certificates))
	for i, asn1Data := range certificates {
		handle, err := globalCertCache.newCert(asn1Data)
		if err != nil {
			c.sendAlert(alertBadCertificate)
			return utlserrors.New("tls: failed to parse client certificate: ", err.Error()).AtError()
		}
		activeHandles[i] = handle
		certs[i] = handle.cert
	}
	if c.conn != nil {
		callOnRecvCertificateChain(c.conn.RemoteAddr().String(), certs)
	}

	if len(certs) == 0 && requiresClientCert(c.config.ClientAuth) {
		c.sendAlert(alertBadCertificate)
		return utlserrors.New("tls: client didn't provide a certificate").AtError()
	}

	if c.config.ClientAuth >= VerifyClientCertIfGiven && len(certs) > 0 {
		opts := x509.VerifyOptions{
			Roots:         c.config.ClientCAs,
			CurrentTime:   c.config.time(),
			Intermediates: x509.NewCertPool(),
			KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
		}

		for _, cert := range certs[1:] {
			opts.Intermediates.AddCert(cert)
		}

		chains, err := certs[0].Verify(opts)
		if err != nil {
			c.sendAlert(alertBadCertificate)
			return &CertificateVerificationError{UnverifiedCertificates: certs, Err: err}
		}
		c.verifiedChains, err = fipsAllowedChains(chains)
		if err != nil {
			c.sendAlert(alertBadCertificate)
			return &CertificateVerificationError{UnverifiedCertificates: certs, Err: err}
		}
	}

	c.peerCertificates = certs
	c.activeCertHandles = activeHandles
	c.ocspResponse = certificate.OCSPStaple
	c.scts = certificate.SignedCertificateTimestamps

	if len(certs) > 0 {
		switch certs[0].PublicKey.(type) {
		case *rsa.PublicKey, *ecdsa.PublicKey, ed25519.PublicKey:
		default:
			c.sendAlert(alertUnsupportedCertificate)
			return utlserrors.New("tls: client's certificate contains an unsupported type of public key: ", fmt.Sprintf("%T", certs[0].PublicKey)).AtError()
		}
	}

	if c.config.VerifyPeerCertificate != nil {
		if err := c.config.VerifyPeerCertificate(certificates, c.verifiedChains); err != nil {
			c.sendAlert(alertBadCertificate)
			return err
		}
	}

	return nil
}
