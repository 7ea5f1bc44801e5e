// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tls

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/subtle"
	"errors"
	"fmt"
	"hash"
	"io"
	"time"

	utlserrors "github.com/refraction-networking/utls/errors"
)

// serverHandshakeState contains details of a server handshake in progress.
// It's discarded once the handshake has completed.
type serverHandshakeState struct {
	c            *Conn
	ctx          context.Context
	clientHello  *clientHelloMsg
	hello        *serverHelloMsg
	suite        *cipherSuite
	sessionState *SessionState
	finishedHash finishedHash
	masterSecret []byte
	cert         *Certificate
}

// readClientHello reads the first handshake message from the client, picks a
// TLS version and a [Config] (via GetConfigForClient, if set), and populates
// the connection's ticket keys. It is shared by the TLS 1.2 and TLS 1.3
// server handshake paths.
func (c *Conn) readClientHello(ctx context.Context) (*clientHelloMsg, error) {
	msg, err := c.readHandshake(nil)
	if err != nil {
		return nil, err
	}
	clientHello, ok := msg.(*clientHelloMsg)
	if !ok {
		c.sendAlert(alertUnexpectedMessage)
		return nil, unexpectedMessageError(clientHello, msg)
	}

	var configForClient *Config
	originalConfig := c.config
	if originalConfig.GetConfigForClient != nil {
		chi := clientHelloInfo(ctx, c, clientHello)
		configForClient, err = originalConfig.GetConfigForClient(chi)
		if err != nil {
			c.sendAlert(alertInternalError)
			return nil, err
		}
		if configForClient != nil {
			c.config = configForClient
		}
	}

	c.ticketKeys, err = c.config.ticketKeys(configForClient)
	if err != nil {
		c.sendAlert(alertInternalError)
		return nil, err
	}

	clientVersions := clientHello.supportedVersions
	if len(clientVersions) == 0 {
		clientVersions = supportedVersionsFromMax(clientHello.vers)
	}
	vers, ok := c.config.mutualVersion(roleServer, clientVersions)
	if !ok {
		c.sendAlert(alertProtocolVersion)
		return nil, utlserrors.New("tls: client offered only unsupported versions: ", fmt.Sprintf("%x", clientVersions)).AtError()
	}
	c.vers = vers
	c.haveVers = true
	c.in.version = vers
	c.out.version = vers

	return clientHello, nil
}

// serverHandshake performs a TLS handshake as a server.
func (c *Conn) serverHandshake(ctx context.Context) (err error) {
	var remoteAddr string
	if c.conn != nil {
		if addr := c.conn.RemoteAddr(); addr != nil {
			remoteAddr = addr.String()
		}
	}
	if remoteAddr == "" {
		remoteAddr = "unknown"
	}

	callOnHandshakeStart(remoteAddr)
	startTime := time.Now()
	defer func() {
		if err != nil {
			callOnHandshakeFailure(remoteAddr, err.Error())
		} else {
			callOnHandshakeSuccess(remoteAddr, time.Since(startTime))
		}
	}()

	clientHello, err := c.readClientHello(ctx)
	if err != nil {
		return err
	}

	if c.vers == VersionTLS13 {
		hs := serverHandshakeStateTLS13{
			c:           c,
			ctx:         ctx,
			clientHello: clientHello,
		}
		return hs.handshake()
	}

	hs := serverHandshakeState{
		c:           c,
		ctx:         ctx,
		clientHello: clientHello,
	}
	return hs.handshake()
}

func (hs *serverHandshakeState) handshake() error {
	c := hs.c

	if err := hs.processClientHello(); err != nil {
		return err
	}

	// For an overview of TLS handshaking, see RFC 5246, Section 7.3.
	c.buffering = true
	if hs.checkForResumption() {
		// The client has included a session ticket and so we do an
		// abbreviated handshake.
		c.didResume = true
		if err := hs.doResumeHandshake(); err != nil {
			return err
		}
		if err := hs.establishKeys(); err != nil {
			return err
		}
		if err := hs.sendFinished(c.serverFinished[:]); err != nil {
			return err
		}
		if _, err := c.flush(); err != nil {
			return err
		}
		c.clientFinishedIsFirst = false
		if err := hs.readFinished(c.clientFinished[:]); err != nil {
			return err
		}
	} else {
		// The client didn't include a session ticket, or it wasn't
		// valid so we do a full handshake.
		if err := hs.pickCertificate(); err != nil {
			return err
		}
		c.buffering = true
		if err := hs.doFullHandshake(); err != nil {
			return err
		}
		if err := hs.establishKeys(); err != nil {
			return err
		}
		if err := hs.readFinished(c.clientFinished[:]); err != nil {
			return err
		}
		c.clientFinishedIsFirst = true
		c.buffering = true
		if err := hs.sendSessionTicket(); err != nil {
			return err
		}
		if err := hs.sendFinished(c.serverFinished[:]); err != nil {
			return err
		}
		if _, err := c.flush(); err != nil {
			return err
		}
	}

	c.ekm = ekmFromMasterSecret(c.vers, hs.suite, hs.masterSecret, hs.clientHello.random, hs.hello.random)
	c.isHandshakeComplete.Store(true)

	return nil
}

// processClientHello picks version-independent parameters and builds the
// ServerHello message, without yet selecting a certificate or cipher suite.
func (hs *serverHandshakeState) processClientHello() error {
	c := hs.c

	hs.hello = new(serverHelloMsg)
	// This path serves TLS 1.2 and earlier, so the ServerHello version is
	// the negotiated version that readClientHello stored in c.vers.
	hs.hello.vers = c.vers

	foundCompression := false
	for _, compression := range hs.clientHello.compressionMethods {
		if compression == compressionNone {
			foundCompression = true
			break
		}
	}
	if !foundCompression {
		c.sendAlert(alertHandshakeFailure)
		return utlserrors.New("tls: client does not support uncompressed connections").AtError()
	}

	hs.hello.random = make([]byte, 32)
	if _, err := io.ReadFull(c.config.rand(), hs.hello.random); err != nil {
		c.sendAlert(alertInternalError)
		return err
	}

	if len(hs.clientHello.secureRenegotiation) != 0 {
		c.sendAlert(alertHandshakeFailure)
		return utlserrors.New("tls: initial handshake had non-empty renegotiation extension").AtError()
	}
	hs.hello.secureRenegotiationSupported = hs.clientHello.secureRenegotiationSupported
	hs.hello.secureRenegotiation = []byte{}

	hs.hello.extendedMasterSecret = hs.clientHello.extendedMasterSecret

	hs.hello.sessionId = hs.clientHello.sessionId

	selectedProto, err := negotiateALPN(c.config.NextProtos, hs.clientHello.alpnProtocols, c.quic != nil)
	if err != nil {
		c.sendAlert(alertNoApplicationProtocol)
		return err
	}
	hs.hello.alpnProtocol = selectedProto
	c.clientProtocol = selectedProto

	hs.cert = nil

	return nil
}

// pickCertificate selects a certificate and, along with it, the available key
// exchange mechanisms and cipher suite.
func (hs *serverHandshakeState) pickCertificate() error {
	c := hs.c

	// Use a negotiated cipher suite to decide whether an RSA or ECDSA
	// certificate is acceptable, the way the original selectCipherSuite
	// logic would via tryCipherSuite, but defer the actual selection of a
	// cipher suite until after the certificate is known.
	chi := clientHelloInfo(hs.ctx, c, hs.clientHello)
	cert, err := c.config.getCertificate(chi)
	if err != nil {
		if errors.Is(err, errNoCertificates) {
			c.sendAlert(alertUnrecognizedName)
		} else {
			c.sendAlert(alertInternalError)
		}
		return err
	}
	hs.cert = cert

	preferenceOrder := cipherSuitesPreferenceOrder
	if !hasAESGCMHardwareSupport {
		preferenceOrder = cipherSuitesPreferenceOrderNoAES
	}
	configCipherSuites := c.config.cipherSuites()
	preferenceList := make([]uint16, 0, len(preferenceOrder))
	for _, suiteID := range preferenceOrder {
		if mutualCipherSuite(configCipherSuites, suiteID) != nil {
			preferenceList = append(preferenceList, suiteID)
		}
	}

	for _, id := range preferenceList {
		candidate := mutualCipherSuite(hs.clientHello.cipherSuites, id)
		if candidate == nil {
			continue
		}
		if candidate.flags&suiteTLS12 != 0 && c.vers < VersionTLS12 {
			continue
		}
		if candidate.flags&suiteECDHE != 0 {
			if !supportsECDHE(c, hs.clientHello.supportedCurves, hs.clientHello.supportedPoints) {
				continue
			}
			if candidate.flags&suiteECSign != 0 {
				if _, ok := hs.cert.PrivateKey.(crypto.Signer); !ok {
					continue
				}
				if !certificateHasClass(hs.cert, false) {
					continue
				}
			} else if !certificateHasClass(hs.cert, true) {
				continue
			}
		} else {
			if _, ok := hs.cert.PrivateKey.(crypto.Decrypter); !ok {
				continue
			}
			if !certificateHasClass(hs.cert, true) {
				continue
			}
		}
		hs.suite = candidate
		break
	}
	if hs.suite == nil {
		c.sendAlert(alertHandshakeFailure)
		return utlserrors.New("tls: no cipher suite supported by both client and server").AtError()
	}
	c.cipherSuite = hs.suite.id
	hs.hello.cipherSuite = hs.suite.id

	return nil
}

// certificateHasClass reports whether the leaf of cert is an RSA (wantRSA) or
// an ECDSA/Ed25519 public key, parsing the leaf if necessary.
func certificateHasClass(cert *Certificate, wantRSA bool) bool {
	leaf := cert.Leaf
	if leaf == nil {
		parsed, err := globalCertCache.newCert(cert.Certificate[0])
		if err != nil {
			return false
		}
		leaf = parsed.cert
	}
	switch leaf.PublicKey.(type) {
	case *rsa.PublicKey:
		return wantRSA
	case *ecdsa.PublicKey, ed25519.PublicKey:
		return !wantRSA
	default:
		return false
	}
}

// supportsECDHE reports whether the client supports ECDHE, searching
// supportedCurves for a curve we have and, pre-TLS-1.3, requiring the
// uncompressed point format.
func supportsECDHE(c *Conn, supportedCurves []CurveID, supportedPoints []uint8) bool {
	supportsPointFormat := false
	for _, pointFormat := range supportedPoints {
		if pointFormat == pointFormatUncompressed {
			supportsPointFormat = true
			break
		}
	}
	if len(supportedPoints) == 0 {
		// Some clients don't send a Supported Points extension, in which
		// case we assume that they only support the uncompressed point
		// format.
		supportsPointFormat = true
	}
	if !supportsPointFormat {
		return false
	}

	for _, curve := range supportedCurves {
		if c.config.supportsCurve(c.vers, curve) {
			return true
		}
	}
	return false
}

// checkForResumption reports whether the session ticket or session ID sent
// by the client corresponds to a session we can resume, populating
// hs.sessionState when it does.
func (hs *serverHandshakeState) checkForResumption() bool {
	c := hs.c

	if c.config.SessionTicketsDisabled {
		return false
	}

	plaintext := c.config.decryptTicket(hs.clientHello.sessionTicket, c.ticketKeys)
	if plaintext == nil {
		return false
	}
	sessionState, err := ParseSessionState(plaintext)
	if err != nil {
		return false
	}

	if sessionState.version != c.vers {
		return false
	}

	cipherSuiteOk := false
	for _, id := range hs.clientHello.cipherSuites {
		if id == sessionState.cipherSuite {
			cipherSuiteOk = true
			break
		}
	}
	if !cipherSuiteOk {
		return false
	}

	sessionHasClientCerts := len(sessionState.peerCertificates) != 0
	needClientCerts := requiresClientCert(c.config.ClientAuth)
	if needClientCerts && !sessionHasClientCerts {
		return false
	}
	if sessionHasClientCerts && c.config.ClientAuth == NoClientCert {
		return false
	}

	hs.sessionState = sessionState
	hs.suite = mutualCipherSuite(hs.clientHello.cipherSuites, sessionState.cipherSuite)
	return hs.suite != nil
}

func (hs *serverHandshakeState) doResumeHandshake() error {
	c := hs.c

	hs.hello.cipherSuite = hs.suite.id
	c.cipherSuite = hs.suite.id
	// We echo the client's session ID in the ServerHello to let it know
	// that we're resuming.
	hs.hello.sessionId = hs.clientHello.sessionId
	hs.hello.ticketSupported = hs.clientHello.ticketSupported
	hs.hello.extendedMasterSecret = hs.clientHello.extendedMasterSecret && hs.sessionState.extMasterSecret

	hs.finishedHash = newFinishedHash(c.vers, hs.suite)
	hs.finishedHash.discardHandshakeBuffer()
	if err := transcriptMsg(hs.clientHello, &hs.finishedHash); err != nil {
		return err
	}
	if _, err := c.writeHandshakeRecord(hs.hello, &hs.finishedHash); err != nil {
		return err
	}

	if err := c.processCertsFromClient(Certificate{
		Certificate: certificatesToBytesSlice(hs.sessionState.peerCertificates),
	}); len(hs.sessionState.peerCertificates) != 0 && err != nil {
		return err
	}
	c.verifiedChains = hs.sessionState.verifiedChains
	c.peerCertificates = hs.sessionState.peerCertificates
	c.ocspResponse = hs.sessionState.ocspResponse
	c.scts = hs.sessionState.scts

	hs.masterSecret = hs.sessionState.secret
	c.extMasterSecret = hs.sessionState.extMasterSecret

	return nil
}

func (hs *serverHandshakeState) doFullHandshake() error {
	c := hs.c

	hs.hello.ticketSupported = hs.clientHello.ticketSupported && !c.config.SessionTicketsDisabled

	hs.finishedHash = newFinishedHash(c.vers, hs.suite)
	if len(c.config.Certificates) == 0 && c.config.GetCertificate == nil && c.config.ClientAuth < RequestClientCert {
		hs.finishedHash.discardHandshakeBuffer()
	}
	if err := transcriptMsg(hs.clientHello, &hs.finishedHash); err != nil {
		return err
	}
	if _, err := c.writeHandshakeRecord(hs.hello, &hs.finishedHash); err != nil {
		return err
	}

	certMsg := new(certificateMsg)
	certMsg.certificates = hs.cert.Certificate
	if _, err := c.writeHandshakeRecord(certMsg, &hs.finishedHash); err != nil {
		return err
	}

	keyAgreement := hs.suite.ka(c.vers)
	skx, err := keyAgreement.generateServerKeyExchange(c.config, hs.cert, hs.clientHello, hs.hello)
	if err != nil {
		c.sendAlert(alertHandshakeFailure)
		return err
	}
	if skx != nil {
		if _, err := c.writeHandshakeRecord(skx, &hs.finishedHash); err != nil {
			return err
		}
	}

	var certReq *certificateRequestMsg
	if c.config.ClientAuth >= RequestClientCert {
		certReq = new(certificateRequestMsg)
		certReq.certificateTypes = []byte{certTypeRSASign, certTypeECDSASign}
		if c.vers >= VersionTLS12 {
			certReq.hasSignatureAlgorithm = true
			certReq.supportedSignatureAlgorithms = supportedSignatureAlgorithms()
		}
		if _, err := c.writeHandshakeRecord(certReq, &hs.finishedHash); err != nil {
			return err
		}
	}

	helloDone := new(serverHelloDoneMsg)
	if _, err := c.writeHandshakeRecord(helloDone, &hs.finishedHash); err != nil {
		return err
	}

	if _, err := c.flush(); err != nil {
		return err
	}

	var pub crypto.PublicKey // public key for client auth, if any

	msg, err := c.readHandshake(&hs.finishedHash)
	if err != nil {
		return err
	}

	// If we requested a client certificate, then the client must send a
	// certificate message, even if it's empty.
	if c.config.ClientAuth >= RequestClientCert {
		certMsg, ok := msg.(*certificateMsg)
		if !ok {
			c.sendAlert(alertUnexpectedMessage)
			return unexpectedMessageError(certMsg, msg)
		}

		if err := c.processCertsFromClient(Certificate{Certificate: certMsg.certificates}); err != nil {
			return err
		}
		if len(certMsg.certificates) != 0 {
			pub = c.peerCertificates[0].PublicKey
		}

		msg, err = c.readHandshake(&hs.finishedHash)
		if err != nil {
			return err
		}
	}

	// Get client key exchange
	ckx, ok := msg.(*clientKeyExchangeMsg)
	if !ok {
		c.sendAlert(alertUnexpectedMessage)
		return unexpectedMessageError(ckx, msg)
	}

	preMasterSecret, err := keyAgreement.processClientKeyExchange(c.config, hs.cert, ckx, c.vers)
	if err != nil {
		c.sendAlert(alertHandshakeFailure)
		return err
	}
	if hs.hello.extendedMasterSecret {
		c.extMasterSecret = true
		hs.masterSecret = extMasterFromPreMasterSecret(c.vers, hs.suite, preMasterSecret, hs.finishedHash.Sum())
	} else {
		hs.masterSecret = masterFromPreMasterSecret(c.vers, hs.suite, preMasterSecret, hs.clientHello.random, hs.hello.random)
	}
	zeroSlice(preMasterSecret)

	if err := c.config.writeKeyLog(keyLogLabelTLS12, hs.clientHello.random, hs.masterSecret); err != nil {
		c.sendAlert(alertInternalError)
		return utlserrors.New("tls: failed to write to key log").Base(err).AtError()
	}

	// If we received a client cert in response to our certificate request
	// message, and the client certificate was not empty, then we expect
	// to get a CertificateVerify message in the ClientKeyExchange flow
	// immediately after the certificate.
	if pub != nil {
		msg, err = c.readHandshake(nil)
		if err != nil {
			return err
		}
		certVerify, ok := msg.(*certificateVerifyMsg)
		if !ok {
			c.sendAlert(alertUnexpectedMessage)
			return unexpectedMessageError(certVerify, msg)
		}

		var sigType uint8
		var sigHash crypto.Hash
		if c.vers >= VersionTLS12 {
			if !isSupportedSignatureAlgorithm(certVerify.signatureAlgorithm, certReq.supportedSignatureAlgorithms) {
				c.sendAlert(alertIllegalParameter)
				return utlserrors.New("tls: client certificate used with invalid signature algorithm").AtError()
			}
			sigType, sigHash, err = typeAndHashFromSignatureScheme(certVerify.signatureAlgorithm)
			if err != nil {
				return c.sendAlert(alertInternalError)
			}
		} else {
			sigType, sigHash, err = legacyTypeAndHashFromPublicKey(pub)
			if err != nil {
				c.sendAlert(alertIllegalParameter)
				return err
			}
		}

		signed := hs.finishedHash.hashForClientCertificate(sigType, sigHash)
		if err := verifyHandshakeSignature(sigType, pub, sigHash, signed, certVerify.signature); err != nil {
			c.sendAlert(alertDecryptError)
			return utlserrors.New("tls: invalid signature by the client certificate: ", err.Error()).AtError()
		}

		if err := transcriptMsg(certVerify, &hs.finishedHash); err != nil {
			return err
		}
	}

	hs.finishedHash.discardHandshakeBuffer()

	return nil
}

func (hs *serverHandshakeState) establishKeys() error {
	c := hs.c

	clientMAC, serverMAC, clientKey, serverKey, clientIV, serverIV :=
		keysFromMasterSecret(c.vers, hs.suite, hs.masterSecret, hs.clientHello.random, hs.hello.random, hs.suite.macLen, hs.suite.keyLen, hs.suite.ivLen)

	var clientCipher, serverCipher any
	var clientHash, serverHash hash.Hash
	if hs.suite.cipher != nil {
		clientCipher = hs.suite.cipher(clientKey, clientIV, true /* for reading */)
		clientHash = hs.suite.mac(clientMAC)
		serverCipher = hs.suite.cipher(serverKey, serverIV, false /* not for reading */)
		serverHash = hs.suite.mac(serverMAC)
	} else {
		var err error
		clientCipher, err = hs.suite.aead(clientKey, clientIV)
		if err != nil {
			return utlserrors.New("tls: failed to create client AEAD cipher").Base(err).AtError()
		}
		serverCipher, err = hs.suite.aead(serverKey, serverIV)
		if err != nil {
			return utlserrors.New("tls: failed to create server AEAD cipher").Base(err).AtError()
		}
	}

	c.in.prepareCipherSpec(c.vers, clientCipher, clientHash)
	c.out.prepareCipherSpec(c.vers, serverCipher, serverHash)
	return nil
}

// sendSessionTicket sends a NewSessionTicket message, if the client
// requested one, as part of a full handshake.
func (hs *serverHandshakeState) sendSessionTicket() error {
	if !hs.hello.ticketSupported {
		return nil
	}
	c := hs.c

	state := c.sessionState()
	state.secret = hs.masterSecret
	stateBytes, err := state.Bytes()
	if err != nil {
		c.sendAlert(alertInternalError)
		return err
	}
	ticket, err := c.config.encryptTicket(stateBytes, c.ticketKeys)
	if err != nil {
		c.sendAlert(alertInternalError)
		return err
	}

	m := &newSessionTicketMsg{ticket: ticket}
	if _, err := c.writeHandshakeRecord(m, &hs.finishedHash); err != nil {
		return err
	}

	return nil
}

func (hs *serverHandshakeState) readFinished(out []byte) error {
	c := hs.c

	if err := c.readChangeCipherSpec(); err != nil {
		return err
	}

	msg, err := c.readHandshake(nil)
	if err != nil {
		return err
	}
	clientFinished, ok := msg.(*finishedMsg)
	if !ok {
		c.sendAlert(alertUnexpectedMessage)
		return unexpectedMessageError(clientFinished, msg)
	}

	verify := hs.finishedHash.clientSum(hs.masterSecret)
	if len(verify) != len(clientFinished.verifyData) ||
		subtle.ConstantTimeCompare(verify, clientFinished.verifyData) != 1 {
		c.sendAlert(alertHandshakeFailure)
		return utlserrors.New("tls: client's Finished message is incorrect").AtError()
	}

	if err := transcriptMsg(clientFinished, &hs.finishedHash); err != nil {
		return err
	}

	copy(out, verify)
	return nil
}

func (hs *serverHandshakeState) sendFinished(out []byte) error {
	c := hs.c

	if err := c.writeChangeCipherRecord(); err != nil {
		return err
	}

	finished := new(finishedMsg)
	finished.verifyData = hs.finishedHash.serverSum(hs.masterSecret)
	if _, err := c.writeHandshakeRecord(finished, &hs.finishedHash); err != nil {
		return err
	}
	copy(out, finished.verifyData)

	return nil
}
