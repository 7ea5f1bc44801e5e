// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tls

// QUICEncryptionLevel is a fragment of the crypto/tls-style QUIC binding
// seam: it labels which epoch a record-layer secret belongs to. The core
// targets a plain byte-stream transport, so quicState is
// never constructed and the methods below are unreachable in practice;
// they exist only so the shared record/handshake code, which is written
// against the same conditional structure as the upstream library, compiles
// without forking every c.quic-guarded branch.
type QUICEncryptionLevel int

const (
	QUICEncryptionLevelInitial QUICEncryptionLevel = iota
	QUICEncryptionLevelEarly
	QUICEncryptionLevelHandshake
	QUICEncryptionLevelApplication
)

type quicState struct {
	cancelc             <-chan struct{}
	cancel              func()
	enableSessionEvents bool
}

func (q *quicState) closeChannels() {}

func (c *Conn) quicGetTransportParameters() ([]byte, error) { return nil, nil }
func (c *Conn) quicSetTransportParameters(params []byte)    {}
func (c *Conn) quicSetReadSecret(level QUICEncryptionLevel, suite uint16, secret []byte)  {}
func (c *Conn) quicSetWriteSecret(level QUICEncryptionLevel, suite uint16, secret []byte) {}
func (c *Conn) quicWriteCryptoData(level QUICEncryptionLevel, data []byte)                {}
func (c *Conn) quicReadHandshakeBytes(n int) error                                        { return nil }
func (c *Conn) quicHandshakeComplete()                                                    {}
func (c *Conn) quicRejectedEarlyData()                                                    {}
func (c *Conn) quicResumeSession(session *SessionState) error                             { return nil }
func (c *Conn) quicStoreSession(session *SessionState)                                    {}
