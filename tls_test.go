// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tls

import (
	"errors"
	"net"
	"testing"
)

func TestServerAndClientConstructors(t *testing.T) {
	c, s := net.Pipe()
	defer c.Close()
	defer s.Close()

	client := Client(c, testClientConfig())
	if !client.isClient {
		t.Error("Client did not mark the connection as client-side")
	}
	server := Server(s, testServerConfig())
	if server.isClient {
		t.Error("Server marked the connection as client-side")
	}
}

func TestListenRejectsConfigWithoutCertificates(t *testing.T) {
	if _, err := Listen("tcp", "127.0.0.1:0", &Config{}); err == nil {
		t.Error("Listen accepted a Config with no certificate source")
	}
}

func TestListenAndDial(t *testing.T) {
	l, err := Listen("tcp", "127.0.0.1:0", testServerConfig())
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer l.Close()

	acceptErr := make(chan error, 1)
	go func() {
		conn, err := l.Accept()
		if err != nil {
			acceptErr <- err
			return
		}
		defer conn.Close()
		tlsConn, ok := conn.(*Conn)
		if !ok {
			acceptErr <- errors.New("tls: Accept did not return a *Conn")
			return
		}
		acceptErr <- tlsConn.Handshake()
	}()

	clientConfig := testClientConfig()
	conn, err := Dial("tcp", l.Addr().String(), clientConfig)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if err := <-acceptErr; err != nil {
		t.Fatalf("server-side accept/handshake: %v", err)
	}
	if !conn.isHandshakeComplete.Load() {
		t.Error("client connection did not complete its handshake")
	}
}
