// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package tls partially implements TLS 1.2 and TLS 1.3, as specified in RFC
// 5246 and RFC 8446, and includes support for TLS extensions such as the
// Server Name Indication (SNI) extension, session tickets, and support for
// one selected application-level protocol (ALPN).
//
// See https://tools.ietf.org/html/rfc5246 and https://tools.ietf.org/html/rfc8446
// for the protocol specifications.
package tls

import (
	"context"
	"errors"
	"net"
	"strings"
)

// Server returns a new TLS server side connection using conn as the
// underlying transport. The configuration config must be non-nil and must
// include at least one certificate or else set GetCertificate.
func Server(conn net.Conn, config *Config) *Conn {
	c := &Conn{
		conn:        conn,
		config:      config,
		isClient:    false,
		handshakeFn: nil,
	}
	c.handshakeFn = c.serverHandshake
	callOnConnectionStart(c.safeRemoteAddr())
	return c
}

// Client returns a new TLS client side connection using conn as the
// underlying transport. The config cannot be nil: users must set either
// ServerName or InsecureSkipVerify in the config.
func Client(conn net.Conn, config *Config) *Conn {
	c := &Conn{
		conn:        conn,
		config:      config,
		isClient:    true,
		handshakeFn: nil,
	}
	c.handshakeFn = c.clientHandshake
	callOnConnectionStart(c.safeRemoteAddr())
	return c
}

// A listener implements a network listener (net.Listener) for TLS
// connections.
type listener struct {
	net.Listener
	config *Config
}

// Accept waits for and returns the next incoming TLS connection. The
// returned connection is of type *Conn.
func (l *listener) Accept() (net.Conn, error) {
	c, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	return Server(c, l.config), nil
}

// NewListener creates a Listener which accepts connections from an inner
// Listener and wraps each connection with Server. The configuration config
// must be non-nil and must include at least one certificate or else set
// GetCertificate.
func NewListener(inner net.Listener, config *Config) net.Listener {
	return &listener{Listener: inner, config: config}
}

// Listen creates a TLS listener accepting connections on the given network
// address using net.Listen. The configuration config must be non-nil and
// must include at least one certificate or else set GetCertificate.
func Listen(network, laddr string, config *Config) (net.Listener, error) {
	if config == nil || (len(config.Certificates) == 0 && config.GetCertificate == nil && config.GetConfigForClient == nil) {
		return nil, errors.New("tls: neither Certificates, GetCertificate, nor GetConfigForClient set in Config")
	}
	l, err := net.Listen(network, laddr)
	if err != nil {
		return nil, err
	}
	return NewListener(l, config), nil
}

// DialWithDialer connects to the given network address using dialer.Dial
// and then initiates a TLS handshake, returning the resulting TLS
// connection. Any timeout or deadline given in the dialer apply to
// connection and TLS handshake as a whole.
//
// DialWithDialer interprets a nil configuration as equivalent to the zero
// configuration; see the documentation of [Config] for the defaults.
func DialWithDialer(dialer *net.Dialer, network, addr string, config *Config) (*Conn, error) {
	return dial(context.Background(), dialer, network, addr, config)
}

func dial(ctx context.Context, netDialer *net.Dialer, network, addr string, config *Config) (*Conn, error) {
	if netDialer.Timeout != 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, netDialer.Timeout)
		defer cancel()
	}

	if !netDialer.Deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, netDialer.Deadline)
		defer cancel()
	}

	rawConn, err := netDialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}

	colonPos := strings.LastIndex(addr, ":")
	if colonPos == -1 {
		colonPos = len(addr)
	}
	hostname := addr[:colonPos]

	if config == nil {
		config = defaultConfig()
	}
	// If no ServerName is set, infer the ServerName from the hostname we're
	// connecting to.
	if config.ServerName == "" {
		c := config.Clone()
		c.ServerName = hostname
		config = c
	}

	conn := Client(rawConn, config)
	if err := conn.HandshakeContext(ctx); err != nil {
		rawConn.Close()
		return nil, err
	}
	return conn, nil
}

// Dial connects to the given network address using net.Dial and then
// initiates a TLS handshake, returning the resulting TLS connection.
// Dial interprets a nil configuration as equivalent to the zero
// configuration; see the documentation of [Config] for the defaults.
func Dial(network, addr string, config *Config) (*Conn, error) {
	return DialWithDialer(new(net.Dialer), network, addr, config)
}

// DialContext connects to the given network address using the provided
// context and then initiates a TLS handshake, returning the resulting TLS
// connection. Any timeout or deadline given in the context apply to the
// connection and TLS handshake as a whole.
//
// DialContext interprets a nil configuration as equivalent to the zero
// configuration; see the documentation of [Config] for the defaults.
func DialContext(ctx context.Context, network, addr string, config *Config) (*Conn, error) {
	return dial(ctx, new(net.Dialer), network, addr, config)
}
