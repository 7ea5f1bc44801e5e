// Copyright 2025 utls Project
package tls

import "golang.org/x/net/http2"

// NextProtoTLS is the NPN/ALPN protocol negotiated for HTTP/2, re-exported
// from golang.org/x/net/http2 so callers don't need a second import just to
// compare against a negotiated [ConnectionState.NegotiatedProtocol] value.
const NextProtoTLS = http2.NextProtoTLS

// ConfigureHTTP2 appends the ALPN protocol IDs a caller needs to negotiate
// HTTP/2 over this connection — "h2" ahead of "http/1.1", the order
// golang.org/x/net/http2 expects a server to offer — to cfg.NextProtos,
// without duplicating entries already present.
func ConfigureHTTP2(cfg *Config) {
	want := []string{http2.NextProtoTLS, "http/1.1"}
	for _, w := range want {
		found := false
		for _, have := range cfg.NextProtos {
			if have == w {
				found = true
				break
			}
		}
		if !found {
			cfg.NextProtos = append(cfg.NextProtos, w)
		}
	}
}
