// Copyright 2024 The uTLS Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package protocol defines QUIC wire-format constants shared by the
// handshake's QUIC transport binding (RFC 9001) and the varint codec.
package protocol

import (
	"fmt"
	"time"
)

// PacketType is the QUIC long header packet type.
type PacketType uint8

const (
	PacketTypeInitial PacketType = iota + 1
	PacketTypeRetry
	PacketTypeHandshake
	PacketType0RTT
)

func (t PacketType) String() string {
	switch t {
	case PacketTypeInitial:
		return "Initial"
	case PacketTypeRetry:
		return "Retry"
	case PacketTypeHandshake:
		return "Handshake"
	case PacketType0RTT:
		return "0-RTT Protected"
	default:
		return fmt.Sprintf("unknown packet type: %d", t)
	}
}

// ECN is an Explicit Congestion Notification codepoint, RFC 3168.
type ECN uint8

const (
	ECNUnsupported ECN = iota
	ECNNon
	ECT1
	ECT0
	ECNCE
)

// ParseECNHeaderBits decodes the 2-bit ECN field of an IP header. It panics
// if bits holds any value other than 0b00 through 0b11.
func ParseECNHeaderBits(bits byte) ECN {
	switch bits {
	case 0b00:
		return ECNNon
	case 0b01:
		return ECT1
	case 0b10:
		return ECT0
	case 0b11:
		return ECNCE
	default:
		panic("protocol: invalid ECN bits")
	}
}

// ToHeaderBits encodes the ECN codepoint back into its 2-bit wire form.
func (e ECN) ToHeaderBits() byte {
	switch e {
	case ECNNon:
		return 0b00
	case ECT1:
		return 0b01
	case ECT0:
		return 0b10
	case ECNCE:
		return 0b11
	default:
		panic("protocol: invalid ECN value for header bits")
	}
}

func (e ECN) String() string {
	switch e {
	case ECNUnsupported:
		return "ECN unsupported"
	case ECNNon:
		return "Not-ECT"
	case ECT1:
		return "ECT(1)"
	case ECT0:
		return "ECT(0)"
	case ECNCE:
		return "CE"
	default:
		return fmt.Sprintf("invalid ECN value: %d", e)
	}
}

// ByteCount counts bytes, and is signed to allow for deficit accounting.
type ByteCount int64

const (
	MaxByteCount     ByteCount = 1<<62 - 1
	InvalidByteCount ByteCount = -1
)

// StatelessResetToken is the 16-byte token from RFC 9000, Section 10.3.
type StatelessResetToken [16]byte

const (
	MaxPacketBufferSize      = 1452
	MaxLargePacketBufferSize = 20 * 1024

	MinInitialPacketSize        = 1200
	MinUnknownVersionPacketSize = MinInitialPacketSize

	MinConnectionIDLenInitial      = 8
	MaxConnIDLen                   = 20
	DefaultActiveConnectionIDLimit = 2

	DefaultAckDelayExponent = 3
	MaxAckDelayExponent     = 20
	DefaultMaxAckDelay      = 25 * time.Millisecond
	MaxMaxAckDelay          = (1<<14 - 1) * time.Millisecond

	// InvalidPacketLimitAES and InvalidPacketLimitChaCha bound the number of
	// forged packets an AEAD may reject before the connection must be torn
	// down, per RFC 9001, Section 6.6.
	InvalidPacketLimitAES    = uint64(1 << 52)
	InvalidPacketLimitChaCha = uint64(1 << 36)

	// MinStatelessResetSize is the smallest datagram that can plausibly carry
	// a stateless reset: first byte + max connection ID + max packet number +
	// minimum payload + the reset token itself.
	MinStatelessResetSize = 1 + MaxConnIDLen + 4 + 1 + 16
)
