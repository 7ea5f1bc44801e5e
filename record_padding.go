// Copyright 2024 uTLS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tls

import (
	"crypto/rand"
	"encoding/binary"
	"math"
)

// RecordPaddingConfig controls TLS 1.3 record padding behavior per RFC 8446 Section 5.4.
//
// TLS 1.3 allows padding to be added to records to obscure the true length of
// messages. This is useful for:
// 1. Preventing traffic analysis attacks
// 2. Obscuring message boundaries in encrypted traffic
// 3. Adding variability to packet sizes for fingerprint resistance
//
// TLS 1.3 Padding Format (RFC 8446 Section 5.4):
//
//	TLSInnerPlaintext {
//	    opaque content[length];
//	    ContentType type;
//	    uint8 zeros[length_of_padding];
//	}
//
// Padding bytes must be zeros, and receiver ignores trailing zeros up to ContentType byte.
// The existing decryption code already handles this by scanning backwards for ContentType.
type RecordPaddingConfig struct {
	// Enabled controls whether padding is applied to TLS 1.3 records.
	// When false, no padding is added (default behavior).
	Enabled bool

	// MinPadding is the minimum padding bytes to add (default: 0).
	// Set to non-zero to ensure minimum obfuscation.
	MinPadding int

	// MaxPadding is the maximum padding bytes to add (default: 255).
	// RFC 8446 allows up to 255 bytes of padding per record.
	// Note: Combined with record content, must not exceed maxPlaintext (16384).
	MaxPadding int

	// Distribution determines padding size distribution:
	//   "uniform"     - Random uniform distribution [MinPadding, MaxPadding]
	//   "exponential" - Exponential distribution (most values near MinPadding)
	//   "chrome"      - Chrome-like truncated exponential (default, most realistic)
	Distribution string

	// Lambda controls exponential distribution shape (default: 3.0).
	// Higher lambda = more values near MinPadding, lower lambda = more uniform.
	// Chrome uses approximately lambda=3.0 based on traffic analysis.
	// Only used when Distribution is "exponential" or "chrome".
	Lambda float64
}

// DefaultRecordPaddingConfig returns a Chrome-like padding configuration.
// This mimics Chrome's TLS 1.3 record padding behavior based on traffic analysis.
func DefaultRecordPaddingConfig() *RecordPaddingConfig {
	return &RecordPaddingConfig{
		Enabled:      true,
		MinPadding:   0,
		MaxPadding:   255,
		Distribution: "chrome",
		Lambda:       3.0,
	}
}

// ServerRecordPaddingConfig returns a conservative padding configuration for
// a server-side Conn. Servers respond to many concurrent clients, so padding
// is kept uniform and capped lower than the Chrome-mimicking client default
// to bound the aggregate bandwidth overhead across connections.
func ServerRecordPaddingConfig() *RecordPaddingConfig {
	return &RecordPaddingConfig{
		Enabled:      true,
		MinPadding:   0,
		MaxPadding:   64,
		Distribution: "uniform",
	}
}

// GeneratePadding returns the number of padding bytes to add for the next TLS record.
// Returns 0 if padding is disabled or the config is nil.
//
// Thread-safe: Uses crypto/rand for secure randomness.
func (c *RecordPaddingConfig) GeneratePadding() int {
	if c == nil || !c.Enabled {
		return 0
	}

	// Validate and normalize configuration
	minPad := c.MinPadding
	maxPad := c.MaxPadding
	if minPad < 0 {
		minPad = 0
	}
	if maxPad > 255 {
		maxPad = 255
	}
	if maxPad < minPad {
		maxPad = minPad
	}
	if minPad == maxPad {
		return minPad
	}

	switch c.Distribution {
	case "chrome":
		return c.generateChromeLikePadding(minPad, maxPad)
	case "exponential":
		return c.generateExponentialPadding(minPad, maxPad)
	default:
		return c.generateUniformPadding(minPad, maxPad)
	}
}

// generateChromeLikePadding mimics Chrome's padding strategy.
//
// Uses truncated exponential distribution with lambda on normalized [0,1] space.
// For lambda=3.0 truncated to [0, 255]:
//   - ~60% of records: 0-72 bytes padding (< mean)
//   - ~27% of records: 72-150 bytes padding
//   - ~13% of records: 150-255 bytes padding
//
// Mean padding: ~72 bytes (truncated Exp(lambda) mean ~0.281 * 255)
// This creates realistic traffic patterns without excessive overhead.
func (c *RecordPaddingConfig) generateChromeLikePadding(minPad, maxPad int) int {
	lambda := c.Lambda
	if lambda <= 0 {
		lambda = 3.0
	}

	// Read cryptographically secure random bytes
	var u uint64
	if err := binary.Read(rand.Reader, binary.LittleEndian, &u); err != nil {
		// Fallback to uniform on error
		return c.generateUniformPadding(minPad, maxPad)
	}

	// Normalize to (0,1) - avoid exactly 0 or 1
	uFloat := (float64(u) + 1) / (float64(^uint64(0)) + 2)

	// Generate truncated exponential on normalized [0, 1] space, then scale
	minNorm := float64(minPad)
	maxNorm := float64(maxPad)
	rangeSize := maxNorm - minNorm

	// CDF values for truncated exponential on [0, 1]
	// CDF(x) = (1 - e^(-lambda*x)) / (1 - e^(-lambda))
	cdfAt1 := 1.0 - math.Exp(-lambda)

	// For non-zero MinPadding, adjust the normalized range
	minNormalized := minNorm / maxNorm
	cdfAtMin := 1.0 - math.Exp(-lambda*minNormalized)
	cdfAtMaxNorm := cdfAt1

	// Scale u to [cdfAtMin, cdfAtMaxNorm] range
	scaledU := cdfAtMin + uFloat*(cdfAtMaxNorm-cdfAtMin)

	// Inverse CDF: x = -ln(1 - scaledU) / lambda
	// This gives x in [0, 1] normalized space
	xNorm := -math.Log(1.0-scaledU) / lambda

	// Clamp to [0, 1] for safety (handles floating point edge cases)
	if xNorm > 1.0 {
		xNorm = 1.0
	}
	if xNorm < 0.0 {
		xNorm = 0.0
	}

	// Scale from [0, 1] to [MinPadding, MaxPadding]
	padding := int(math.Round(minNorm + xNorm*rangeSize))

	// Final safety clamp
	if padding < minPad {
		padding = minPad
	}
	if padding > maxPad {
		padding = maxPad
	}

	return padding
}

// generateExponentialPadding generates padding using unbounded exponential distribution.
// Uses exponential on [0, 1] space, scaled by MaxPadding, then clamped to [MinPadding, MaxPadding].
// Different from chrome mode which uses proper truncated exponential.
func (c *RecordPaddingConfig) generateExponentialPadding(minPad, maxPad int) int {
	lambda := c.Lambda
	if lambda <= 0 {
		lambda = 1.0
	}

	// Read cryptographically secure random bytes
	var u uint64
	if err := binary.Read(rand.Reader, binary.LittleEndian, &u); err != nil {
		return c.generateUniformPadding(minPad, maxPad)
	}

	// Normalize to (0,1) excluding 0
	uFloat := (float64(u) + 1) / (float64(^uint64(0)) + 2)

	// Exponential inverse CDF (unbounded) on [0, 1] space
	// For lambda=1: mean = 1
	// For lambda=3: mean = 1/3
	expValue := -math.Log(1.0-uFloat) / lambda

	// Scale to [0, MaxPadding] range
	// This means some values will exceed MaxPadding and get clamped
	padding := int(expValue * float64(maxPad))

	// Clamp to valid range
	if padding < minPad {
		padding = minPad
	}
	if padding > maxPad {
		padding = maxPad
	}

	return padding
}

// generateUniformPadding generates uniformly distributed padding.
// Every value in [MinPadding, MaxPadding] has equal probability.
// Uses rejection sampling to eliminate modulo bias.
func (c *RecordPaddingConfig) generateUniformPadding(minPad, maxPad int) int {
	rangeSize := uint64(maxPad - minPad + 1)
	if rangeSize <= 0 {
		return minPad
	}

	// Calculate rejection threshold to eliminate modulo bias
	// We reject values >= max to ensure uniform distribution
	// max is the largest multiple of rangeSize that fits in uint64
	max := ^uint64(0) - (^uint64(0) % rangeSize)

	var randVal uint64
	for {
		if err := binary.Read(rand.Reader, binary.LittleEndian, &randVal); err != nil {
			// On error, return MinPadding (safe fallback)
			return minPad
		}

		// Accept only if below rejection threshold
		if randVal < max {
			return minPad + int(randVal%rangeSize)
		}
		// Otherwise loop and try again (rejection sampling)
		// Expected iterations: ~1.0000000001 (negligible overhead)
	}
}

// ClampPaddingToRecordLimit ensures padding doesn't cause record to exceed maxPlaintext.
// contentLen is the actual content length before padding.
// Returns the maximum safe padding that can be added.
func ClampPaddingToRecordLimit(contentLen int, requestedPadding int) int {
	// TLS 1.3 inner plaintext: content + ContentType (1 byte) + padding
	// Must not exceed maxPlaintext (16384 bytes)
	maxAllowedPadding := maxPlaintext - contentLen - 1 // -1 for ContentType byte
	if maxAllowedPadding < 0 {
		return 0
	}
	if requestedPadding > maxAllowedPadding {
		return maxAllowedPadding
	}
	// Also enforce RFC 8446 limit of 255 bytes
	if requestedPadding > 255 {
		return 255
	}
	return requestedPadding
}
