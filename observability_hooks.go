// Copyright 2025 utls Project
// Minimal observability hook interface - zero-overhead monitoring
package tls

import (
	"context"
	"crypto/x509"
	"fmt"
	"sync/atomic"
	"time"

	utlserrors "github.com/refraction-networking/utls/errors"
)

// hooksLogCtx is a background context used for hooks logging.
var hooksLogCtx = context.Background()

// ObservabilityHook defines optional callbacks for monitoring, logging, and metrics collection.
//
// DESIGN PHILOSOPHY:
//   - Zero-overhead when not enabled (default: NoOpHook with no-op implementations)
//   - Atomically replaceable at runtime (call SetObservabilityHook before any connections)
//   - Lock-free access path (~2.6ns via atomic.Value, 3.6x faster than RWMutex)
//   - Non-blocking: implementations must not block the TLS handshake path
//
// INTEGRATION WITH xray-core:
//   - Call SetObservabilityHook() during initialization
//   - Implementations can export metrics to Prometheus, DataDog, etc.
//   - Called from hot paths: keep implementations fast and non-blocking
//
// THREAD-SAFETY GUARANTEES:
//   - All hook methods are called lock-free
//   - Implementations must be thread-safe (called from multiple goroutines)
//   - No synchronization needed by caller (SetObservabilityHook handles atomic swap)
//   - Safe to call from any goroutine without external locks
//
// IMPLEMENTATION REQUIREMENTS:
//   - Methods must be fast (< 1ms) - called in hot TLS handshake path
//   - No blocking I/O (network, file, DB) - would stall handshakes
//   - No allocations if possible - use pre-allocated buffers for metrics
//   - Panics: hook calls are not wrapped in recover; a panicking hook panics the caller
//
// EVENT CATEGORIES:
//
//	CONNECTION LIFECYCLE (always paired):
//	  OnConnectionStart -> (handshake events) -> OnConnectionEnd
//
//	HANDSHAKE:
//	  OnHandshakeStart: TLS handshake begins
//	  OnHandshakeSuccess: TLS handshake completed (includes duration)
//	  OnHandshakeFailure: TLS handshake failed
//
//	ERROR RECOVERY:
//	  OnPanicRecovered: Panic caught in critical section
//	  OnTimeoutError: TLS handshake timeout
//	  OnNetworkError: Socket read/write error
//	  OnCryptoError: Cryptographic operation failed
//
//	LOGGING:
//	  OnDebug, OnInfo, OnWarn, OnError: Standard log levels for integration
type ObservabilityHook interface {
	// Connection lifecycle
	OnConnectionStart(remoteAddr string)
	OnConnectionEnd(remoteAddr string, err error)

	// Handshake events
	OnHandshakeStart(remoteAddr string)
	OnHandshakeSuccess(remoteAddr string, duration time.Duration)
	OnHandshakeFailure(remoteAddr string, reason string)

	// OnRecvCertificateChain fires after a peer certificate chain is parsed,
	// before chain validation runs. Observation only: unlike the handshake
	// message hooks, it cannot mutate the chain.
	OnRecvCertificateChain(remoteAddr string, chain []*x509.Certificate)

	// Error events
	OnPanicRecovered(location string, panicValue any)
	OnTimeoutError(remoteAddr string)
	OnNetworkError(remoteAddr string, err error)
	OnCryptoError(remoteAddr string, err error)

	// Logging events (standard log levels)
	OnDebug(message string)
	OnInfo(message string)
	OnWarn(message string)
	OnError(message string)
}

// noOpHook is a zero-overhead implementation that does nothing
type noOpHook struct{}

func (h *noOpHook) OnConnectionStart(remoteAddr string)                          {}
func (h *noOpHook) OnConnectionEnd(remoteAddr string, err error)                 {}
func (h *noOpHook) OnHandshakeStart(remoteAddr string)                           {}
func (h *noOpHook) OnHandshakeSuccess(remoteAddr string, duration time.Duration) {}
func (h *noOpHook) OnHandshakeFailure(remoteAddr string, reason string)          {}
func (h *noOpHook) OnRecvCertificateChain(remoteAddr string, chain []*x509.Certificate) {}
func (h *noOpHook) OnPanicRecovered(location string, panicValue any)             {}
func (h *noOpHook) OnTimeoutError(remoteAddr string)                             {}
func (h *noOpHook) OnNetworkError(remoteAddr string, err error)                  {}
func (h *noOpHook) OnCryptoError(remoteAddr string, err error)                   {}
func (h *noOpHook) OnDebug(message string)                                       {}
func (h *noOpHook) OnInfo(message string)                                        {}
func (h *noOpHook) OnWarn(message string)                                        {}
func (h *noOpHook) OnError(message string)                                       {}

// hookBox wraps an ObservabilityHook to ensure type consistency in atomic.Value.
// Go's atomic.Value requires all Store() calls to use the same concrete type.
// Without this wrapper, storing *noOpHook then *MetricsHook would panic with:
//
//	"sync/atomic: store of inconsistently typed value into Value"
//
// By always storing *hookBox, we maintain type consistency while allowing
// different hook implementations inside.
type hookBox struct {
	hook ObservabilityHook
}

// hookStorage wraps atomic.Value with cache-line padding to prevent false sharing.
// On x86-64, cache lines are 64 bytes. Without padding, concurrent reads from
// multiple cores can cause cache-line bouncing if adjacent variables are modified.
// atomic.Value is 16 bytes, so we add 48 bytes padding to fill the cache line.
type hookStorage struct {
	_    [64]byte     // padding to isolate from preceding allocations
	hook atomic.Value // stores *hookBox
	_    [48]byte     // fill rest of 64-byte cache line (64-16=48)
}

// globalHook is the global hook holder with cache-line padding for optimal concurrency.
// PERF: atomic.Value (2.6ns per load) vs RWMutex (9.5ns) = 3.6x faster
// This is critical for hot path performance in handshakes.
// NOTE: Always stores *hookBox to maintain type consistency (see hookBox comment).
var globalHook hookStorage

func init() {
	// Initialize with no-op hook to prevent nil panics
	// This ensures all hook calls are safe even before explicit SetObservabilityHook()
	globalHook.hook.Store(&hookBox{hook: &noOpHook{}})

	// Connect errors package logging to observability hook system.
	// This bridges the gap: errors.LogDebug/Info/Warning/Error -> hook.OnDebug/Info/Warn/Error
	// Without this, logs would go directly to stderr, bypassing the hook entirely.
	utlserrors.SetLogCallback(func(severity utlserrors.Severity, msg string) {
		switch severity {
		case utlserrors.SeverityDebug:
			callOnDebug(msg)
		case utlserrors.SeverityInfo:
			callOnInfo(msg)
		case utlserrors.SeverityWarning:
			callOnWarn(msg)
		case utlserrors.SeverityError:
			callOnError(msg)
		default:
			// Unknown severity falls back to info level
			callOnInfo(msg)
		}
	})
}

// SetObservabilityHook registers a custom observability hook for metrics/monitoring.
//
// INTEGRATION WITH xray-core:
//   - Call once during initialization, before making connections
//   - Can be called safely at any time (atomic replacement)
//   - Subsequent calls replace the hook (old hook can be safely in-flight)
//   - Example:
//     hook := observability.NewPrometheusHook()
//     tls.SetObservabilityHook(hook)
//
// PARAMETERS:
//   - hook: Implementation of ObservabilityHook (e.g., Prometheus exporter)
//     Passing nil restores the default no-op hook
//
// THREAD-SAFETY:
//   - Atomic replacement: safe to call from any goroutine
//   - Calls that already loaded the old hook may still run on it after the store
//   - No synchronization needed by caller
//
// PERFORMANCE:
//   - Non-blocking: atomic.Store is lock-free
//   - Hook replacement is atomic (all-or-nothing)
//   - No interruption to active handshakes
func SetObservabilityHook(hook ObservabilityHook) {
	if hook == nil {
		utlserrors.LogDebug(hooksLogCtx, "hooks: registering nil hook, using noOpHook")
		hook = &noOpHook{}
	} else {
		utlserrors.LogDebug(hooksLogCtx, "hooks: registering custom hook",
			"hookType=", fmt.Sprintf("%T", hook))
	}
	globalHook.hook.Store(&hookBox{hook: hook})
	utlserrors.LogDebug(hooksLogCtx, "hooks: hook registered successfully")
}

// RegisterObservabilityHook is an alias for SetObservabilityHook for API consistency.
func RegisterObservabilityHook(hook ObservabilityHook) {
	SetObservabilityHook(hook)
}

// UnregisterObservabilityHook removes the current hook and restores the no-op hook.
func UnregisterObservabilityHook() {
	SetObservabilityHook(nil)
}

// GetObservabilityHook returns the currently active hook.
//
// USAGE:
//   - Rarely called by integrators (helpers like callOnConnectionStart handle it)
//   - Available for advanced integrators who need direct access
//
// PERFORMANCE:
//   - Lock-free atomic.Value load (~2.6ns)
//   - Safe to call from any goroutine
func GetObservabilityHook() ObservabilityHook {
	return globalHook.hook.Load().(*hookBox).hook
}

// Helper functions for calling hooks with lock-free atomic access

func callOnConnectionStart(remoteAddr string) {
	globalHook.hook.Load().(*hookBox).hook.OnConnectionStart(remoteAddr)
}

func callOnConnectionEnd(remoteAddr string, err error) {
	globalHook.hook.Load().(*hookBox).hook.OnConnectionEnd(remoteAddr, err)
}

func callOnHandshakeStart(remoteAddr string) {
	globalHook.hook.Load().(*hookBox).hook.OnHandshakeStart(remoteAddr)
}

func callOnHandshakeSuccess(remoteAddr string, duration time.Duration) {
	globalHook.hook.Load().(*hookBox).hook.OnHandshakeSuccess(remoteAddr, duration)
}

func callOnHandshakeFailure(remoteAddr string, reason string) {
	globalHook.hook.Load().(*hookBox).hook.OnHandshakeFailure(remoteAddr, reason)
}

func callOnRecvCertificateChain(remoteAddr string, chain []*x509.Certificate) {
	globalHook.hook.Load().(*hookBox).hook.OnRecvCertificateChain(remoteAddr, chain)
}

func callOnPanicRecovered(location string, panicValue any) {
	globalHook.hook.Load().(*hookBox).hook.OnPanicRecovered(location, panicValue)
}

func callOnTimeoutError(remoteAddr string) {
	globalHook.hook.Load().(*hookBox).hook.OnTimeoutError(remoteAddr)
}

func callOnNetworkError(remoteAddr string, err error) {
	globalHook.hook.Load().(*hookBox).hook.OnNetworkError(remoteAddr, err)
}

func callOnCryptoError(remoteAddr string, err error) {
	globalHook.hook.Load().(*hookBox).hook.OnCryptoError(remoteAddr, err)
}

func callOnDebug(message string) {
	globalHook.hook.Load().(*hookBox).hook.OnDebug(message)
}

func callOnInfo(message string) {
	globalHook.hook.Load().(*hookBox).hook.OnInfo(message)
}

func callOnWarn(message string) {
	globalHook.hook.Load().(*hookBox).hook.OnWarn(message)
}

func callOnError(message string) {
	globalHook.hook.Load().(*hookBox).hook.OnError(message)
}
