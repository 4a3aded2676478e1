// Package flowerr defines the error taxonomy shared across FlowDNS's core:
// the kinds a packet handler or background task is allowed to recognize, per
// the propagation policy (log-and-NAK-or-silence, never bubble to a caller
// that doesn't know what to do with it).
package flowerr

import "errors"

// Sentinel kinds. Wrap with fmt.Errorf("...: %w", ErrX) for context and
// unwrap with errors.Is.
var (
	// ErrMalformed marks a packet that failed to parse, or carries an
	// unknown/unsupported message type. Dropped silently after a debug log.
	ErrMalformed = errors.New("malformed packet")

	// ErrNoSubnet marks a packet for which no configured subnet matches the
	// relay/source address. Dropped silently.
	ErrNoSubnet = errors.New("no matching subnet")

	// ErrExhausted marks an allocation attempt with no free address left in
	// the subnet (or prefix pool). DISCOVER is dropped; REQUEST gets a NAK.
	ErrExhausted = errors.New("address pool exhausted")

	// ErrConflict marks an optimistic-concurrency collision on lease insert.
	// Internally retried up to a bounded count before becoming ErrExhausted.
	ErrConflict = errors.New("concurrent allocation conflict")

	// ErrStoreUnavailable marks a transient failure reaching the
	// persistence backend. The handler logs and declines to reply; the
	// process stays up.
	ErrStoreUnavailable = errors.New("lease store unavailable")

	// ErrInvariant marks an invalid subnet/pool geometry detected at load
	// time. Fatal at startup.
	ErrInvariant = errors.New("invariant violation")
)

// MaxConflictRetries is the bound after which a Conflict is treated as
// Exhausted (spec: "a conflict-retry count above 8 becomes Exhausted").
const MaxConflictRetries = 8
