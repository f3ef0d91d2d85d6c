package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pkgsmith/pkgsmith/pkg/exec"
)

// EventKind identifies the variant of an operation event.
type EventKind string

const (
	// EventResolving is emitted before dependency resolution begins.
	EventResolving EventKind = "resolving"

	// EventResolved carries the resolved execution order.
	EventResolved EventKind = "resolved"

	// EventPolicyWarning carries a non-blocking policy finding.
	EventPolicyWarning EventKind = "policy_warning"

	// EventCheckStarted is emitted before a package's check command runs.
	EventCheckStarted EventKind = "check_started"

	// EventAlreadyInstalled means the check command exited zero.
	EventAlreadyInstalled EventKind = "already_installed"

	// EventInstallStarted is emitted before a package's install command runs.
	EventInstallStarted EventKind = "install_started"

	// EventInstallCompleted means the install command exited zero.
	EventInstallCompleted EventKind = "install_completed"

	// EventOutputChunk carries one line of subprocess output.
	EventOutputChunk EventKind = "output_chunk"

	// EventOperationFailed terminates an aborted operation.
	EventOperationFailed EventKind = "operation_failed"

	// EventOperationCanceled terminates a canceled operation.
	EventOperationCanceled EventKind = "operation_canceled"

	// EventOperationCompleted terminates a successful operation.
	EventOperationCompleted EventKind = "operation_completed"
)

// Event is one entry of the typed notification stream an operation emits.
// Seq is strictly increasing within one OperationID, so an observer can
// totally order events and reconstruct per-stream output exactly.
type Event struct {
	// OperationID correlates all events of one top-level install call.
	OperationID uuid.UUID `json:"operation_id"`

	// Seq is the monotonic sequence number within the operation.
	Seq uint64 `json:"seq"`

	// Timestamp is when the event was emitted.
	Timestamp time.Time `json:"timestamp"`

	// Kind is the event variant.
	Kind EventKind `json:"kind"`

	// Package is the package the event concerns, if any.
	Package string `json:"package,omitempty"`

	// Stream identifies the output stream for EventOutputChunk.
	Stream exec.Stream `json:"stream,omitempty"`

	// Text is the chunk line for EventOutputChunk, or the warning text for
	// EventPolicyWarning.
	Text string `json:"text,omitempty"`

	// Order is the resolved execution order for EventResolved.
	Order []string `json:"order,omitempty"`

	// Err is the failure for EventOperationFailed / EventOperationCanceled.
	Err *OperationError `json:"error,omitempty"`

	// Summary accompanies the terminal event of an operation.
	Summary *Summary `json:"summary,omitempty"`
}

// Terminal reports whether the event ends its operation.
func (e Event) Terminal() bool {
	switch e.Kind {
	case EventOperationCompleted, EventOperationFailed, EventOperationCanceled:
		return true
	}
	return false
}

// Bus is a bounded, ordered event channel between the orchestrator and one
// observer. Publishing blocks when the buffer is full (backpressure);
// events are never dropped. Sequence numbers are assigned at publish time
// under the same lock that performs the send, so delivery order and
// sequence order always agree.
type Bus struct {
	mu     sync.Mutex
	ch     chan Event
	seq    uint64
	closed bool
}

// DefaultBusCapacity bounds the event buffer between the orchestrator and
// a slow observer.
const DefaultBusCapacity = 256

// NewBus creates an event bus with the given buffer capacity. A capacity
// of zero or less selects DefaultBusCapacity.
func NewBus(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultBusCapacity
	}
	return &Bus{ch: make(chan Event, capacity)}
}

// Events returns the receive side of the bus. The channel is closed after
// the terminal event of the last operation once Close is called.
func (b *Bus) Events() <-chan Event {
	return b.ch
}

// Publish assigns the next sequence number and delivers the event,
// blocking if the observer has fallen a full buffer behind.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.seq++
	ev.Seq = b.seq
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	b.ch <- ev
}

// Close closes the bus. Publishing after Close is a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.ch)
}
