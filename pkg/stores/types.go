package stores

import (
	"context"
	"time"
)

// Operation is one recorded install operation.
type Operation struct {
	// ID is the operation UUID.
	ID string `json:"id"`

	// RootPackage is the package the operation was asked to install.
	RootPackage string `json:"root_package"`

	// Environment is the environment the operation ran in.
	Environment string `json:"environment"`

	// Status is the terminal status (completed, aborted, canceled).
	Status string `json:"status"`

	// InstallOrder is the resolved order as a JSON array of names.
	InstallOrder string `json:"install_order"`

	// Installed counts packages whose install command succeeded.
	Installed int `json:"installed"`

	// AlreadyInstalled counts packages whose check succeeded.
	AlreadyInstalled int `json:"already_installed"`

	// FailedPackage names the package an aborted operation stopped at.
	FailedPackage *string `json:"failed_package,omitempty"`

	// ErrorCode is the operation error code, if the operation failed.
	ErrorCode *string `json:"error_code,omitempty"`

	// ErrorMessage is the operation error message, if the operation failed.
	ErrorMessage *string `json:"error_message,omitempty"`

	// StartedAt is when the operation began.
	StartedAt time.Time `json:"started_at"`

	// DurationMillis is the operation wall-clock time in milliseconds.
	DurationMillis int64 `json:"duration_ms"`

	// CreatedAt is when the record was written.
	CreatedAt time.Time `json:"created_at"`
}

// EventRecord is one persisted event of an operation's stream.
type EventRecord struct {
	// OperationID is the operation the event belongs to.
	OperationID string `json:"operation_id"`

	// Seq is the event's sequence number within the operation.
	Seq uint64 `json:"seq"`

	// Timestamp is when the event was emitted.
	Timestamp time.Time `json:"timestamp"`

	// Kind is the event variant.
	Kind string `json:"kind"`

	// Package is the package the event concerns, if any.
	Package string `json:"package,omitempty"`

	// Stream is the output stream for output chunks.
	Stream string `json:"stream,omitempty"`

	// Text is the chunk line, warning text, or error message.
	Text string `json:"text,omitempty"`
}

// OperationFilter narrows ListOperations results. Zero values match all.
type OperationFilter struct {
	// RootPackage matches operations for one package.
	RootPackage string

	// Environment matches operations in one environment.
	Environment string

	// Status matches one terminal status.
	Status string
}

// Store defines the interface for the persistence layer.
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Operation history
	CreateOperation(ctx context.Context, op *Operation) error
	GetOperation(ctx context.Context, id string) (*Operation, error)
	ListOperations(ctx context.Context, filter OperationFilter, limit, offset int) ([]*Operation, error)
	DeleteOperation(ctx context.Context, id string) error
	PruneOperations(ctx context.Context, keep int) (int64, error)

	// Event streams
	AppendEvents(ctx context.Context, events []EventRecord) error
	ListEvents(ctx context.Context, operationID string) ([]EventRecord, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
