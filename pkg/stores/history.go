package stores

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pkgsmith/pkgsmith/pkg/engine"
)

// History adapts a Store to the engine's history recorder. It translates
// operation summaries into persisted records.
type History struct {
	store Store
}

var _ engine.HistoryRecorder = (*History)(nil)

// NewHistory wraps store as an engine history recorder.
func NewHistory(store Store) *History {
	return &History{store: store}
}

// RecordOperation persists the summary of a finished operation.
func (h *History) RecordOperation(ctx context.Context, summary *engine.Summary) error {
	order, err := json.Marshal(summary.Order)
	if err != nil {
		return fmt.Errorf("failed to encode install order: %w", err)
	}

	op := &Operation{
		ID:               summary.OperationID.String(),
		RootPackage:      summary.RootPackage,
		Environment:      summary.Environment,
		Status:           string(summary.Status),
		InstallOrder:     string(order),
		Installed:        summary.Installed,
		AlreadyInstalled: summary.AlreadyInstalled,
		StartedAt:        summary.StartedAt.UTC(),
		DurationMillis:   summary.Duration.Milliseconds(),
	}
	if summary.FailedPackage != "" {
		failed := summary.FailedPackage
		op.FailedPackage = &failed
	}
	if summary.Err != nil {
		code := summary.Err.Code
		msg := summary.Err.Message
		op.ErrorCode = &code
		op.ErrorMessage = &msg
	}

	return h.store.CreateOperation(ctx, op)
}

// RecordEvents persists an operation's event stream. The operation itself
// must already be recorded. Resolved orders, warnings, and error messages
// land in the text column.
func (h *History) RecordEvents(ctx context.Context, events []engine.Event) error {
	records := make([]EventRecord, 0, len(events))
	for _, ev := range events {
		rec := EventRecord{
			OperationID: ev.OperationID.String(),
			Seq:         ev.Seq,
			Timestamp:   ev.Timestamp.UTC(),
			Kind:        string(ev.Kind),
			Package:     ev.Package,
			Stream:      string(ev.Stream),
			Text:        ev.Text,
		}
		if rec.Text == "" {
			switch {
			case ev.Err != nil:
				rec.Text = ev.Err.Message
			case len(ev.Order) > 0:
				order, err := json.Marshal(ev.Order)
				if err != nil {
					return fmt.Errorf("failed to encode install order: %w", err)
				}
				rec.Text = string(order)
			}
		}
		records = append(records, rec)
	}
	return h.store.AppendEvents(ctx, records)
}
