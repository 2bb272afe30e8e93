// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"errors"
	"time"

	"github.com/pawlog-hub/pawlog-progress-engine/internal/application/saga"
	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/entry"
	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUBMIT EVENT COMMAND
// Accepts one log submission from the outer surface and delegates the whole
// progress recomputation to the progress flow saga.
// ══════════════════════════════════════════════════════════════════════════════

// SubmitEventCommand contains the data of one log submission as it arrives
// from the transport layer.
type SubmitEventCommand struct {
	// SubjectID is the pet the entry belongs to.
	SubjectID string

	// OccurredAt is when the event happened.
	OccurredAt time.Time

	// Consistency is the consistency attribute value.
	Consistency string

	// Color is the color attribute value.
	Color string

	// Location is the optional location attribute.
	Location string

	// Notes are optional free-form notes.
	Notes string

	// IdempotencyKey is the client retry key.
	IdempotencyKey string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c SubmitEventCommand) Validate() error {
	if c.SubjectID == "" {
		return errors.New("submit_event: subject_id is required")
	}
	if c.OccurredAt.IsZero() {
		return errors.New("submit_event: occurred_at is required")
	}
	if c.IdempotencyKey == "" {
		return errors.New("submit_event: idempotency_key is required")
	}
	attrs := entry.Attributes{
		Consistency: entry.Consistency(c.Consistency),
		Color:       entry.Color(c.Color),
		Location:    c.Location,
		Notes:       c.Notes,
	}
	return attrs.Validate()
}

// SubmitEventHandler handles the SubmitEventCommand.
type SubmitEventHandler struct {
	flow *saga.ProgressFlow
}

// NewSubmitEventHandler creates a new SubmitEventHandler.
func NewSubmitEventHandler(flow *saga.ProgressFlow) *SubmitEventHandler {
	return &SubmitEventHandler{flow: flow}
}

// Handle executes the submit event command.
func (h *SubmitEventHandler) Handle(ctx context.Context, cmd SubmitEventCommand) (*saga.SubmitResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	subjectID, err := shared.NewSubjectID(cmd.SubjectID)
	if err != nil {
		return nil, err
	}

	return h.flow.Execute(ctx, saga.SubmitInput{
		SubjectID:  subjectID,
		OccurredAt: cmd.OccurredAt,
		Attributes: entry.Attributes{
			Consistency: entry.Consistency(cmd.Consistency),
			Color:       entry.Color(cmd.Color),
			Location:    cmd.Location,
			Notes:       cmd.Notes,
		},
		IdempotencyKey: cmd.IdempotencyKey,
		CorrelationID:  cmd.CorrelationID,
	})
}
