// Package events publishes ledger results to downstream consumers (receipt
// generation, dashboards, notification). Publication happens after commit
// and is best-effort; a lost event never affects balances.
package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"corebank/pkg/logger"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

const (
	TypeTransferCompleted = "transfer.completed"
	TypeWireCreated       = "wire.created"
	TypeWirePrefix        = "wire."
	TypeTradeSettled      = "trade.settled"
	TypeAdminOverride     = "admin.override"
)

type Event struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	UserID     uuid.UUID              `json:"user_id"`
	SubjectID  string                 `json:"subject_id"`
	Data       map[string]interface{} `json:"data,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
}

// New stamps an event with a sortable id and the current time.
func New(eventType string, userID uuid.UUID, subjectID string, data map[string]interface{}) Event {
	return Event{
		ID:         ulid.Make().String(),
		Type:       eventType,
		UserID:     userID,
		SubjectID:  subjectID,
		Data:       data,
		OccurredAt: time.Now().UTC(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

const publishTimeout = 2 * time.Second

// Notify publishes ev without letting a slow or failed sink reach the caller.
// It is detached from ctx cancellation since the operation already committed.
func Notify(ctx context.Context, p Publisher, log logger.Logger, ev Event) {
	if p == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := p.Publish(pctx, ev); err != nil {
		log.Warn("Failed to publish event", map[string]interface{}{
			"event_type": ev.Type,
			"subject_id": ev.SubjectID,
			"error":      err.Error(),
		})
	}
}

// Fanout delivers to every publisher and joins their errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type nop struct{}

func Nop() Publisher { return nop{} }

func (nop) Publish(context.Context, Event) error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types returns the recorded event types in order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}
