// Package outbox stages domain events in the same transaction as the state
// change that produced them and relays them to a publisher afterwards.
//
// A Record moves Pending -> Delivered on a successful hand-off, or back to
// Pending with a later AvailableAt after a failed one. Once AttemptCount
// reaches the relay's MaxAttempts the record becomes Failed and stays there
// until an operator requeues it.
package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/AI-Fresh-Docs/RusTokio/internal/events"
	"github.com/AI-Fresh-Docs/RusTokio/pkg/domain"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusDelivered, StatusFailed:
		return true
	}
	return false
}

// Record is one row of the outbox table. ID equals the envelope ID, so
// downstream consumers can deduplicate on it.
type Record struct {
	ID           domain.EventID
	TenantID     domain.TenantID
	EventType    string
	Payload      []byte
	Status       Status
	AttemptCount int
	LastError    *string
	AvailableAt  time.Time
	CreatedAt    time.Time
	DeliveredAt  *time.Time
}

// NewRecord serializes env into a Pending record that is due immediately.
func NewRecord(env events.Envelope, now time.Time) (Record, error) {
	payload, err := json.Marshal(env)
	if err != nil {
		return Record{}, fmt.Errorf("encode envelope %s: %w", env.ID(), err)
	}
	return Record{
		ID:          env.ID(),
		TenantID:    env.TenantID(),
		EventType:   env.EventType(),
		Payload:     payload,
		Status:      StatusPending,
		AvailableAt: now,
		CreatedAt:   now,
	}, nil
}

// Envelope decodes the stored payload.
func (r Record) Envelope() (events.Envelope, error) {
	return events.Decode(r.Payload)
}

// Stats counts records by status.
type Stats struct {
	Pending   int64 `json:"pending"`
	Delivered int64 `json:"delivered"`
	Failed    int64 `json:"failed"`
}
