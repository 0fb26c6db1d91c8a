package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/AI-Fresh-Docs/RusTokio/pkg/domain"
	dErrors "github.com/AI-Fresh-Docs/RusTokio/pkg/domain-errors"
)

// Envelope wraps a DomainEvent with delivery metadata. Fields are set once by
// NewEnvelope and exposed read-only.
type Envelope struct {
	id        domain.EventID
	tenantID  domain.TenantID
	timestamp time.Time
	actorID   *domain.ActorID
	event     DomainEvent
}

// NewEnvelope validates event and stamps it with a fresh ID and the current
// UTC time. actorID is nil for system-originated events.
func NewEnvelope(tenantID domain.TenantID, actorID *domain.ActorID, event DomainEvent) (Envelope, error) {
	return newEnvelopeAt(domain.NewEventID(), tenantID, actorID, event, time.Now().UTC())
}

func newEnvelopeAt(id domain.EventID, tenantID domain.TenantID, actorID *domain.ActorID, event DomainEvent, ts time.Time) (Envelope, error) {
	if event == nil {
		return Envelope{}, dErrors.New(dErrors.CodeValidation, "event is required")
	}
	if !isVariant(event) {
		return Envelope{}, dErrors.Newf(dErrors.CodeValidation, "unsupported event type %T", event)
	}
	if tenantID.IsNil() {
		return Envelope{}, dErrors.New(dErrors.CodeValidation, "tenant_id is required")
	}
	if actorID != nil && actorID.IsNil() {
		return Envelope{}, dErrors.New(dErrors.CodeValidation, "actor_id must not be the nil uuid")
	}
	if err := event.Validate(); err != nil {
		return Envelope{}, err
	}
	var actor *domain.ActorID
	if actorID != nil {
		a := *actorID
		actor = &a
	}
	return Envelope{
		id:        id,
		tenantID:  tenantID,
		timestamp: ts,
		actorID:   actor,
		event:     event,
	}, nil
}

// isVariant accepts only the value forms of the event variants. Pointers would
// alias caller memory and a typed nil pointer would panic in Validate.
func isVariant(event DomainEvent) bool {
	switch event.(type) {
	case NodeCreated, NodeUpdated, NodePublished, NodeDeleted,
		ProductCreated, OrderCreated, OrderPaid, InventoryAdjusted,
		TopicCreated, ReplyCreated, ModuleEnabled, ModuleDisabled:
		return true
	}
	return false
}

func (e Envelope) ID() domain.EventID        { return e.id }
func (e Envelope) TenantID() domain.TenantID { return e.tenantID }
func (e Envelope) Timestamp() time.Time      { return e.timestamp }
func (e Envelope) Event() DomainEvent        { return e.event }
func (e Envelope) EventType() string         { return e.event.EventType() }
func (e Envelope) IsZero() bool              { return e.event == nil }

// ActorID returns a copy so callers cannot mutate the envelope.
func (e Envelope) ActorID() (domain.ActorID, bool) {
	if e.actorID == nil {
		return domain.ActorID{}, false
	}
	return *e.actorID, true
}

type wireEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type wireEnvelope struct {
	ID        uuid.UUID  `json:"id"`
	TenantID  uuid.UUID  `json:"tenant_id"`
	Timestamp time.Time  `json:"timestamp"`
	ActorID   *uuid.UUID `json:"actor_id"`
	EventType string     `json:"event_type"`
	Event     wireEvent  `json:"event"`
}

// MarshalJSON implements json.Marshaler.
func (e Envelope) MarshalJSON() ([]byte, error) {
	if e.event == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "cannot encode empty envelope")
	}
	data, err := json.Marshal(e.event)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", e.event.EventType(), err)
	}
	w := wireEnvelope{
		ID:        uuid.UUID(e.id),
		TenantID:  uuid.UUID(e.tenantID),
		Timestamp: e.timestamp,
		EventType: e.event.EventType(),
		Event:     wireEvent{Type: e.event.EventType(), Data: data},
	}
	if e.actorID != nil {
		a := uuid.UUID(*e.actorID)
		w.ActorID = &a
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler. The decoded event is validated
// like a freshly built one.
func (e *Envelope) UnmarshalJSON(b []byte) error {
	decoded, err := Decode(b)
	if err != nil {
		return err
	}
	*e = decoded
	return nil
}

// Decode parses a serialized envelope. Unknown event types and payloads that
// fail validation are rejected.
func Decode(b []byte) (Envelope, error) {
	var w wireEnvelope
	if err := json.Unmarshal(b, &w); err != nil {
		return Envelope{}, dErrors.Wrap(err, dErrors.CodeInvalidInput, "malformed envelope")
	}
	decode, ok := decoders[w.Event.Type]
	if !ok {
		return Envelope{}, dErrors.Newf(dErrors.CodeInvalidInput, "unknown event type %q", w.Event.Type)
	}
	if w.EventType != "" && w.EventType != w.Event.Type {
		return Envelope{}, dErrors.Newf(dErrors.CodeInvalidInput,
			"event_type %q does not match event.type %q", w.EventType, w.Event.Type)
	}
	if w.ID == uuid.Nil {
		return Envelope{}, dErrors.New(dErrors.CodeInvalidInput, "envelope id is required")
	}
	ev, err := decode(w.Event.Data)
	if err != nil {
		return Envelope{}, dErrors.Wrap(err, dErrors.CodeInvalidInput, "malformed event data")
	}
	var actor *domain.ActorID
	if w.ActorID != nil {
		a := domain.ActorID(*w.ActorID)
		actor = &a
	}
	return newEnvelopeAt(domain.EventID(w.ID), domain.TenantID(w.TenantID), actor, ev, w.Timestamp)
}
