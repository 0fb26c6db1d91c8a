package projection

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AI-Fresh-Docs/RusTokio/internal/events"
	"github.com/AI-Fresh-Docs/RusTokio/pkg/domain"
)

// Entity kinds tracked by the catalog.
const (
	KindNode    = "node"
	KindProduct = "product"
	KindOrder   = "order"
	KindTopic   = "topic"
	KindReply   = "reply"
)

// Entity statuses.
const (
	StatusDraft     = "draft"
	StatusPublished = "published"
	StatusDeleted   = "deleted"
	StatusActive    = "active"
	StatusCreated   = "created"
	StatusPaid      = "paid"
	StatusOpen      = "open"
)

// Entry is the indexed view of one entity.
type Entry struct {
	ID          uuid.UUID      `json:"id"`
	Kind        string         `json:"kind"`
	Subtype     string         `json:"subtype,omitempty"`
	Status      string         `json:"status"`
	Stock       int64          `json:"stock,omitempty"`
	LastEventID domain.EventID `json:"last_event_id"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Catalog is an in-memory per-tenant index of entity status, fed by content,
// commerce and forum events. Consumers refetch entities by ID; the catalog
// only records what exists and in which state.
type Catalog struct {
	mu      sync.RWMutex
	tenants map[domain.TenantID]map[uuid.UUID]Entry
}

func NewCatalog() *Catalog {
	return &Catalog{tenants: make(map[domain.TenantID]map[uuid.UUID]Entry)}
}

// Apply folds env into the index. It matches dispatcher.HandlerFunc. System
// events are ignored.
func (c *Catalog) Apply(_ context.Context, env events.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := c.tenants[env.TenantID()]
	if entries == nil {
		entries = make(map[uuid.UUID]Entry)
		c.tenants[env.TenantID()] = entries
	}
	put := func(id uuid.UUID, update func(*Entry)) {
		e, ok := entries[id]
		if !ok {
			e = Entry{ID: id}
		}
		update(&e)
		e.LastEventID = env.ID()
		e.UpdatedAt = env.Timestamp()
		entries[id] = e
	}

	switch ev := env.Event().(type) {
	case events.NodeCreated:
		put(ev.NodeID, func(e *Entry) {
			e.Kind, e.Subtype, e.Status = KindNode, ev.Kind, StatusDraft
		})
	case events.NodeUpdated:
		put(ev.NodeID, func(e *Entry) {
			e.Kind, e.Subtype = KindNode, ev.Kind
			if e.Status == "" {
				e.Status = StatusDraft
			}
		})
	case events.NodePublished:
		put(ev.NodeID, func(e *Entry) {
			e.Kind, e.Subtype, e.Status = KindNode, ev.Kind, StatusPublished
		})
	case events.NodeDeleted:
		put(ev.NodeID, func(e *Entry) {
			e.Kind, e.Subtype, e.Status = KindNode, ev.Kind, StatusDeleted
		})
	case events.ProductCreated:
		put(ev.ProductID, func(e *Entry) {
			e.Kind, e.Subtype, e.Status = KindProduct, ev.SKU, StatusActive
		})
	case events.InventoryAdjusted:
		put(ev.ProductID, func(e *Entry) {
			e.Kind = KindProduct
			if e.Status == "" {
				e.Status = StatusActive
			}
			e.Stock += ev.Delta
		})
	case events.OrderCreated:
		put(ev.OrderID, func(e *Entry) {
			e.Kind = KindOrder
			if e.Status != StatusPaid {
				e.Status = StatusCreated
			}
		})
	case events.OrderPaid:
		put(ev.OrderID, func(e *Entry) {
			e.Kind, e.Status = KindOrder, StatusPaid
		})
	case events.TopicCreated:
		put(ev.TopicID, func(e *Entry) {
			e.Kind, e.Status = KindTopic, StatusOpen
		})
	case events.ReplyCreated:
		put(ev.ReplyID, func(e *Entry) {
			e.Kind, e.Status = KindReply, StatusPublished
		})
	}
	return nil
}

// Get returns the entry for id in the tenant's index.
func (c *Catalog) Get(tenantID domain.TenantID, id uuid.UUID) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.tenants[tenantID][id]
	return e, ok
}

// List returns the tenant's entries of kind, or all entries when kind is
// empty, ordered by ID.
func (c *Catalog) List(tenantID domain.TenantID, kind string) []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Entry, 0, len(c.tenants[tenantID]))
	for _, e := range c.tenants[tenantID] {
		if kind == "" || e.Kind == kind {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out
}
