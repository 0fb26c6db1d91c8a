// Package events defines the envelope and the closed set of domain events
// modules exchange.
//
// DomainEvent is sealed: only the variants declared in this package implement
// it, so a type switch over the variants is exhaustive. Each variant carries
// the identifiers a consumer needs to refetch current state, never the full
// entity.
package events

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Event type discriminators. Types under "system." are routed to the system
// topic by external transports.
const (
	TypeNodeCreated       = "content.node_created"
	TypeNodeUpdated       = "content.node_updated"
	TypeNodePublished     = "content.node_published"
	TypeNodeDeleted       = "content.node_deleted"
	TypeProductCreated    = "commerce.product_created"
	TypeOrderCreated      = "commerce.order_created"
	TypeOrderPaid         = "commerce.order_paid"
	TypeInventoryAdjusted = "commerce.inventory_adjusted"
	TypeTopicCreated      = "forum.topic_created"
	TypeReplyCreated      = "forum.reply_created"
	TypeModuleEnabled     = "system.module_enabled"
	TypeModuleDisabled    = "system.module_disabled"
)

const systemPrefix = "system."

// DomainEvent is one meaningful state change.
type DomainEvent interface {
	EventType() string
	Validate() error
	sealed()
}

// IsSystem reports whether eventType belongs to the runtime itself rather
// than a business module.
func IsSystem(eventType string) bool {
	return len(eventType) >= len(systemPrefix) && eventType[:len(systemPrefix)] == systemPrefix
}

// Content

type NodeCreated struct {
	NodeID   uuid.UUID  `json:"node_id"`
	Kind     string     `json:"kind"`
	AuthorID *uuid.UUID `json:"author_id,omitempty"`
}

type NodeUpdated struct {
	NodeID uuid.UUID `json:"node_id"`
	Kind   string    `json:"kind"`
}

type NodePublished struct {
	NodeID      uuid.UUID  `json:"node_id"`
	Kind        string     `json:"kind"`
	AuthorID    *uuid.UUID `json:"author_id,omitempty"`
	PublishedAt time.Time  `json:"published_at"`
}

type NodeDeleted struct {
	NodeID uuid.UUID `json:"node_id"`
	Kind   string    `json:"kind"`
}

// Commerce. Monetary amounts are in minor units of Currency.

type ProductCreated struct {
	ProductID uuid.UUID `json:"product_id"`
	SKU       string    `json:"sku"`
	Title     string    `json:"title"`
	Price     int64     `json:"price"`
	Currency  string    `json:"currency"`
}

type OrderCreated struct {
	OrderID    uuid.UUID `json:"order_id"`
	CustomerID uuid.UUID `json:"customer_id"`
	Total      int64     `json:"total"`
	Currency   string    `json:"currency"`
}

type OrderPaid struct {
	OrderID   uuid.UUID `json:"order_id"`
	PaymentID uuid.UUID `json:"payment_id"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
}

type InventoryAdjusted struct {
	ProductID uuid.UUID `json:"product_id"`
	Delta     int64     `json:"delta"`
	Reason    string    `json:"reason"`
}

// Forum

type TopicCreated struct {
	TopicID  uuid.UUID  `json:"topic_id"`
	ForumID  uuid.UUID  `json:"forum_id"`
	AuthorID *uuid.UUID `json:"author_id,omitempty"`
}

type ReplyCreated struct {
	ReplyID  uuid.UUID  `json:"reply_id"`
	TopicID  uuid.UUID  `json:"topic_id"`
	AuthorID *uuid.UUID `json:"author_id,omitempty"`
}

// System

type ModuleEnabled struct {
	ModuleSlug string `json:"module_slug"`
}

type ModuleDisabled struct {
	ModuleSlug string `json:"module_slug"`
}

func (NodeCreated) EventType() string       { return TypeNodeCreated }
func (NodeUpdated) EventType() string       { return TypeNodeUpdated }
func (NodePublished) EventType() string     { return TypeNodePublished }
func (NodeDeleted) EventType() string       { return TypeNodeDeleted }
func (ProductCreated) EventType() string    { return TypeProductCreated }
func (OrderCreated) EventType() string      { return TypeOrderCreated }
func (OrderPaid) EventType() string         { return TypeOrderPaid }
func (InventoryAdjusted) EventType() string { return TypeInventoryAdjusted }
func (TopicCreated) EventType() string      { return TypeTopicCreated }
func (ReplyCreated) EventType() string      { return TypeReplyCreated }
func (ModuleEnabled) EventType() string     { return TypeModuleEnabled }
func (ModuleDisabled) EventType() string    { return TypeModuleDisabled }

func (NodeCreated) sealed()       {}
func (NodeUpdated) sealed()       {}
func (NodePublished) sealed()     {}
func (NodeDeleted) sealed()       {}
func (ProductCreated) sealed()    {}
func (OrderCreated) sealed()      {}
func (OrderPaid) sealed()         {}
func (InventoryAdjusted) sealed() {}
func (TopicCreated) sealed()      {}
func (ReplyCreated) sealed()      {}
func (ModuleEnabled) sealed()     {}
func (ModuleDisabled) sealed()    {}

// decoders maps a discriminator to its JSON decoder.
var decoders = map[string]func([]byte) (DomainEvent, error){
	TypeNodeCreated:       decodeAs[NodeCreated],
	TypeNodeUpdated:       decodeAs[NodeUpdated],
	TypeNodePublished:     decodeAs[NodePublished],
	TypeNodeDeleted:       decodeAs[NodeDeleted],
	TypeProductCreated:    decodeAs[ProductCreated],
	TypeOrderCreated:      decodeAs[OrderCreated],
	TypeOrderPaid:         decodeAs[OrderPaid],
	TypeInventoryAdjusted: decodeAs[InventoryAdjusted],
	TypeTopicCreated:      decodeAs[TopicCreated],
	TypeReplyCreated:      decodeAs[ReplyCreated],
	TypeModuleEnabled:     decodeAs[ModuleEnabled],
	TypeModuleDisabled:    decodeAs[ModuleDisabled],
}

func decodeAs[T DomainEvent](data []byte) (DomainEvent, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// KnownTypes lists every discriminator in lexical order.
func KnownTypes() []string {
	out := make([]string, 0, len(decoders))
	for t := range decoders {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
