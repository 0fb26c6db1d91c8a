// Package kafka carries envelopes over a Kafka-compatible log.
//
// System events go to the system topic and everything else to the domain
// topic. Records are keyed by tenant, so a tenant's envelopes land on one
// partition and keep their order. The consumer acknowledges a record by
// committing its offset only after the envelope has been handed to the bus.
package kafka

import (
	"errors"
	"time"

	"github.com/AI-Fresh-Docs/RusTokio/internal/events"
)

// Config describes the cluster and topology.
type Config struct {
	Brokers  []string
	ClientID string
	// Stream prefixes topic names: "<stream>.domain" and "<stream>.system".
	Stream  string
	GroupID string
	// DomainPartitions applies when the domain topic is created. Default: 4
	DomainPartitions int32
	// SystemPartitions applies when the system topic is created. Default: 1
	SystemPartitions int32
	// ReplicationFactor applies to both topics. Default: 1
	ReplicationFactor int16
	// ProduceTimeout bounds one synchronous produce. Default: 10s
	ProduceTimeout time.Duration
}

var DefaultConfig = Config{
	ClientID:          "rustokio",
	Stream:            "rustokio",
	GroupID:           "rustokio-runtime",
	DomainPartitions:  4,
	SystemPartitions:  1,
	ReplicationFactor: 1,
	ProduceTimeout:    10 * time.Second,
}

func (c Config) withDefaults() Config {
	if c.ClientID == "" {
		c.ClientID = DefaultConfig.ClientID
	}
	if c.Stream == "" {
		c.Stream = DefaultConfig.Stream
	}
	if c.GroupID == "" {
		c.GroupID = DefaultConfig.GroupID
	}
	if c.DomainPartitions <= 0 {
		c.DomainPartitions = DefaultConfig.DomainPartitions
	}
	if c.SystemPartitions <= 0 {
		c.SystemPartitions = DefaultConfig.SystemPartitions
	}
	if c.ReplicationFactor <= 0 {
		c.ReplicationFactor = DefaultConfig.ReplicationFactor
	}
	if c.ProduceTimeout <= 0 {
		c.ProduceTimeout = DefaultConfig.ProduceTimeout
	}
	return c
}

func (c Config) validate() error {
	if len(c.Brokers) == 0 {
		return errors.New("kafka requires at least one broker")
	}
	return nil
}

// Topics names the two topics of a stream.
type Topics struct {
	Domain string
	System string
}

func (c Config) Topics() Topics {
	c = c.withDefaults()
	return Topics{Domain: c.Stream + ".domain", System: c.Stream + ".system"}
}

// For routes an event type to its topic.
func (t Topics) For(eventType string) string {
	if events.IsSystem(eventType) {
		return t.System
	}
	return t.Domain
}

// All lists both topics.
func (t Topics) All() []string {
	return []string{t.Domain, t.System}
}
