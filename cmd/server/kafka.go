package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/AI-Fresh-Docs/RusTokio/internal/eventbus"
	"github.com/AI-Fresh-Docs/RusTokio/internal/platform/config"
	"github.com/AI-Fresh-Docs/RusTokio/internal/transport/kafka"
)

func kafkaConfig(cfg config.Kafka) kafka.Config {
	return kafka.Config{
		Brokers:           cfg.Brokers,
		ClientID:          cfg.ClientID,
		Stream:            cfg.Stream,
		GroupID:           cfg.GroupID,
		DomainPartitions:  cfg.DomainPartitions,
		SystemPartitions:  cfg.SystemPartitions,
		ReplicationFactor: cfg.ReplicationFactor,
		ProduceTimeout:    cfg.ProduceTimeout,
	}
}

// startKafka ensures the topics exist and connects a producer for the relay
// and a consumer that feeds bus.
func startKafka(ctx context.Context, cfg config.Kafka, bus *eventbus.Bus, reg prometheus.Registerer, log *slog.Logger) (*kafka.Producer, *kafka.Consumer, error) {
	kcfg := kafkaConfig(cfg)

	if cfg.EnsureTopology {
		adminClient, err := kgo.NewClient(kgo.SeedBrokers(cfg.Brokers...), kgo.ClientID(cfg.ClientID+"-admin"))
		if err != nil {
			return nil, nil, fmt.Errorf("create kafka admin client: %w", err)
		}
		admin := kadm.NewClient(adminClient)
		err = kafka.EnsureTopology(ctx, admin, kcfg, log)
		admin.Close()
		if err != nil {
			return nil, nil, fmt.Errorf("ensure kafka topology: %w", err)
		}
	}

	m := kafka.NewMetrics(reg)
	producer, err := kafka.NewProducer(kcfg, kafka.WithProducerLogger(log), kafka.WithProducerMetrics(m))
	if err != nil {
		return nil, nil, err
	}
	consumer, err := kafka.NewConsumer(kcfg, bus, kafka.WithConsumerLogger(log), kafka.WithConsumerMetrics(m))
	if err != nil {
		producer.Close()
		return nil, nil, err
	}
	return producer, consumer, nil
}
