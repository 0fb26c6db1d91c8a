package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
)

// EnsureTopology creates the domain and system topics. Topics that already
// exist are left as they are.
func EnsureTopology(ctx context.Context, admin *kadm.Client, cfg Config, logger *slog.Logger) error {
	cfg = cfg.withDefaults()
	topics := cfg.Topics()
	plan := []struct {
		name       string
		partitions int32
	}{
		{topics.Domain, cfg.DomainPartitions},
		{topics.System, cfg.SystemPartitions},
	}
	for _, t := range plan {
		resp, err := admin.CreateTopics(ctx, t.partitions, cfg.ReplicationFactor, nil, t.name)
		if err != nil {
			return fmt.Errorf("create topic %s: %w", t.name, err)
		}
		for _, r := range resp {
			switch {
			case r.Err == nil:
				logger.InfoContext(ctx, "kafka topic created",
					"topic", r.Topic,
					"partitions", t.partitions,
					"replication_factor", cfg.ReplicationFactor,
				)
			case errors.Is(r.Err, kerr.TopicAlreadyExists):
				logger.DebugContext(ctx, "kafka topic exists", "topic", r.Topic)
			default:
				return fmt.Errorf("create topic %s: %w", r.Topic, r.Err)
			}
		}
	}
	return nil
}
