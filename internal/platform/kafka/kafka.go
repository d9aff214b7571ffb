// Package kafka builds the franz-go client behind the security audit sink.
package kafka

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"

	"tollgate/internal/platform/config"
	kafkasink "tollgate/pkg/platform/audit/sinks/kafka"
)

// Client bundles the producer and admin clients for one cluster.
type Client struct {
	*kgo.Client
	Admin *kadm.Client
}

// New connects to cfg.Brokers and creates the audit topic if it is missing.
// Returns nil when no brokers are configured.
func New(ctx context.Context, cfg config.Kafka, logger *slog.Logger) (*Client, error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil
	}
	cl, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.AuditTopic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	if err := cl.Ping(ctx); err != nil {
		cl.Close()
		return nil, fmt.Errorf("ping kafka: %w", err)
	}

	adm := kadm.NewClient(cl)
	if err := kafkasink.EnsureTopic(ctx, adm, cfg.AuditTopic, cfg.Partitions, cfg.ReplicationFactor); err != nil {
		cl.Close()
		return nil, err
	}
	logger.Info("kafka audit sink ready", "brokers", cfg.Brokers, "topic", cfg.AuditTopic)
	return &Client{Client: cl, Admin: adm}, nil
}
