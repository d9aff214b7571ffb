//go:build integration

package kafka

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tollgate/internal/platform/config"
	"tollgate/pkg/testutil/containers"
)

func TestNewCreatesAuditTopic(t *testing.T) {
	rp := containers.GetManager().GetRedpanda(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg := config.Kafka{Brokers: rp.Brokers, AuditTopic: "tollgate-platform-it", Partitions: 1, ReplicationFactor: 1}
	cl, err := New(ctx, cfg, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	defer cl.Close()

	topics, err := cl.Admin.ListTopics(ctx, cfg.AuditTopic)
	require.NoError(t, err)
	require.True(t, topics.Has(cfg.AuditTopic))
}
