//go:build integration

package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	audit "tollgate/pkg/platform/audit"
	"tollgate/pkg/testutil/containers"

	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
)

func TestSink_RoundTripThroughRedpanda(t *testing.T) {
	rp := containers.GetManager().GetRedpanda(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	const topic = "tollgate-security-it"
	client, err := kgo.NewClient(kgo.SeedBrokers(rp.Brokers...))
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, EnsureTopic(ctx, kadm.NewClient(client), topic, 1, 1))
	require.NoError(t, EnsureTopic(ctx, kadm.NewClient(client), topic, 1, 1), "second call tolerates existing topic")

	sink := New(client, topic)
	require.NoError(t, sink.Write(ctx, []audit.SecurityEvent{
		{ID: "ev-1", AppID: "app", Action: audit.ActionMasterKeyIPRejected, Severity: audit.SeverityCritical},
	}))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(rp.Brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	require.NoError(t, fetches.Err())
	records := fetches.Records()
	require.NotEmpty(t, records)

	var ev audit.SecurityEvent
	require.NoError(t, json.Unmarshal(records[0].Value, &ev))
	require.Equal(t, "ev-1", ev.ID)
	require.Equal(t, "app", string(records[0].Key))
}
