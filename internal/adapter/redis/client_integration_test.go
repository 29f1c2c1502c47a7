package redis

import (
	"context"
	"testing"

	"github.com/alessandrobessi/tamagotchi/internal/adapter/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_Connects(t *testing.T) {
	client := setupTestClient(t)

	require.NoError(t, client.Ping(context.Background()).Err())
}

func TestNewClient_RecordsMetrics(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	m := metrics.NewRedisMetrics(prometheus.NewRegistry())

	client, err := NewClient(context.Background(), testRedisURL, m)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	assert.Equal(t, 1.0, testutil.ToFloat64(m.OpsTotal.WithLabelValues("ping", "success")))
}

func TestNewClient_InvalidURL(t *testing.T) {
	_, err := NewClient(context.Background(), "://not-a-url", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse redis URL")
}
