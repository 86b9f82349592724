//go:build integration

package idempotency

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	store := NewRedisStore(startRedis(t), RedisConfig{Namespace: "test", LockTTL: time.Second})
	require.NoError(t, store.Ping(ctx))

	rec, err := store.Begin(ctx, "k1")
	require.NoError(t, err)
	assert.Nil(t, rec, "first caller owns the key")

	_, err = store.Begin(ctx, "k1")
	require.ErrorIs(t, err, ErrInFlight)

	body := []byte(`{"order_id":1,"total_price":24.5,"status":"PENDING_PAYMENT"}`)
	require.NoError(t, store.Complete(ctx, "k1", Record{Status: 201, Body: body, Fingerprint: Fingerprint(body)}))

	rec, err = store.Begin(ctx, "k1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 201, rec.Status)
	assert.Equal(t, body, rec.Body)
	assert.True(t, rec.Matches(Fingerprint(body)))

	// Released keys can be claimed again.
	_, err = store.Begin(ctx, "k2")
	require.NoError(t, err)
	require.NoError(t, store.Release(ctx, "k2"))
	rec, err = store.Begin(ctx, "k2")
	require.NoError(t, err)
	assert.Nil(t, rec)

	// Abandoned claims expire.
	_, err = store.Begin(ctx, "k3")
	require.NoError(t, err)
	time.Sleep(1500 * time.Millisecond)
	rec, err = store.Begin(ctx, "k3")
	require.NoError(t, err)
	assert.Nil(t, rec)
}
