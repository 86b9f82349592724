//go:build integration

package postgres

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/food-delivery/internal/domain/order"
)

func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:17-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "orders",
				"POSTGRES_PASSWORD": "orders",
				"POSTGRES_DB":       "orders",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	url := fmt.Sprintf("postgres://orders:orders@%s:%s/orders?sslmode=disable", host, port.Port())
	pool, err := NewPool(ctx, url, PoolConfig{MaxConns: 8})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, RunMigrations(ctx, pool))
	// Idempotent.
	require.NoError(t, RunMigrations(ctx, pool))
	return pool
}

func newOrder(branch int64, foods ...int64) *order.Order {
	o := &order.Order{
		CustomerName:    "Bob",
		CustomerPhone:   "+15550111",
		DeliveryAddress: "2 Side St",
		BranchID:        branch,
		Status:          order.StatusPendingPayment,
	}
	subtotal := decimal.Zero
	for i, id := range foods {
		l := order.Line{
			FoodID:    id,
			FoodName:  fmt.Sprintf("food-%d", id),
			UnitPrice: decimal.RequireFromString("4.50"),
			Quantity:  i + 1,
		}
		subtotal = subtotal.Add(l.LineTotal())
		o.Lines = append(o.Lines, l)
	}
	o.Subtotal, o.Total = subtotal, subtotal
	return o
}

func TestOrderRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository(startPostgres(t))
	require.NoError(t, repo.Ping(ctx))

	first := newOrder(1, 30, 10, 20)
	require.NoError(t, repo.Create(ctx, first))
	assert.NotZero(t, first.ID)
	assert.False(t, first.CreatedAt.IsZero())

	uid := int64(9)
	second := newOrder(2, 5)
	second.UserID = &uid
	require.NoError(t, repo.Create(ctx, second))

	t.Run("GetByID", func(t *testing.T) {
		got, err := repo.GetByID(ctx, first.ID)
		require.NoError(t, err)
		require.Len(t, got.Lines, 3)
		assert.Equal(t, []int64{30, 10, 20}, []int64{got.Lines[0].FoodID, got.Lines[1].FoodID, got.Lines[2].FoodID})
		assert.True(t, first.Total.Equal(got.Total))
		assert.Nil(t, got.UserID)

		_, err = repo.GetByID(ctx, 999_999)
		require.ErrorIs(t, err, order.ErrNotFound)
	})

	t.Run("List", func(t *testing.T) {
		all, err := repo.List(ctx, order.ListFilter{})
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, second.ID, all[0].ID)
		assert.Len(t, all[1].Lines, 3)

		mine, err := repo.List(ctx, order.ListFilter{UserID: uid})
		require.NoError(t, err)
		require.Len(t, mine, 1)
		assert.Equal(t, second.ID, mine[0].ID)

		none, err := repo.List(ctx, order.ListFilter{BranchID: 77})
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("UpdateStatus", func(t *testing.T) {
		got, err := repo.UpdateStatus(ctx, first.ID, func(cur order.Status) (order.Status, error) {
			return cur.Transition(order.StatusPaid)
		})
		require.NoError(t, err)
		assert.Equal(t, order.StatusPaid, got.Status)

		_, err = repo.UpdateStatus(ctx, first.ID, func(cur order.Status) (order.Status, error) {
			return cur.Transition(order.StatusPendingPayment)
		})
		require.ErrorIs(t, err, order.ErrIllegalTransition)

		_, err = repo.UpdateStatus(ctx, 999_999, func(cur order.Status) (order.Status, error) {
			return cur, nil
		})
		require.ErrorIs(t, err, order.ErrNotFound)
	})

	t.Run("ConcurrentTransitions", func(t *testing.T) {
		o := newOrder(3, 1)
		require.NoError(t, repo.Create(ctx, o))

		// Row locks serialize the callbacks, so only the first one sees
		// PENDING_PAYMENT.
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			succeeded int
		)
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.UpdateStatus(ctx, o.ID, func(cur order.Status) (order.Status, error) {
					if cur != order.StatusPendingPayment {
						return cur, &order.TransitionError{From: cur, To: order.StatusPaid}
					}
					return order.StatusPaid, nil
				})
				if err == nil {
					mu.Lock()
					succeeded++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, succeeded)
	})

	t.Run("Stream", func(t *testing.T) {
		var ids []int64
		var lines []int
		err := repo.Stream(ctx, order.ListFilter{}, func(o *order.Order) error {
			ids = append(ids, o.ID)
			lines = append(lines, len(o.Lines))
			return nil
		})
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(ids), 2)
		assert.Equal(t, first.ID, ids[0])
		assert.Equal(t, 3, lines[0])
		assert.Equal(t, 1, lines[1])
	})
}
