package taskqueue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping redis integration test in short mode")
	}

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = container.Terminate(ctx)
	})

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.Ping(ctx).Err())

	return client
}

func chordStoreContract(t *testing.T, store ChordStore) {
	t.Helper()

	ctx := context.Background()
	body := NewSignature("importer.import_resource", "exec", "key", "import")

	t.Run("body returned to last completer", func(t *testing.T) {
		require.NoError(t, store.Init(ctx, "c1", 3, body))

		pending, err := store.Pending(ctx)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, pending, 1)

		for range 2 {
			got, err := store.Complete(ctx, "c1", false)
			require.NoError(t, err)
			assert.Nil(t, got)
		}

		got, err := store.Complete(ctx, "c1", false)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, body.Name, got.Name)
		assert.Equal(t, body.Args, got.Args)

		_, err = store.Complete(ctx, "c1", false)
		assert.ErrorIs(t, err, ErrChordNotFound)
	})

	t.Run("failed member suppresses body", func(t *testing.T) {
		require.NoError(t, store.Init(ctx, "c2", 2, body))

		got, err := store.Complete(ctx, "c2", true)
		require.NoError(t, err)
		assert.Nil(t, got)

		got, err = store.Complete(ctx, "c2", false)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("concurrent completion yields one body", func(t *testing.T) {
		const size = 20

		require.NoError(t, store.Init(ctx, "c3", size, body))

		var (
			wg     sync.WaitGroup
			mu     sync.Mutex
			bodies int
		)

		for i := range size {
			wg.Add(1)

			go func() {
				defer wg.Done()

				got, err := store.Complete(ctx, "c3", false)
				assert.NoError(t, err, fmt.Sprint("member ", i))

				if got != nil {
					mu.Lock()
					bodies++
					mu.Unlock()
				}
			}()
		}

		wg.Wait()
		assert.Equal(t, 1, bodies)
	})

	t.Run("unknown chord", func(t *testing.T) {
		_, err := store.Complete(ctx, "missing", false)
		assert.ErrorIs(t, err, ErrChordNotFound)
	})
}

func TestMemoryChordStore(t *testing.T) {
	chordStoreContract(t, NewMemoryChordStore())
}

func TestRedisChordStore(t *testing.T) {
	client := setupRedis(t)
	chordStoreContract(t, NewRedisChordStore(client))

	pending, err := NewRedisChordStore(client).Pending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, pending)
}
