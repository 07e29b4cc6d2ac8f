package gomem

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/docker/docker/api/types/container"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/memfront/memfront"
	"github.com/memfront/memfront/drivertest"
	"github.com/memfront/memfront/pkg/driver"
)

func TestNew_NoEndpoints(t *testing.T) {
	t.Parallel()
	_, err := New(nil, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no endpoints")
}

func TestNewFromAddrs_BadAddr(t *testing.T) {
	t.Parallel()
	_, err := NewFromAddrs(nil, Options{}, "host:not-a-port")
	require.Error(t, err)
}

func TestNewFromClient_Nil(t *testing.T) {
	t.Parallel()
	_, err := NewFromClient(nil)
	require.Error(t, err)
}

// Store with a CAS token must fail before touching the network: the client
// cannot express a version-conditional write.
func TestStore_CASUnsupported(t *testing.T) {
	t.Parallel()
	conn, err := NewFromAddrs(nil, Options{}, "localhost:1")
	require.NoError(t, err)

	_, err = conn.Store(context.Background(), driver.ModeSet, "k", []byte("v"), driver.Expiry{}, 42)
	require.Error(t, err)
	assert.ErrorIs(t, err, memfront.ErrCASNotSupported)
}

func TestStoreResult(t *testing.T) {
	t.Parallel()

	ok, err := storeResult(nil)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = storeResult(memcache.ErrNotStored)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = storeResult(memcache.ErrCacheMiss)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = storeResult(memcache.ErrServerError)
	require.Error(t, err)
}

func TestOpener_OpenConnURL(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	o := &opener{}

	u, err := url.Parse("gomem://10.0.0.1:11211,10.0.0.2")
	require.NoError(t, err)
	conn, err := o.OpenConnURL(ctx, u, &memfront.Options{})
	require.NoError(t, err)
	assert.NotNil(t, conn)

	// No options are defined; unknown query parameters are ignored.
	u, err = url.Parse("gomem://localhost?bogus=1")
	require.NoError(t, err)
	_, err = o.OpenConnURL(ctx, u, &memfront.Options{})
	require.NoError(t, err)

	u, err = url.Parse("gomem://bad:host:list")
	require.NoError(t, err)
	_, err = o.OpenConnURL(ctx, u, &memfront.Options{})
	require.Error(t, err)
}

const containerPort = "11211"

// setupMemcached starts a memcached container and returns its endpoint.
func setupMemcached(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "memcached:alpine",
		ExposedPorts: []string{containerPort},
		ConfigModifier: func(c *container.Config) {
			c.Healthcheck = &container.HealthConfig{
				Test:          []string{"CMD", "nc", "-vn", "-w", "1", "localhost", containerPort},
				Interval:      30 * time.Second,
				Timeout:       60 * time.Second,
				Retries:       5,
				StartPeriod:   20 * time.Second,
				StartInterval: 5 * time.Second,
			}
		},
		WaitingFor: wait.ForHealthCheck(),
	}
	memcachedC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start memcached container: %v", err)
	}
	t.Cleanup(func() {
		if cleanupErr := memcachedC.Terminate(ctx); cleanupErr != nil {
			t.Fatalf("Failed to terminate memcached container: %v", cleanupErr)
		}
	})
	endpoint, err := memcachedC.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get memcached container endpoint: %v", err)
	}
	return endpoint
}

type serverHarness struct {
	addr string
}

func (h *serverHarness) MakeConn(ctx context.Context) (driver.Conn, error) {
	return NewFromAddrs(nil, Options{}, h.addr)
}

func (h *serverHarness) Close() error { return nil }

func (h *serverHarness) Options() drivertest.Options {
	return drivertest.Options{CASDisabled: true}
}

func TestIntegration_Conformance(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	addr := setupMemcached(t)
	drivertest.RunConformanceTests(t, func(ctx context.Context, t *testing.T) (drivertest.Harness, error) {
		return &serverHarness{addr: addr}, nil
	})
}
