package memcached

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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
	_, err := NewFromAddrs(nil, Options{}, "host:1:2")
	require.Error(t, err)
}

func TestNewFromClient(t *testing.T) {
	t.Parallel()

	_, err := NewFromClient(nil)
	require.Error(t, err)

	conn, err := NewFromClient(newFakeClient())
	require.NoError(t, err)
	assert.NotNil(t, conn)
	// The caller owns the client, so Close must not tear anything down.
	require.NoError(t, conn.Close())
	require.NoError(t, conn.Ping(context.Background()))
}

func TestConn_FetchMissing(t *testing.T) {
	t.Parallel()
	conn, err := NewFromClient(newFakeClient())
	require.NoError(t, err)

	_, err = conn.Fetch(context.Background(), "absent")
	require.Error(t, err)
	assert.ErrorIs(t, err, memfront.ErrKeyNotFound)
}

func TestConn_FetchMultiError(t *testing.T) {
	t.Parallel()
	client := newFakeClient()
	client.failAll = errors.New("wire torn")
	conn, err := NewFromClient(client)
	require.NoError(t, err)

	_, err = conn.FetchMulti(context.Background(), []string{"a", "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wire torn")
}

func TestConn_StoreError(t *testing.T) {
	t.Parallel()
	client := newFakeClient()
	client.failAll = errors.New("server unreachable")
	conn, err := NewFromClient(client)
	require.NoError(t, err)

	_, err = conn.Store(context.Background(), driver.ModeSet, "k", []byte("v"), driver.Expiry{}, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server unreachable")
}

func TestConn_IncrementNonNumeric(t *testing.T) {
	t.Parallel()
	conn, err := NewFromClient(newFakeClient())
	require.NoError(t, err)
	ctx := context.Background()

	ok, err := conn.Store(ctx, driver.ModeSet, "word", []byte("banana"), driver.Expiry{}, 0)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = conn.Increment(ctx, "word", 1)
	require.Error(t, err)
	assert.NotErrorIs(t, err, memfront.ErrKeyNotFound)
}

func TestShardByKey(t *testing.T) {
	t.Parallel()
	assert.Equal(t, -1, shardByKey("anything", 0))
	for _, key := range []string{"a", "b", "some-longer-key"} {
		shard := shardByKey(key, 3)
		assert.GreaterOrEqual(t, shard, 0)
		assert.Less(t, shard, 3)
		// Shard selection is stable for a given key.
		assert.Equal(t, shard, shardByKey(key, 3))
	}
}

func TestOpener_OpenConnURL(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	o := &opener{}

	u, err := url.Parse("memcached://10.0.0.1:11211,10.0.0.2?useascii=true&readtimeout=500ms")
	require.NoError(t, err)
	conn, err := o.OpenConnURL(ctx, u, &memfront.Options{})
	require.NoError(t, err)
	assert.NotNil(t, conn)

	// Malformed endpoint in the host list.
	u, err = url.Parse("memcached://10.0.0.1:1:2")
	require.NoError(t, err)
	_, err = o.OpenConnURL(ctx, u, &memfront.Options{})
	require.Error(t, err)

	// Unknown query parameters are ignored.
	u, err = url.Parse("memcached://localhost?bogus=1")
	require.NoError(t, err)
	_, err = o.OpenConnURL(ctx, u, &memfront.Options{})
	require.NoError(t, err)

	// Malformed parameter value.
	u, err = url.Parse("memcached://localhost?readtimeout=not-a-duration")
	require.NoError(t, err)
	_, err = o.OpenConnURL(ctx, u, &memfront.Options{})
	require.Error(t, err)

	// ExtraParams must decode like query parameters.
	u, err = url.Parse("memcached://localhost")
	require.NoError(t, err)
	conn, err = o.OpenConnURL(ctx, u, &memfront.Options{
		ExtraParams: map[string]string{"WriteTimeout": "250ms"},
	})
	require.NoError(t, err)
	assert.NotNil(t, conn)
	_, err = o.OpenConnURL(ctx, u, &memfront.Options{
		ExtraParams: map[string]string{"WriteTimeout": "not-a-duration"},
	})
	require.Error(t, err)
}

// fakeHarness runs the conformance suite against the in-memory fake client,
// exercising the full response translation layer without a server.
type fakeHarness struct{}

func (fakeHarness) MakeConn(ctx context.Context) (driver.Conn, error) {
	return NewFromClient(newFakeClient())
}

func (fakeHarness) Close() error { return nil }

func (fakeHarness) Options() drivertest.Options {
	return drivertest.Options{CloseIsNoop: true}
}

func TestConformance(t *testing.T) {
	drivertest.RunConformanceTests(t, func(ctx context.Context, t *testing.T) (drivertest.Harness, error) {
		return fakeHarness{}, nil
	})
}

func TestExpiryEncoding(t *testing.T) {
	t.Parallel()
	// The driver hands the client a relative expiration for short TTLs.
	restore := timeNow
	defer func() { timeNow = restore }()
	fixed := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	timeNow = func() time.Time { return fixed }

	client := newFakeClient()
	conn, err := NewFromClient(client)
	require.NoError(t, err)

	ok, err := conn.Store(context.Background(), driver.ModeSet, "k", []byte("v"), driver.TTL(90*time.Second), 0)
	require.NoError(t, err)
	require.True(t, ok)
	client.mu.Lock()
	entry := client.data["k"]
	client.mu.Unlock()
	require.NotNil(t, entry)
	assert.WithinDuration(t, time.Now().Add(90*time.Second), entry.deadline, 5*time.Second)
}
