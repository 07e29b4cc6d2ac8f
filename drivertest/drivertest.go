// Package drivertest provides conformance tests for memfront backend
// drivers. Driver packages construct a Harness and call
// RunConformanceTests; every facade-level contract (store-mode
// conditionality, CAS staleness, bulk-get absence, flush) is exercised
// through a real [memfront.Cache] so the driver and the facade are tested
// together.
package drivertest

import (
	"context"
	"testing"
	"time"

	multierror "github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memfront/memfront"
	"github.com/memfront/memfront/internal/testutil"
	"github.com/memfront/memfront/pkg/driver"
)

// Options describes the set of capabilities a driver supports.
type Options struct {
	// CASDisabled is true if the driver cannot expose CAS version tokens.
	// If true, CompareAndSwap must fail with memfront.ErrCASNotSupported
	// and GetMultiCAS reports zero tokens.
	CASDisabled bool

	// CloseIsNoop is true if Close is a no-op for the driver and the
	// backend remains usable afterwards.
	CloseIsNoop bool
}

// Harness describes the functionality test harnesses must provide to run
// conformance tests.
type Harness interface {
	// MakeConn makes a driver connection for testing.
	MakeConn(ctx context.Context) (driver.Conn, error)

	// Close closes resources used by the harness.
	Close() error

	// Options returns the set of capabilities the driver supports.
	Options() Options
}

// HarnessMaker describes functions that construct a harness for running
// tests. It is called exactly once per test; Harness.Close is called when
// the test is complete.
type HarnessMaker func(ctx context.Context, t *testing.T) (Harness, error)

// RunConformanceTests runs conformance tests for a backend driver.
func RunConformanceTests(t *testing.T, newHarness HarnessMaker) {
	t.Helper()

	t.Run("StoreModes", func(t *testing.T) { withCache(t, newHarness, testStoreModes) })
	t.Run("CompareAndSwap", func(t *testing.T) { withCache(t, newHarness, testCompareAndSwap) })
	t.Run("Get", func(t *testing.T) { withCache(t, newHarness, testGet) })
	t.Run("GetMulti", func(t *testing.T) { withCache(t, newHarness, testGetMulti) })
	t.Run("AppendPrepend", func(t *testing.T) { withCache(t, newHarness, testAppendPrepend) })
	t.Run("Counters", func(t *testing.T) { withCache(t, newHarness, testCounters) })
	t.Run("Remove", func(t *testing.T) { withCache(t, newHarness, testRemove) })
	t.Run("Expiry", func(t *testing.T) { withCache(t, newHarness, testExpiry) })
	t.Run("Flush", func(t *testing.T) { withCache(t, newHarness, testFlush) })
	t.Run("Ping", func(t *testing.T) { withCache(t, newHarness, testPing) })
	t.Run("Close", func(t *testing.T) { withCache(t, newHarness, testClose) })
}

// withCache creates a new cache over a fresh driver connection and runs the
// test function.
func withCache(t *testing.T, newHarness HarnessMaker, f func(*testing.T, *memfront.Cache, Options)) {
	t.Helper()

	ctx := context.Background()
	h, err := newHarness(ctx, t)
	if err != nil {
		t.Fatal(err)
	}

	conn, err := h.MakeConn(ctx)
	if err != nil {
		h.Close()
		t.Fatal(err)
	}
	c, err := memfront.New(conn, nil)
	if err != nil {
		h.Close()
		t.Fatal(err)
	}
	t.Cleanup(func() {
		var errs *multierror.Error
		errs = multierror.Append(errs, c.Close(), h.Close())
		if cleanupErr := errs.ErrorOrNil(); cleanupErr != nil {
			t.Errorf("Failed to clean up harness: %v", cleanupErr)
		}
	})

	f(t, c, h.Options())
}

func testStoreModes(t *testing.T, c *memfront.Cache, opts Options) {
	ctx := context.Background()
	key := testutil.UniqueKey(t)

	// Add on a missing key succeeds.
	ok, err := c.Add(ctx, key, []byte("first"), memfront.NoExpiry)
	require.NoError(t, err)
	assert.True(t, ok)

	// Add on an existing key fails and leaves the value unchanged.
	ok, err = c.Add(ctx, key, []byte("second"), memfront.NoExpiry)
	require.NoError(t, err)
	assert.False(t, ok)
	got, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), got)

	// Replace on an existing key succeeds.
	ok, err = c.Replace(ctx, key, []byte("second"), memfront.NoExpiry)
	require.NoError(t, err)
	assert.True(t, ok)

	// Set is unconditional.
	ok, err = c.Set(ctx, key, []byte("third"), memfront.NoExpiry)
	require.NoError(t, err)
	assert.True(t, ok)

	// Replace on a missing key fails.
	missing := testutil.UniqueKey(t) + "-missing"
	ok, err = c.Replace(ctx, missing, []byte("nope"), memfront.NoExpiry)
	require.NoError(t, err)
	assert.False(t, ok)

	// Set on a missing key still succeeds.
	ok, err = c.Set(ctx, missing, []byte("yes"), memfront.NoExpiry)
	require.NoError(t, err)
	assert.True(t, ok)
}

func testCompareAndSwap(t *testing.T, c *memfront.Cache, opts Options) {
	ctx := context.Background()
	key := testutil.UniqueKey(t)

	ok, err := c.Set(ctx, key, []byte("v1"), memfront.NoExpiry)
	require.NoError(t, err)
	require.True(t, ok)

	_, tokens, err := c.GetMultiCAS(ctx, []string{key})
	require.NoError(t, err)

	if opts.CASDisabled {
		assert.Zero(t, tokens[key])
		_, err = c.CompareAndSwap(ctx, key, []byte("v2"), 1, memfront.NoExpiry)
		require.Error(t, err)
		assert.ErrorIs(t, err, memfront.ErrCASNotSupported)
		return
	}

	token := tokens[key]
	require.NotZero(t, token)

	// A concurrent write invalidates the token.
	ok, err = c.Set(ctx, key, []byte("v2"), memfront.NoExpiry)
	require.NoError(t, err)
	require.True(t, ok)

	// Stale token: swap fails, value unchanged.
	ok, err = c.CompareAndSwap(ctx, key, []byte("stale"), token, memfront.NoExpiry)
	require.NoError(t, err)
	assert.False(t, ok)
	got, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)

	// Fresh token: swap succeeds.
	_, tokens, err = c.GetMultiCAS(ctx, []string{key})
	require.NoError(t, err)
	ok, err = c.CompareAndSwap(ctx, key, []byte("v3"), tokens[key], memfront.NoExpiry)
	require.NoError(t, err)
	assert.True(t, ok)
	got, err = c.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("v3"), got)
}

func testGet(t *testing.T, c *memfront.Cache, opts Options) {
	ctx := context.Background()
	key := testutil.UniqueKey(t)

	ok, err := c.Set(ctx, key, []byte("testValue"), memfront.NoExpiry)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("testValue"), got)

	// Missing key reports the absent marker.
	_, err = c.Get(ctx, key+"-missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, memfront.ErrKeyNotFound)
}

func testGetMulti(t *testing.T, c *memfront.Cache, opts Options) {
	ctx := context.Background()
	present := testutil.UniqueKey(t)
	absent := present + "-absent"

	ok, err := c.Set(ctx, present, []byte("here"), memfront.NoExpiry)
	require.NoError(t, err)
	require.True(t, ok)

	values, err := c.GetMulti(ctx, []string{present, absent})
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{present: []byte("here")}, values)

	values, tokens, err := c.GetMultiCAS(ctx, []string{present, absent})
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{present: []byte("here")}, values)
	assert.NotContains(t, tokens, absent)
	if !opts.CASDisabled {
		assert.NotZero(t, tokens[present])
	}
}

func testAppendPrepend(t *testing.T, c *memfront.Cache, opts Options) {
	ctx := context.Background()
	key := testutil.UniqueKey(t)

	ok, err := c.Set(ctx, key, []byte("mid"), memfront.NoExpiry)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = c.Append(ctx, key, []byte("-end"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Prepend(ctx, key, []byte("start-"))
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("start-mid-end"), got)

	// Concatenating to a missing key fails.
	ok, err = c.Append(ctx, key+"-missing", []byte("x"))
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = c.Prepend(ctx, key+"-missing", []byte("x"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func testCounters(t *testing.T, c *memfront.Cache, opts Options) {
	ctx := context.Background()
	key := testutil.UniqueKey(t)

	ok, err := c.Set(ctx, key, []byte("10"), memfront.NoExpiry)
	require.NoError(t, err)
	require.True(t, ok)

	count, err := c.Increment(ctx, key, 5)
	require.NoError(t, err)
	assert.Equal(t, uint64(15), count)

	count, err = c.Decrement(ctx, key, 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(12), count)

	// Decrementing past zero floors at zero.
	count, err = c.Decrement(ctx, key, 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), count)

	// Counters are not auto-created.
	_, err = c.Increment(ctx, key+"-missing", 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, memfront.ErrKeyNotFound)
}

func testRemove(t *testing.T, c *memfront.Cache, opts Options) {
	ctx := context.Background()
	key := testutil.UniqueKey(t)

	ok, err := c.Set(ctx, key, []byte("testValue"), memfront.NoExpiry)
	require.NoError(t, err)
	require.True(t, ok)

	existed, err := c.Remove(ctx, key)
	require.NoError(t, err)
	assert.True(t, existed)

	_, err = c.Get(ctx, key)
	assert.ErrorIs(t, err, memfront.ErrKeyNotFound)

	existed, err = c.Remove(ctx, key)
	require.NoError(t, err)
	assert.False(t, existed)
}

func testExpiry(t *testing.T, c *memfront.Cache, opts Options) {
	ctx := context.Background()
	key := testutil.UniqueKey(t)

	ok, err := c.Set(ctx, key, []byte("shortlived"), memfront.TTL(1*time.Second))
	require.NoError(t, err)
	require.True(t, ok)

	got, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("shortlived"), got)

	time.Sleep(2 * time.Second)

	_, err = c.Get(ctx, key)
	assert.ErrorIs(t, err, memfront.ErrKeyNotFound)
}

func testFlush(t *testing.T, c *memfront.Cache, opts Options) {
	ctx := context.Background()
	key := testutil.UniqueKey(t)

	ok, err := c.Set(ctx, key, []byte("testValue"), memfront.NoExpiry)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, c.Flush(ctx))

	_, err = c.Get(ctx, key)
	assert.ErrorIs(t, err, memfront.ErrKeyNotFound)
}

func testPing(t *testing.T, c *memfront.Cache, opts Options) {
	require.NoError(t, c.Ping(context.Background()))
}

func testClose(t *testing.T, c *memfront.Cache, opts Options) {
	require.NoError(t, c.Close())
	// Close is idempotent.
	require.NoError(t, c.Close())

	if opts.CloseIsNoop {
		require.NoError(t, c.Ping(context.Background()))
	}
}
