/*
Package memfront presents a uniform key/value cache interface on top of an
external distributed-cache client library.

The package's portable type is [Cache]. It owns no protocol, pooling or
server-selection logic; every operation is forwarded unchanged to an
injected backend connection (a [driver.Conn]) and its result is returned
unchanged. What the facade adds is construction from plain
"host[:port]" server lists, a uniform failure-interception path (see
[ExecPolicy]), and a stable contract so calling code never depends on the
concrete caching library.

Backends are selected either by constructing a driver connection directly,
or by URL scheme:

	import (
	    "context"
	    "log"

	    "github.com/memfront/memfront"
	    // Enable the memcached backend
	    _ "github.com/memfront/memfront/memcached"
	)

	func main() {
	    ctx := context.Background()
	    c, err := memfront.OpenCache(ctx, "memcached://10.0.0.1:11211,10.0.0.2", nil)
	    if err != nil {
	        log.Fatalf("Failed to open cache: %v", err)
	    }
	    defer c.Close()

	    ok, err := c.Set(ctx, "greeting", []byte("hello"), memfront.NoExpiry)
	    if err != nil {
	        log.Fatalf("Failed to set key: %v", err)
	    }
	    _ = ok
	}

Values are opaque byte sequences; [GetAs] and [SetAs] layer a JSON codec on
top for callers that want typed entries.

Failure handling is delegated to a single interception point. Every
operation except [Cache.GetMultiCAS] runs inside the configured
[ExecPolicy], which logs backend failures and decides whether they are
suppressed or propagated. GetMultiCAS calls the backend directly because of
its secondary CAS-token result channel; its failures bypass the policy.
*/
package memfront

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/memfront/memfront/internal/mferrors"
	"github.com/memfront/memfront/keymod"
	"github.com/memfront/memfront/pkg/driver"
)

// Cache is the portable cache facade. It holds a single backend connection
// and is stateless beyond it; concurrent use is safe exactly when the
// wrapped client library is safe for concurrent use.
type Cache struct {
	conn   driver.Conn
	policy ExecPolicy
	mod    keymod.Mod

	closeOnce sync.Once
	closeErr  error
}

// Options configures a Cache beyond its backend connection.
type Options struct {
	// Config holds the connection-pool configuration handed to drivers
	// that build their own client. Zero fields take package defaults.
	Config

	// Policy intercepts backend failures. Nil means NewLogPolicy(false):
	// log and propagate.
	Policy ExecPolicy

	// KeyModifier, when set, rewrites every key before it reaches the
	// backend. Useful for namespacing; see the keymod package.
	KeyModifier keymod.Mod

	// ExtraParams is a map of driver-specific options, an alternative to
	// URL query parameters. Values here override the URL values. Keys are
	// case insensitive; refer to the driver documentation for what is
	// available.
	ExtraParams map[string]string
}

// New returns a Cache delegating to conn. It fails if conn is nil.
func New(conn driver.Conn, options *Options) (*Cache, error) {
	if conn == nil {
		return nil, mferrors.New(errNilConn)
	}
	if options == nil {
		options = &Options{}
	}
	policy := options.Policy
	if policy == nil {
		policy = NewLogPolicy(false)
	}
	return &Cache{
		conn:   conn,
		policy: policy,
		mod:    options.KeyModifier,
	}, nil
}

func (c *Cache) key(key string) string {
	if c.mod == nil {
		return key
	}
	return c.mod(key)
}

// Set stores value under key unconditionally.
func (c *Cache) Set(ctx context.Context, key string, value []byte, exp Expiry) (ok bool, err error) {
	return c.store(ctx, driver.ModeSet, key, value, exp, 0)
}

// Add stores value under key only if the key is absent. It reports false
// when the key already exists, leaving the stored value unchanged.
func (c *Cache) Add(ctx context.Context, key string, value []byte, exp Expiry) (bool, error) {
	return c.store(ctx, driver.ModeAdd, key, value, exp, 0)
}

// Replace stores value under key only if the key is present. It reports
// false when the key is missing.
func (c *Cache) Replace(ctx context.Context, key string, value []byte, exp Expiry) (bool, error) {
	return c.store(ctx, driver.ModeReplace, key, value, exp, 0)
}

// CompareAndSwap stores value under key only if the stored entry still
// carries the given CAS token, as obtained from a prior [Cache.GetMultiCAS].
// It reports false on a version mismatch or when the key has disappeared,
// leaving the stored value unchanged.
func (c *Cache) CompareAndSwap(ctx context.Context, key string, value []byte, token uint64, exp Expiry) (bool, error) {
	if token == 0 {
		return false, mferrors.New(errZeroToken)
	}
	return c.store(ctx, driver.ModeSet, key, value, exp, token)
}

func (c *Cache) store(ctx context.Context, mode driver.StoreMode, key string, value []byte, exp Expiry, cas uint64) (ok bool, err error) {
	if !exp.Valid(now()) {
		return false, ErrInvalidExpiry
	}
	err = c.policy.Execute(ctx, mode.String(), func(ctx context.Context) error {
		var opErr error
		ok, opErr = c.conn.Store(ctx, mode, c.key(key), value, exp, cas)
		return opErr
	})
	return ok, err
}

// Get retrieves the raw value stored under key. A missing key is reported
// as [ErrKeyNotFound], not routed through the interception policy.
func (c *Cache) Get(ctx context.Context, key string) (value []byte, err error) {
	err = c.policy.Execute(ctx, "get", func(ctx context.Context) error {
		item, opErr := c.conn.Fetch(ctx, c.key(key))
		if opErr != nil {
			return opErr
		}
		value = item.Value
		return nil
	})
	return value, err
}

// GetMulti retrieves a batch of keys. Keys that are not found are simply
// absent from the result.
func (c *Cache) GetMulti(ctx context.Context, keys []string) (values map[string][]byte, err error) {
	err = c.policy.Execute(ctx, "getmulti", func(ctx context.Context) error {
		items, opErr := c.fetchMulti(ctx, keys)
		if opErr != nil {
			return opErr
		}
		values = make(map[string][]byte, len(items))
		for key, item := range items {
			values[key] = item.Value
		}
		return nil
	})
	return values, err
}

// GetMultiCAS retrieves a batch of keys along with each entry's CAS token,
// returned out of band as a second mapping keyed the same way.
//
// Unlike every other operation, GetMultiCAS calls the backend directly: its
// secondary result channel does not fit the interception wrapper, so
// failures here are neither logged nor suppressed by the configured
// ExecPolicy. This divergence is deliberate.
func (c *Cache) GetMultiCAS(ctx context.Context, keys []string) (map[string][]byte, map[string]uint64, error) {
	items, err := c.fetchMulti(ctx, keys)
	if err != nil {
		return nil, nil, err
	}
	values := make(map[string][]byte, len(items))
	tokens := make(map[string]uint64, len(items))
	for key, item := range items {
		values[key] = item.Value
		tokens[key] = item.CAS
	}
	return values, tokens, nil
}

func (c *Cache) fetchMulti(ctx context.Context, keys []string) (map[string]*driver.Item, error) {
	modified := keys
	if c.mod != nil {
		modified = make([]string, len(keys))
		for i, key := range keys {
			modified[i] = c.mod(key)
		}
	}
	items, err := c.conn.FetchMulti(ctx, modified)
	if err != nil {
		return nil, err
	}
	if c.mod == nil {
		return items, nil
	}
	// Map the modified keys back to the caller's keys.
	out := make(map[string]*driver.Item, len(items))
	for i, key := range keys {
		if item, found := items[modified[i]]; found {
			out[key] = item
		}
	}
	return out, nil
}

// Append concatenates value to the end of the raw value already stored
// under key. It reports false when the key is missing.
func (c *Cache) Append(ctx context.Context, key string, value []byte) (ok bool, err error) {
	err = c.policy.Execute(ctx, "append", func(ctx context.Context) error {
		var opErr error
		ok, opErr = c.conn.Append(ctx, c.key(key), value)
		return opErr
	})
	return ok, err
}

// Prepend concatenates value to the front of the raw value already stored
// under key. It reports false when the key is missing.
func (c *Cache) Prepend(ctx context.Context, key string, value []byte) (ok bool, err error) {
	err = c.policy.Execute(ctx, "prepend", func(ctx context.Context) error {
		var opErr error
		ok, opErr = c.conn.Prepend(ctx, c.key(key), value)
		return opErr
	})
	return ok, err
}

// Increment adds delta to the counter stored under key and returns the
// resulting value. The counter must already exist as the ASCII
// representation of an integer.
func (c *Cache) Increment(ctx context.Context, key string, delta uint64) (count uint64, err error) {
	err = c.policy.Execute(ctx, "increment", func(ctx context.Context) error {
		var opErr error
		count, opErr = c.conn.Increment(ctx, c.key(key), delta)
		return opErr
	})
	return count, err
}

// Decrement subtracts delta from the counter stored under key and returns
// the resulting value. Counters never go below zero.
func (c *Cache) Decrement(ctx context.Context, key string, delta uint64) (count uint64, err error) {
	err = c.policy.Execute(ctx, "decrement", func(ctx context.Context) error {
		var opErr error
		count, opErr = c.conn.Decrement(ctx, c.key(key), delta)
		return opErr
	})
	return count, err
}

// Remove deletes key from the cache. It reports whether the key existed.
func (c *Cache) Remove(ctx context.Context, key string) (existed bool, err error) {
	err = c.policy.Execute(ctx, "remove", func(ctx context.Context) error {
		var opErr error
		existed, opErr = c.conn.Remove(ctx, c.key(key))
		return opErr
	})
	return existed, err
}

// Flush clears the entire cache. There are no partial semantics.
func (c *Cache) Flush(ctx context.Context) error {
	return c.policy.Execute(ctx, "flush", func(ctx context.Context) error {
		return c.conn.Flush(ctx)
	})
}

// Ping verifies the backend is reachable.
func (c *Cache) Ping(ctx context.Context) error {
	return c.policy.Execute(ctx, "ping", func(ctx context.Context) error {
		return c.conn.Ping(ctx)
	})
}

// Close releases the backend connection. It is idempotent; only the first
// call reaches the backend and its result is returned thereafter.
func (c *Cache) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.policy.Execute(context.Background(), "close", func(context.Context) error {
			return c.conn.Close()
		})
	})
	return c.closeErr
}

// GetAs retrieves the value stored under key and decodes it as JSON into T.
func GetAs[T any](ctx context.Context, c *Cache, key string) (T, error) {
	var v T
	raw, err := c.Get(ctx, key)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, mferrors.Wrap("decode "+key, err)
	}
	return v, nil
}

// SetAs encodes value as JSON and stores it under key unconditionally.
func SetAs[T any](ctx context.Context, c *Cache, key string, value T, exp Expiry) (bool, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return false, mferrors.Wrap("encode "+key, err)
	}
	return c.Set(ctx, key, raw, exp)
}
