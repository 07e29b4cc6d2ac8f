/*
Package ramcache implements the memfront backend contract with an in-memory
map. It is useful for testing, development, and caching small data sets; it
keeps full compare-and-swap semantics (a process-wide version counter stamps
every write) so code exercising CAS against a real memcached backend behaves
the same here.

# URL Format

	ramcache://[?query]

Query parameters decode into [Options] by case-insensitive field name:

	ramcache://?cleanupinterval=1m

# Usage

	import (
	    "context"

	    "github.com/memfront/memfront"
	    _ "github.com/memfront/memfront/ramcache"
	)

	c, err := memfront.OpenCache(context.Background(), "ramcache://", nil)

# Limitations

Data does not survive the process, and entries never expire mid-operation:
expired items are dropped lazily on access plus by a background janitor.
*/
package ramcache

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/memfront/memfront"
	"github.com/memfront/memfront/internal/mferrors"
	"github.com/memfront/memfront/internal/urlparser"
	"github.com/memfront/memfront/pkg/driver"
)

// Scheme is the cache URL scheme for the in-memory backend.
const Scheme = "ramcache"

func init() { //nolint:gochecknoinits // Driver registration.
	memfront.RegisterDriver(Scheme, &opener{})
}

var errNonNumeric = errors.New("incr/decr on non-numeric value")

// Options are the in-memory backend options.
type Options struct {
	// CleanupInterval is the interval at which checks for expired items
	// are performed. If not set, the default is 5 minutes.
	CleanupInterval time.Duration
}

// revise ensures sensible defaults are set.
func (o *Options) revise() {
	if o.CleanupInterval <= 0 {
		o.CleanupInterval = 5 * time.Minute
	}
}

// conn is the in-memory implementation of driver.Conn.
type conn struct {
	store     *store
	stopCh    chan struct{}
	closeOnce sync.Once
}

var _ driver.Conn = (*conn)(nil)

// New returns a new in-memory backend connection.
func New(options Options) driver.Conn {
	options.revise()
	c := &conn{store: newStore(), stopCh: make(chan struct{})}
	go c.janitor(options.CleanupInterval)
	return c
}

// janitor periodically removes expired items.
func (c *conn) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.store.DeleteExpired(time.Now())
		case <-c.stopCh:
			return
		}
	}
}

// Store implements driver.Conn.
func (c *conn) Store(_ context.Context, mode driver.StoreMode, key string, value []byte, exp driver.Expiry, cas uint64) (bool, error) {
	cond := condNone
	switch mode {
	case driver.ModeAdd:
		cond = condAbsent
	case driver.ModeReplace:
		cond = condPresent
	}
	now := time.Now()
	return c.store.Stash(cond, key, value, 0, exp.Time(now), cas, now), nil
}

// Fetch implements driver.Conn.
func (c *conn) Fetch(_ context.Context, key string) (*driver.Item, error) {
	it, ok := c.store.Fetch(key, time.Now())
	if !ok {
		return nil, mferrors.NewWithScheme(Scheme, memfront.ErrKeyNotFound)
	}
	return &driver.Item{Key: key, Value: it.value, Flags: it.flags, CAS: it.cas}, nil
}

// FetchMulti implements driver.Conn.
func (c *conn) FetchMulti(_ context.Context, keys []string) (map[string]*driver.Item, error) {
	now := time.Now()
	items := make(map[string]*driver.Item)
	for _, key := range keys {
		if it, ok := c.store.Fetch(key, now); ok {
			items[key] = &driver.Item{Key: key, Value: it.value, Flags: it.flags, CAS: it.cas}
		}
	}
	return items, nil
}

// Append implements driver.Conn.
func (c *conn) Append(_ context.Context, key string, value []byte) (bool, error) {
	return c.store.Concat(key, value, false, time.Now()), nil
}

// Prepend implements driver.Conn.
func (c *conn) Prepend(_ context.Context, key string, value []byte) (bool, error) {
	return c.store.Concat(key, value, true, time.Now()), nil
}

// Increment implements driver.Conn.
func (c *conn) Increment(ctx context.Context, key string, delta uint64) (uint64, error) {
	return c.counter(key, delta, true)
}

// Decrement implements driver.Conn.
func (c *conn) Decrement(ctx context.Context, key string, delta uint64) (uint64, error) {
	return c.counter(key, delta, false)
}

func (c *conn) counter(key string, delta uint64, up bool) (uint64, error) {
	count, found, err := c.store.Counter(key, delta, up, time.Now())
	if err != nil {
		return 0, mferrors.NewWithScheme(Scheme, err)
	}
	if !found {
		return 0, mferrors.NewWithScheme(Scheme, memfront.ErrKeyNotFound)
	}
	return count, nil
}

// Remove implements driver.Conn.
func (c *conn) Remove(_ context.Context, key string) (bool, error) {
	return c.store.Remove(key, time.Now()), nil
}

// Flush implements driver.Conn.
func (c *conn) Flush(_ context.Context) error {
	c.store.Clear()
	return nil
}

// Ping implements driver.Conn.
func (c *conn) Ping(_ context.Context) error {
	return nil
}

// Close implements driver.Conn. It stops the janitor; repeated calls are
// no-ops.
func (c *conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.stopCh)
	})
	return nil
}

// opener implements memfront.URLOpener.
type opener struct{}

// OpenConnURL builds an in-memory connection from a ramcache:// URL.
func (o *opener) OpenConnURL(_ context.Context, u *url.URL, _ *memfront.Options) (driver.Conn, error) {
	options := Options{}
	if err := urlparser.New().OptionsFromURL(u, &options, nil); err != nil {
		return nil, err
	}
	return New(options), nil
}
