/*
Package gomem provides a memfront backend built on
github.com/bradfitz/gomemcache. It covers the full facade contract except
explicit CAS tokens: gomemcache keeps the version token unexported inside
its Item, so token-bearing stores report [memfront.ErrCASNotSupported] and
fetched items carry a zero token. Use the memcached driver when CAS
matters.

# URL Format

	gomem://host1:11211,host2

Query parameters decode into [Options] by case-insensitive field name.
*/
package gomem

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/pkg/errors"

	"github.com/memfront/memfront"
	"github.com/memfront/memfront/internal/mferrors"
	"github.com/memfront/memfront/internal/urlparser"
	"github.com/memfront/memfront/pkg/driver"
)

// Scheme is the cache URL scheme for this driver.
const Scheme = "gomem"

func init() { //nolint:gochecknoinits // Driver registration.
	memfront.RegisterDriver(Scheme, &opener{})
}

// Options is the driver-specific configuration for the gomem backend.
// The underlying client exposes no further pool knobs; MinConns and
// DeadTimeout from the facade config have no equivalent and are ignored.
type Options struct{}

// timeNow is swappable for tests.
var timeNow = time.Now

type conn struct {
	client *memcache.Client
}

var _ driver.Conn = (*conn)(nil)

// New builds a connection to the given endpoints.
func New(config *memfront.Config, _ Options, endpoints ...memfront.Endpoint) (driver.Conn, error) {
	if len(endpoints) == 0 {
		return nil, mferrors.NewWithScheme(Scheme, errors.New("no endpoints provided"))
	}
	if config == nil {
		config = &memfront.Config{}
	}
	cfg := *config
	cfg.Revise()

	addrs := make([]string, len(endpoints))
	for i, e := range endpoints {
		addrs[i] = e.Addr()
	}
	client := memcache.New(addrs...)
	client.Timeout = cfg.ConnectTimeout
	client.MaxIdleConns = cfg.MaxConns
	return &conn{client: client}, nil
}

// NewFromAddrs builds a connection from "host[:port]" strings.
func NewFromAddrs(config *memfront.Config, options Options, addrs ...string) (driver.Conn, error) {
	endpoints, err := memfront.ParseEndpoints(addrs)
	if err != nil {
		return nil, err
	}
	return New(config, options, endpoints...)
}

// NewFromClient wraps an already-constructed client handle. It fails when
// the handle is nil.
func NewFromClient(client *memcache.Client) (driver.Conn, error) {
	if client == nil {
		return nil, mferrors.NewWithScheme(Scheme, errors.New("nil client handle"))
	}
	return &conn{client: client}, nil
}

// storeResult translates gomemcache's sentinel errors into the facade's
// boolean contract.
func storeResult(err error) (bool, error) {
	switch err {
	case nil:
		return true, nil
	case memcache.ErrNotStored, memcache.ErrCacheMiss:
		return false, nil
	default:
		return false, mferrors.NewWithScheme(Scheme, err)
	}
}

// Store implements driver.Conn.
func (c *conn) Store(_ context.Context, mode driver.StoreMode, key string, value []byte, exp driver.Expiry, cas uint64) (bool, error) {
	if cas != 0 {
		return false, mferrors.NewWithScheme(Scheme, memfront.ErrCASNotSupported)
	}
	item := &memcache.Item{
		Key:        key,
		Value:      value,
		Expiration: int32(exp.Unix32(timeNow())),
	}
	switch mode {
	case driver.ModeAdd:
		return storeResult(c.client.Add(item))
	case driver.ModeReplace:
		return storeResult(c.client.Replace(item))
	default:
		return storeResult(c.client.Set(item))
	}
}

// Fetch implements driver.Conn. The returned item's CAS token is always
// zero; see the package documentation.
func (c *conn) Fetch(_ context.Context, key string) (*driver.Item, error) {
	item, err := c.client.Get(key)
	if err == memcache.ErrCacheMiss {
		return nil, mferrors.NewWithScheme(Scheme, memfront.ErrKeyNotFound)
	}
	if err != nil {
		return nil, mferrors.NewWithScheme(Scheme, err)
	}
	return &driver.Item{Key: key, Value: item.Value, Flags: item.Flags}, nil
}

// FetchMulti implements driver.Conn.
func (c *conn) FetchMulti(_ context.Context, keys []string) (map[string]*driver.Item, error) {
	found, err := c.client.GetMulti(keys)
	if err != nil {
		return nil, mferrors.NewWithScheme(Scheme, err)
	}
	items := make(map[string]*driver.Item, len(found))
	for key, item := range found {
		items[key] = &driver.Item{Key: key, Value: item.Value, Flags: item.Flags}
	}
	return items, nil
}

// Append implements driver.Conn.
func (c *conn) Append(_ context.Context, key string, value []byte) (bool, error) {
	return storeResult(c.client.Append(&memcache.Item{Key: key, Value: value}))
}

// Prepend implements driver.Conn.
func (c *conn) Prepend(_ context.Context, key string, value []byte) (bool, error) {
	return storeResult(c.client.Prepend(&memcache.Item{Key: key, Value: value}))
}

// Increment implements driver.Conn.
func (c *conn) Increment(_ context.Context, key string, delta uint64) (uint64, error) {
	count, err := c.client.Increment(key, delta)
	return c.countResult(count, err)
}

// Decrement implements driver.Conn.
func (c *conn) Decrement(_ context.Context, key string, delta uint64) (uint64, error) {
	count, err := c.client.Decrement(key, delta)
	return c.countResult(count, err)
}

func (c *conn) countResult(count uint64, err error) (uint64, error) {
	if err == memcache.ErrCacheMiss {
		return 0, mferrors.NewWithScheme(Scheme, memfront.ErrKeyNotFound)
	}
	if err != nil {
		return 0, mferrors.NewWithScheme(Scheme, err)
	}
	return count, nil
}

// Remove implements driver.Conn.
func (c *conn) Remove(_ context.Context, key string) (bool, error) {
	err := c.client.Delete(key)
	if err == memcache.ErrCacheMiss {
		return false, nil
	}
	if err != nil {
		return false, mferrors.NewWithScheme(Scheme, err)
	}
	return true, nil
}

// Flush implements driver.Conn.
func (c *conn) Flush(_ context.Context) error {
	if err := c.client.FlushAll(); err != nil {
		return mferrors.NewWithScheme(Scheme, err)
	}
	return nil
}

// Ping implements driver.Conn.
func (c *conn) Ping(_ context.Context) error {
	if err := c.client.Ping(); err != nil {
		return mferrors.NewWithScheme(Scheme, err)
	}
	return nil
}

// Close implements driver.Conn.
func (c *conn) Close() error {
	return c.client.Close()
}

// opener implements memfront.URLOpener.
type opener struct{}

// OpenConnURL builds a connection from a gomem:// URL.
func (o *opener) OpenConnURL(_ context.Context, u *url.URL, options *memfront.Options) (driver.Conn, error) {
	driverOpts := Options{}
	if err := urlparser.New().OptionsFromURL(u, &driverOpts, nil); err != nil {
		return nil, err
	}
	return NewFromAddrs(&options.Config, driverOpts, strings.Split(u.Host, ",")...)
}
