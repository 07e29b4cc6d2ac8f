/*
Package memcached provides the primary memfront backend, built on the
memcache client from github.com/dropbox/godropbox. That client owns the
binary/ascii wire protocol, per-server connection pooling and shard
selection; this package only translates between the [driver.Conn] contract
and the client's request/response types.

# URL Format

The URL host is a comma-separated server list; each element is
"host[:port]" with the port defaulting to 11211:

	memcached://10.0.0.1:11211,10.0.0.2

Query parameters configure [Options], matched case-insensitively by field
name:

	memcached://localhost:11211?useascii=true&readtimeout=500ms

# Usage

Example via the generic facade:

	import (
	    "context"
	    "log"

	    "github.com/memfront/memfront"
	    _ "github.com/memfront/memfront/memcached"
	)

	func main() {
	    c, err := memfront.OpenCache(context.Background(), "memcached://localhost:11211", nil)
	    if err != nil {
	        log.Fatalf("Failed to open cache: %v", err)
	    }
	    defer c.Close()
	    // ... use c
	}

Example via the constructors, including wrapping an already-built client:

	conn, err := memcached.NewFromAddrs(nil, memcached.Options{}, "localhost:11211")
	// or
	conn, err := memcached.NewFromClient(myClient)
	c, err := memfront.New(conn, nil)
*/
package memcached

import (
	"context"
	"hash/crc32"
	"net"

	memcache "github.com/dropbox/godropbox/memcache"
	"github.com/dropbox/godropbox/net2"
	multierror "github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/memfront/memfront"
	"github.com/memfront/memfront/internal/mferrors"
	"github.com/memfront/memfront/pkg/driver"
)

// Scheme is the cache URL scheme for this driver.
const Scheme = "memcached"

func init() { //nolint:gochecknoinits // Driver registration.
	memfront.RegisterDriver(Scheme, &opener{})
}

// Passing this expiration to increment/decrement tells the server to fail
// on a missing counter instead of seeding one.
const noAutoCreate = 0xffffffff

// conn adapts a godropbox memcache client to driver.Conn.
type conn struct {
	client memcache.Client
}

var _ driver.Conn = (*conn)(nil)

// New builds a connection to the given endpoints, pooling per the config.
// It fails when the endpoint list is empty.
func New(config *memfront.Config, options Options, endpoints ...memfront.Endpoint) (driver.Conn, error) {
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

	deadTimeout := cfg.DeadTimeout
	connOptions := net2.ConnectionOptions{
		MaxActiveConnections: int32(cfg.MaxConns),
		MaxIdleConnections:   uint32(cfg.MinConns),
		MaxIdleTime:          &deadTimeout,
		Dial: func(network string, address string) (net.Conn, error) {
			return net.DialTimeout(network, address, cfg.ConnectTimeout)
		},
		ReadTimeout:  options.ReadTimeout,
		WriteTimeout: options.WriteTimeout,
	}

	manager := memcache.NewStaticShardManager(addrs, shardByKey, connOptions)
	builder := memcache.NewRawBinaryClient
	if options.UseAscii {
		builder = memcache.NewRawAsciiClient
	}
	return &conn{client: memcache.NewShardedClient(manager, builder)}, nil
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
// the handle is nil. The caller keeps ownership of the client's lifecycle
// decisions; Close on the returned connection is a no-op.
func NewFromClient(client memcache.Client) (driver.Conn, error) {
	if client == nil {
		return nil, mferrors.NewWithScheme(Scheme, errors.New("nil client handle"))
	}
	return &conn{client: client}, nil
}

// shardByKey is the shard function the client's manager asks for. Server
// selection beyond this modulo mapping belongs to the client library.
func shardByKey(key string, numShard int) int {
	if numShard == 0 {
		return -1
	}
	return int(crc32.ChecksumIEEE([]byte(key)) % uint32(numShard))
}

// storeResult translates a mutate response into the facade's boolean
// contract: condition failures (key exists, key missing, not stored, stale
// CAS) are results, everything else is an error.
func storeResult(resp memcache.MutateResponse) (bool, error) {
	switch resp.Status() {
	case memcache.StatusKeyExists, memcache.StatusKeyNotFound, memcache.StatusItemNotStored:
		return false, nil
	}
	if err := resp.Error(); err != nil {
		return false, mferrors.NewWithScheme(Scheme, err)
	}
	return true, nil
}

// Store implements driver.Conn.
func (c *conn) Store(_ context.Context, mode driver.StoreMode, key string, value []byte, exp driver.Expiry, cas uint64) (bool, error) {
	item := &memcache.Item{
		Key:           key,
		Value:         value,
		Expiration:    exp.Unix32(timeNow()),
		DataVersionId: cas,
	}
	var resp memcache.MutateResponse
	switch mode {
	case driver.ModeAdd:
		resp = c.client.Add(item)
	case driver.ModeReplace:
		resp = c.client.Replace(item)
	default:
		resp = c.client.Set(item)
	}
	return storeResult(resp)
}

// Fetch implements driver.Conn.
func (c *conn) Fetch(_ context.Context, key string) (*driver.Item, error) {
	resp := c.client.Get(key)
	if err := resp.Error(); err != nil {
		return nil, mferrors.NewWithScheme(Scheme, err)
	}
	if resp.Status() == memcache.StatusKeyNotFound {
		return nil, mferrors.NewWithScheme(Scheme, memfront.ErrKeyNotFound)
	}
	return &driver.Item{
		Key:   key,
		Value: resp.Value(),
		Flags: resp.Flags(),
		CAS:   resp.DataVersionId(),
	}, nil
}

// FetchMulti implements driver.Conn. Per-key failures are aggregated; keys
// that are merely absent are omitted from the result without error.
func (c *conn) FetchMulti(_ context.Context, keys []string) (map[string]*driver.Item, error) {
	responses := c.client.GetMulti(keys)
	items := make(map[string]*driver.Item, len(responses))
	var errs *multierror.Error
	for key, resp := range responses {
		if err := resp.Error(); err != nil {
			errs = multierror.Append(errs, errors.Wrap(err, key))
			continue
		}
		if resp.Status() == memcache.StatusKeyNotFound {
			continue
		}
		items[key] = &driver.Item{
			Key:   key,
			Value: resp.Value(),
			Flags: resp.Flags(),
			CAS:   resp.DataVersionId(),
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, mferrors.NewWithScheme(Scheme, err)
	}
	return items, nil
}

// Append implements driver.Conn.
func (c *conn) Append(_ context.Context, key string, value []byte) (bool, error) {
	return storeResult(c.client.Append(key, value))
}

// Prepend implements driver.Conn.
func (c *conn) Prepend(_ context.Context, key string, value []byte) (bool, error) {
	return storeResult(c.client.Prepend(key, value))
}

func (c *conn) countResult(resp memcache.CountResponse) (uint64, error) {
	if resp.Status() == memcache.StatusKeyNotFound {
		return 0, mferrors.NewWithScheme(Scheme, memfront.ErrKeyNotFound)
	}
	if err := resp.Error(); err != nil {
		return 0, mferrors.NewWithScheme(Scheme, err)
	}
	return resp.Count(), nil
}

// Increment implements driver.Conn.
func (c *conn) Increment(_ context.Context, key string, delta uint64) (uint64, error) {
	return c.countResult(c.client.Increment(key, delta, 0, noAutoCreate))
}

// Decrement implements driver.Conn.
func (c *conn) Decrement(_ context.Context, key string, delta uint64) (uint64, error) {
	return c.countResult(c.client.Decrement(key, delta, 0, noAutoCreate))
}

// Remove implements driver.Conn.
func (c *conn) Remove(_ context.Context, key string) (bool, error) {
	resp := c.client.Delete(key)
	if resp.Status() == memcache.StatusKeyNotFound {
		return false, nil
	}
	if err := resp.Error(); err != nil {
		return false, mferrors.NewWithScheme(Scheme, err)
	}
	return true, nil
}

// Flush implements driver.Conn.
func (c *conn) Flush(_ context.Context) error {
	if err := c.client.Flush(0).Error(); err != nil {
		return mferrors.NewWithScheme(Scheme, err)
	}
	return nil
}

// Ping implements driver.Conn.
func (c *conn) Ping(_ context.Context) error {
	if err := c.client.Version().Error(); err != nil {
		return mferrors.NewWithScheme(Scheme, err)
	}
	return nil
}

// Close implements driver.Conn. The godropbox client recycles connections
// through its shard manager and exposes no terminal shutdown, so Close is
// a no-op.
func (c *conn) Close() error {
	return nil
}
