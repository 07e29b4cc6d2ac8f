package memcached

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	memcache "github.com/dropbox/godropbox/memcache"
)

// fakeResponse is a single implementation backing every response interface
// of the godropbox client, mirroring how the library itself does it.
type fakeResponse struct {
	status        memcache.ResponseStatus
	err           error
	allowNotFound bool

	key     string
	value   []byte
	flags   uint32
	version uint64
	count   uint64
}

func (r *fakeResponse) Status() memcache.ResponseStatus { return r.status }

func (r *fakeResponse) Error() error {
	if r.err != nil {
		return r.err
	}
	if r.status == memcache.StatusNoError {
		return nil
	}
	if r.allowNotFound && r.status == memcache.StatusKeyNotFound {
		return nil
	}
	return fmt.Errorf("status %d", int(r.status))
}

func (r *fakeResponse) Key() string                           { return r.key }
func (r *fakeResponse) Value() []byte                         { return r.value }
func (r *fakeResponse) Flags() uint32                         { return r.flags }
func (r *fakeResponse) DataVersionId() uint64                 { return r.version }
func (r *fakeResponse) Count() uint64                         { return r.count }
func (r *fakeResponse) Versions() map[int]string              { return map[int]string{0: "fake"} }
func (r *fakeResponse) Entries() map[int]map[string]string    { return nil }

type fakeEntry struct {
	value    []byte
	flags    uint32
	version  uint64
	deadline time.Time
}

// fakeClient is an in-memory memcache.Client with full store-mode, CAS,
// concat, counter and expiry semantics, used to test the driver without a
// server. Setting failAll makes every response carry that error, for
// exercising the driver's failure paths.
type fakeClient struct {
	mu      sync.Mutex
	data    map[string]*fakeEntry
	version uint64
	failAll error
}

var _ memcache.Client = (*fakeClient)(nil)

func newFakeClient() *fakeClient {
	return &fakeClient{data: make(map[string]*fakeEntry)}
}

// lookup drops expired entries. Callers must hold c.mu.
func (c *fakeClient) lookup(key string) (*fakeEntry, bool) {
	e, ok := c.data[key]
	if ok && !e.deadline.IsZero() && time.Now().After(e.deadline) {
		delete(c.data, key)
		return nil, false
	}
	return e, ok
}

func deadlineFor(expiration uint32) time.Time {
	if expiration == 0 {
		return time.Time{}
	}
	return time.Now().Add(time.Duration(expiration) * time.Second)
}

func (c *fakeClient) Get(key string) memcache.GetResponse {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getLocked(key)
}

func (c *fakeClient) getLocked(key string) memcache.GetResponse {
	if c.failAll != nil {
		return &fakeResponse{key: key, err: c.failAll, allowNotFound: true}
	}
	e, ok := c.lookup(key)
	if !ok {
		return &fakeResponse{key: key, status: memcache.StatusKeyNotFound, allowNotFound: true}
	}
	return &fakeResponse{
		key:           key,
		status:        memcache.StatusNoError,
		allowNotFound: true,
		value:         e.value,
		flags:         e.flags,
		version:       e.version,
	}
}

func (c *fakeClient) GetMulti(keys []string) map[string]memcache.GetResponse {
	c.mu.Lock()
	defer c.mu.Unlock()
	res := make(map[string]memcache.GetResponse, len(keys))
	for _, key := range keys {
		res[key] = c.getLocked(key)
	}
	return res
}

func (c *fakeClient) GetSentinels(keys []string) map[string]memcache.GetResponse {
	return c.GetMulti(keys)
}

func (c *fakeClient) setLocked(item *memcache.Item) memcache.MutateResponse {
	if c.failAll != nil {
		return &fakeResponse{key: item.Key, err: c.failAll}
	}
	existing, ok := c.lookup(item.Key)
	if item.DataVersionId != 0 {
		if !ok {
			return &fakeResponse{key: item.Key, status: memcache.StatusKeyNotFound}
		}
		if existing.version != item.DataVersionId {
			return &fakeResponse{key: item.Key, status: memcache.StatusKeyExists}
		}
	}
	c.version++
	c.data[item.Key] = &fakeEntry{
		value:    item.Value,
		flags:    item.Flags,
		version:  c.version,
		deadline: deadlineFor(item.Expiration),
	}
	return &fakeResponse{key: item.Key, status: memcache.StatusNoError, version: c.version}
}

func (c *fakeClient) Set(item *memcache.Item) memcache.MutateResponse {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setLocked(item)
}

func (c *fakeClient) SetMulti(items []*memcache.Item) []memcache.MutateResponse {
	c.mu.Lock()
	defer c.mu.Unlock()
	res := make([]memcache.MutateResponse, len(items))
	for i, item := range items {
		res[i] = c.setLocked(item)
	}
	return res
}

func (c *fakeClient) SetSentinels(items []*memcache.Item) []memcache.MutateResponse {
	return c.SetMulti(items)
}

func (c *fakeClient) CasMulti(items []*memcache.Item) []memcache.MutateResponse {
	c.mu.Lock()
	defer c.mu.Unlock()
	res := make([]memcache.MutateResponse, len(items))
	for i, item := range items {
		if item.DataVersionId == 0 {
			res[i] = c.addLocked(item)
		} else {
			res[i] = c.setLocked(item)
		}
	}
	return res
}

func (c *fakeClient) CasSentinels(items []*memcache.Item) []memcache.MutateResponse {
	return c.CasMulti(items)
}

func (c *fakeClient) Add(item *memcache.Item) memcache.MutateResponse {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addLocked(item)
}

func (c *fakeClient) addLocked(item *memcache.Item) memcache.MutateResponse {
	if c.failAll != nil {
		return &fakeResponse{key: item.Key, err: c.failAll}
	}
	if _, ok := c.lookup(item.Key); ok {
		return &fakeResponse{key: item.Key, status: memcache.StatusKeyExists}
	}
	item2 := *item
	item2.DataVersionId = 0
	return c.setLocked(&item2)
}

func (c *fakeClient) AddMulti(items []*memcache.Item) []memcache.MutateResponse {
	c.mu.Lock()
	defer c.mu.Unlock()
	res := make([]memcache.MutateResponse, len(items))
	for i, item := range items {
		res[i] = c.addLocked(item)
	}
	return res
}

func (c *fakeClient) Replace(item *memcache.Item) memcache.MutateResponse {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAll != nil {
		return &fakeResponse{key: item.Key, err: c.failAll}
	}
	if _, ok := c.lookup(item.Key); !ok {
		return &fakeResponse{key: item.Key, status: memcache.StatusKeyNotFound}
	}
	item2 := *item
	item2.DataVersionId = 0
	return c.setLocked(&item2)
}

func (c *fakeClient) Delete(key string) memcache.MutateResponse {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAll != nil {
		return &fakeResponse{key: key, err: c.failAll}
	}
	if _, ok := c.lookup(key); !ok {
		return &fakeResponse{key: key, status: memcache.StatusKeyNotFound}
	}
	delete(c.data, key)
	return &fakeResponse{key: key, status: memcache.StatusNoError}
}

func (c *fakeClient) DeleteMulti(keys []string) []memcache.MutateResponse {
	res := make([]memcache.MutateResponse, len(keys))
	for i, key := range keys {
		res[i] = c.Delete(key)
	}
	return res
}

func (c *fakeClient) concat(key string, value []byte, front bool) memcache.MutateResponse {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAll != nil {
		return &fakeResponse{key: key, err: c.failAll}
	}
	e, ok := c.lookup(key)
	if !ok {
		return &fakeResponse{key: key, status: memcache.StatusItemNotStored}
	}
	if front {
		e.value = append(append([]byte{}, value...), e.value...)
	} else {
		e.value = append(append([]byte{}, e.value...), value...)
	}
	c.version++
	e.version = c.version
	return &fakeResponse{key: key, status: memcache.StatusNoError, version: c.version}
}

func (c *fakeClient) Append(key string, value []byte) memcache.MutateResponse {
	return c.concat(key, value, false)
}

func (c *fakeClient) Prepend(key string, value []byte) memcache.MutateResponse {
	return c.concat(key, value, true)
}

func (c *fakeClient) count(key string, delta uint64, initValue uint64, expiration uint32, up bool) memcache.CountResponse {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAll != nil {
		return &fakeResponse{key: key, err: c.failAll}
	}
	e, ok := c.lookup(key)
	if !ok {
		if expiration == 0xffffffff {
			return &fakeResponse{key: key, status: memcache.StatusKeyNotFound}
		}
		c.version++
		c.data[key] = &fakeEntry{
			value:    []byte(strconv.FormatUint(initValue, 10)),
			version:  c.version,
			deadline: deadlineFor(expiration),
		}
		return &fakeResponse{key: key, status: memcache.StatusNoError, count: initValue}
	}
	current, err := strconv.ParseUint(string(e.value), 10, 64)
	if err != nil {
		return &fakeResponse{key: key, status: memcache.StatusIncrDecrOnNonNumericValue}
	}
	var next uint64
	if up {
		next = current + delta
	} else if current < delta {
		next = 0
	} else {
		next = current - delta
	}
	c.version++
	e.value = []byte(strconv.FormatUint(next, 10))
	e.version = c.version
	return &fakeResponse{key: key, status: memcache.StatusNoError, count: next}
}

func (c *fakeClient) Increment(key string, delta uint64, initValue uint64, expiration uint32) memcache.CountResponse {
	return c.count(key, delta, initValue, expiration, true)
}

func (c *fakeClient) Decrement(key string, delta uint64, initValue uint64, expiration uint32) memcache.CountResponse {
	return c.count(key, delta, initValue, expiration, false)
}

func (c *fakeClient) Flush(expiration uint32) memcache.Response {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAll != nil {
		return &fakeResponse{err: c.failAll}
	}
	c.data = make(map[string]*fakeEntry)
	return &fakeResponse{status: memcache.StatusNoError}
}

func (c *fakeClient) Stat(statsKey string) memcache.StatResponse {
	return &fakeResponse{status: memcache.StatusNoError}
}

func (c *fakeClient) Version() memcache.VersionResponse {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAll != nil {
		return &fakeResponse{err: c.failAll}
	}
	return &fakeResponse{status: memcache.StatusNoError}
}

func (c *fakeClient) Verbosity(verbosity uint32) memcache.Response {
	return &fakeResponse{status: memcache.StatusNoError}
}
