// Package driver defines the contract between the memfront facade and the
// backend cache clients it delegates to. A driver adapts one concrete client
// library (a memcached client, an in-memory store, ...) to the Conn
// interface; the facade owns no protocol, pooling or retry logic of its own.
package driver

import (
	"context"
	"time"
)

// StoreMode selects the conditional semantics of a Store call.
type StoreMode int

const (
	// ModeSet stores unconditionally.
	ModeSet StoreMode = iota
	// ModeAdd stores only if the key is absent.
	ModeAdd
	// ModeReplace stores only if the key is present.
	ModeReplace
)

// String implements fmt.Stringer.
func (m StoreMode) String() string {
	switch m {
	case ModeSet:
		return "set"
	case ModeAdd:
		return "add"
	case ModeReplace:
		return "replace"
	default:
		return "unknown"
	}
}

// Item is a cache entry as seen at the facade boundary. The value is an
// opaque byte sequence; the facade never interprets it.
type Item struct {
	Key   string
	Value []byte
	// Flags are server-opaque application flags.
	Flags uint32
	// CAS is the entry's version token. Zero means the backend did not
	// report one.
	CAS uint64
}

// Conn is the capability a backend client must provide. Implementations
// forward each call to the underlying client library and translate its
// result conventions:
//
//   - Conditional stores that fail their condition (add on an existing key,
//     replace on a missing key, a stale CAS token) report (false, nil), not
//     an error.
//   - A fetch miss reports the facade's key-not-found sentinel.
//   - Everything else the client raises passes through as an error.
//
// Thread safety is whatever the wrapped client guarantees; Conn adds no
// locking of its own.
type Conn interface {
	// Store writes value under key according to mode. A nonzero cas makes
	// the write conditional on the stored entry carrying the same token.
	Store(ctx context.Context, mode StoreMode, key string, value []byte, exp Expiry, cas uint64) (bool, error)

	// Fetch retrieves a single entry. The returned item carries the
	// backend's CAS token where the client exposes one.
	Fetch(ctx context.Context, key string) (*Item, error)

	// FetchMulti retrieves a batch of entries. Keys that are not found are
	// simply absent from the result.
	FetchMulti(ctx context.Context, keys []string) (map[string]*Item, error)

	// Append concatenates value to the end of an existing entry's raw value.
	Append(ctx context.Context, key string, value []byte) (bool, error)

	// Prepend concatenates value to the front of an existing entry's raw value.
	Prepend(ctx context.Context, key string, value []byte) (bool, error)

	// Increment adds delta to the key's counter and returns the result.
	// The counter must already exist.
	Increment(ctx context.Context, key string, delta uint64) (uint64, error)

	// Decrement subtracts delta from the key's counter and returns the
	// result. Memcached counters never go negative; the floor is zero.
	Decrement(ctx context.Context, key string, delta uint64) (uint64, error)

	// Remove deletes a key. It reports whether the key existed.
	Remove(ctx context.Context, key string) (bool, error)

	// Flush clears the entire cache. There are no partial semantics.
	Flush(ctx context.Context) error

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the underlying client's resources. It must be safe to
	// call more than once.
	Close() error
}

// Expiry is an optional expiration for a stored entry: either a duration
// relative to now or an absolute point in time. The zero Expiry means the
// entry does not expire.
type Expiry struct {
	ttl time.Duration
	at  time.Time
}

// Memcached's wire convention: expirations up to 30 days are relative
// seconds, anything larger is a Unix epoch timestamp.
const maxRelativeExpiry = 30 * 24 * time.Hour

// TTL returns an Expiry relative to the time of the store.
func TTL(d time.Duration) Expiry {
	return Expiry{ttl: d}
}

// At returns an Expiry at an absolute point in time.
func At(t time.Time) Expiry {
	return Expiry{at: t}
}

// IsZero reports whether no expiration was requested.
func (e Expiry) IsZero() bool {
	return e.ttl == 0 && e.at.IsZero()
}

// Valid reports whether the expiry is usable: a negative duration or an
// absolute time in the past is not.
func (e Expiry) Valid(now time.Time) bool {
	if e.ttl < 0 {
		return false
	}
	if !e.at.IsZero() && e.at.Before(now) {
		return false
	}
	return true
}

// Time resolves the expiry to an absolute time. It returns the zero time
// when no expiration was requested.
func (e Expiry) Time(now time.Time) time.Time {
	if !e.at.IsZero() {
		return e.at
	}
	if e.ttl > 0 {
		return now.Add(e.ttl)
	}
	return time.Time{}
}

// Unix32 encodes the expiry in the memcached wire convention: zero for no
// expiration, relative seconds when the duration fits in 30 days, otherwise
// a Unix epoch timestamp. Sub-second durations round up so a short TTL is
// never silently dropped.
func (e Expiry) Unix32(now time.Time) uint32 {
	switch {
	case e.IsZero():
		return 0
	case !e.at.IsZero():
		return uint32(e.at.Unix())
	case e.ttl <= maxRelativeExpiry:
		secs := int64(e.ttl / time.Second)
		if e.ttl%time.Second != 0 {
			secs++
		}
		return uint32(secs)
	default:
		return uint32(now.Add(e.ttl).Unix())
	}
}
