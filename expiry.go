package memfront

import (
	"time"

	"github.com/memfront/memfront/pkg/driver"
)

// Expiry is an optional expiration for a stored entry; see [driver.Expiry].
type Expiry = driver.Expiry

// NoExpiry is the zero Expiry: the entry does not expire.
var NoExpiry Expiry

// TTL returns an Expiry relative to the time of the store.
func TTL(d time.Duration) Expiry { return driver.TTL(d) }

// ExpireAt returns an Expiry at an absolute point in time.
func ExpireAt(t time.Time) Expiry { return driver.At(t) }

// now is swappable for tests.
var now = time.Now
