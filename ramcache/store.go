package ramcache

import (
	"slices"
	"strconv"
	"sync"
	"time"
)

// item is a stored cache entry. A zero expiry means the entry does not
// expire.
type item struct {
	value  []byte
	flags  uint32
	cas    uint64
	expiry time.Time
}

// isExpired reports whether the item is expired at now.
func (i item) isExpired(now time.Time) bool {
	return !i.expiry.IsZero() && now.After(i.expiry)
}

// store is the in-memory item table. A single mutex guards both the table
// and the version counter: conditional stores are read-modify-write and
// must observe a stable version.
type store struct {
	mu      sync.Mutex
	items   map[string]item
	version uint64
}

func newStore() *store {
	return &store{items: make(map[string]item)}
}

// lookup returns the live item for key, dropping it if expired.
// Callers must hold s.mu.
func (s *store) lookup(key string, now time.Time) (item, bool) {
	it, ok := s.items[key]
	if ok && it.isExpired(now) {
		delete(s.items, key)
		return item{}, false
	}
	return it, ok
}

// Fetch returns a copy of the live item for key.
func (s *store) Fetch(key string, now time.Time) (item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookup(key, now)
}

// storeCond enumerates the conditional semantics of Stash.
type storeCond int

const (
	condNone storeCond = iota // unconditional
	condAbsent
	condPresent
)

// Stash writes value under key. With a nonzero cas the write succeeds only
// if the stored entry still carries that version. Condition failures report
// false; a successful write stamps a fresh version.
func (s *store) Stash(cond storeCond, key string, value []byte, flags uint32, expiry time.Time, cas uint64, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.lookup(key, now)
	switch {
	case cas != 0 && (!ok || existing.cas != cas):
		return false
	case cond == condAbsent && ok:
		return false
	case cond == condPresent && !ok:
		return false
	}
	s.version++
	s.items[key] = item{value: value, flags: flags, cas: s.version, expiry: expiry}
	return true
}

// Concat appends (or prepends, when front is set) value to an existing
// entry's raw value. It reports false when the key is missing.
func (s *store) Concat(key string, value []byte, front bool, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.lookup(key, now)
	if !ok {
		return false
	}
	var combined []byte
	if front {
		combined = append(append([]byte{}, value...), existing.value...)
	} else {
		combined = append(append([]byte{}, existing.value...), value...)
	}
	s.version++
	existing.value = combined
	existing.cas = s.version
	s.items[key] = existing
	return true
}

// Counter adjusts the ASCII-decimal counter stored under key by delta.
// Decrements floor at zero; increments may wrap, matching memcached.
// It reports found=false when the key is missing and an error when the
// stored value is not a number.
func (s *store) Counter(key string, delta uint64, up bool, now time.Time) (count uint64, found bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.lookup(key, now)
	if !ok {
		return 0, false, nil
	}
	current, err := strconv.ParseUint(string(existing.value), 10, 64)
	if err != nil {
		return 0, true, errNonNumeric
	}
	if up {
		count = current + delta
	} else if current < delta {
		count = 0
	} else {
		count = current - delta
	}
	s.version++
	existing.value = []byte(strconv.FormatUint(count, 10))
	existing.cas = s.version
	s.items[key] = existing
	return count, true, nil
}

// Remove deletes key, reporting whether a live entry existed.
func (s *store) Remove(key string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.lookup(key, now)
	delete(s.items, key)
	return ok
}

// Clear drops every entry.
func (s *store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]item)
}

// keyItem pairs a key with its item for expiry scans.
type keyItem struct {
	key  string
	item item
}

// ExpiringSorted returns entries that carry an expiry, soonest first.
func (s *store) ExpiringSorted() []keyItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]keyItem, 0, len(s.items))
	for key, it := range s.items {
		if it.expiry.IsZero() {
			continue
		}
		items = append(items, keyItem{key: key, item: it})
	}
	slices.SortFunc(items, func(a, b keyItem) int {
		return a.item.expiry.Compare(b.item.expiry)
	})
	return items
}

// DeleteExpired removes entries whose expiry has passed.
func (s *store) DeleteExpired(now time.Time) {
	for _, ki := range s.ExpiringSorted() {
		if !ki.item.isExpired(now) {
			// Sorted by expiry, nothing further can be expired.
			break
		}
		s.mu.Lock()
		delete(s.items, ki.key)
		s.mu.Unlock()
	}
}
