package memfront

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/memfront/memfront/internal/mferrors"
	"github.com/memfront/memfront/pkg/driver"
)

// URLOpener builds a backend connection from a URL. Driver packages
// implement it and register themselves with [RegisterDriver].
type URLOpener interface {
	// OpenConnURL opens a backend connection for the given URL and options.
	OpenConnURL(ctx context.Context, u *url.URL, options *Options) (driver.Conn, error)
}

// urlMux is a multiplexer for cache URL schemes.
type urlMux struct {
	mu      sync.RWMutex
	schemes map[string]URLOpener
}

var defaultURLMux = new(urlMux)

// RegisterDriver registers a [URLOpener] for a URL scheme. It panics if the
// scheme is already registered.
func RegisterDriver(scheme string, opener URLOpener) {
	defaultURLMux.mu.Lock()
	defer defaultURLMux.mu.Unlock()
	if defaultURLMux.schemes == nil {
		defaultURLMux.schemes = make(map[string]URLOpener)
	}
	if _, exists := defaultURLMux.schemes[scheme]; exists {
		panic(mferrors.New(errors.New("scheme already registered: " + scheme)))
	}
	defaultURLMux.schemes[scheme] = opener
}

// OpenCache opens a [Cache] for the provided URL string, for example
// "memcached://10.0.0.1:11211,10.0.0.2". It returns an error if the URL
// cannot be parsed or no driver is registered for its scheme. A nil options
// takes all defaults.
func OpenCache(ctx context.Context, urlstr string, options *Options) (*Cache, error) {
	u, err := url.Parse(urlstr)
	if err != nil {
		return nil, mferrors.New(err)
	}
	defaultURLMux.mu.RLock()
	opener, ok := defaultURLMux.schemes[u.Scheme]
	defaultURLMux.mu.RUnlock()
	if !ok {
		return nil, mferrors.New(fmt.Errorf("scheme %q: %w", u.Scheme, ErrNoDriver))
	}
	if options == nil {
		options = &Options{}
	}
	conn, err := opener.OpenConnURL(ctx, u, options)
	if err != nil {
		return nil, err
	}
	return New(conn, options)
}
