package memcached

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/memfront/memfront"
	"github.com/memfront/memfront/internal/urlparser"
	"github.com/memfront/memfront/pkg/driver"
)

// Options is the driver-specific configuration for the memcached backend.
type Options struct {
	// UseAscii switches the underlying client to the ascii wire protocol.
	// The default is the binary protocol.
	UseAscii bool
	// ReadTimeout bounds each socket read. Zero means no timeout.
	ReadTimeout time.Duration
	// WriteTimeout bounds each socket write. Zero means no timeout.
	WriteTimeout time.Duration
}

// timeNow is swappable for tests.
var timeNow = time.Now

// opener implements memfront.URLOpener.
type opener struct{}

// OpenConnURL builds a connection from a memcached:// URL. The URL host is
// a comma-separated server list; query parameters decode into [Options],
// overridden by any matching keys in the facade options' ExtraParams.
func (o *opener) OpenConnURL(_ context.Context, u *url.URL, options *memfront.Options) (driver.Conn, error) {
	driverOpts := Options{}
	if err := urlparser.New().OptionsFromURL(u, &driverOpts, nil); err != nil {
		return nil, err
	}
	if len(options.ExtraParams) > 0 {
		merged := *u
		q := merged.Query()
		for key, value := range options.ExtraParams {
			q.Set(strings.ToLower(key), value)
		}
		merged.RawQuery = q.Encode()
		if err := urlparser.New().OptionsFromURL(&merged, &driverOpts, nil); err != nil {
			return nil, err
		}
	}
	return NewFromAddrs(&options.Config, driverOpts, strings.Split(u.Host, ",")...)
}
