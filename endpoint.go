package memfront

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/memfront/memfront/internal/mferrors"
)

// DefaultPort is the port assumed when a server string carries none.
const DefaultPort = 11211

// Endpoint identifies one backend cache server instance.
type Endpoint struct {
	Host string
	Port int
}

// Addr returns the endpoint in "host:port" form suitable for dialing.
func (e Endpoint) Addr() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// String implements fmt.Stringer.
func (e Endpoint) String() string { return e.Addr() }

// ParseEndpoint parses a "host" or "host:port" string. The host may be an
// IP literal or a hostname; the port defaults to [DefaultPort] when
// omitted. An empty host, more than one colon, or a port outside 1-65535
// is an error.
func ParseEndpoint(s string) (Endpoint, error) {
	if s == "" {
		return Endpoint{}, mferrors.New(fmt.Errorf("empty endpoint"))
	}
	host, portStr, found := strings.Cut(s, ":")
	if host == "" {
		return Endpoint{}, mferrors.New(fmt.Errorf("endpoint %q: missing host", s))
	}
	if !found {
		return Endpoint{Host: host, Port: DefaultPort}, nil
	}
	if strings.Contains(portStr, ":") {
		return Endpoint{}, mferrors.New(fmt.Errorf("endpoint %q: too many colons", s))
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Endpoint{}, mferrors.New(fmt.Errorf("endpoint %q: invalid port %q", s, portStr))
	}
	if port < 1 || port > 65535 {
		return Endpoint{}, mferrors.New(fmt.Errorf("endpoint %q: port %d out of range", s, port))
	}
	return Endpoint{Host: host, Port: port}, nil
}

// ParseEndpoints parses a list of "host[:port]" strings. An empty list or
// any malformed element fails the whole parse.
func ParseEndpoints(servers []string) ([]Endpoint, error) {
	if len(servers) == 0 {
		return nil, mferrors.New(fmt.Errorf("no endpoints provided"))
	}
	endpoints := make([]Endpoint, len(servers))
	for i, s := range servers {
		e, err := ParseEndpoint(s)
		if err != nil {
			return nil, err
		}
		endpoints[i] = e
	}
	return endpoints, nil
}

// Pool configuration defaults handed to drivers that build their own
// client. The dead timeout is how long the underlying client keeps an
// unreachable server out of rotation; it is enforced there, not here.
const (
	DefaultMinConns       = 10
	DefaultMaxConns       = 100
	DefaultConnectTimeout = 10 * time.Second
	DefaultDeadTimeout    = 2 * time.Minute
)

// Config holds the connection-pool configuration passed opaquely into the
// underlying client's pool subsystem, whose internal behavior is out of
// this package's scope.
type Config struct {
	// MinConns is the number of idle connections the pool keeps alive
	// per server.
	MinConns int
	// MaxConns is the maximum number of connections per server.
	MaxConns int
	// ConnectTimeout bounds establishing a new connection.
	ConnectTimeout time.Duration
	// DeadTimeout is how long a backend server stays marked unreachable
	// before it is retried.
	DeadTimeout time.Duration
}

// Revise fills in defaults for unset fields.
func (c *Config) Revise() {
	if c.MinConns <= 0 {
		c.MinConns = DefaultMinConns
	}
	if c.MaxConns <= 0 {
		c.MaxConns = DefaultMaxConns
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.DeadTimeout <= 0 {
		c.DeadTimeout = DefaultDeadTimeout
	}
}
