package memfront

import (
	"context"
	"errors"
	"log"
	"os"

	"github.com/memfront/memfront/internal/logext"
)

// ExecPolicy is the shared failure-interception collaborator. Every facade
// operation (except [Cache.GetMultiCAS]) runs inside Execute, which
// observes any failure raised by the underlying client before it reaches
// the caller and decides whether to suppress or propagate it.
type ExecPolicy interface {
	// Execute runs fn and returns its error, possibly transformed by the
	// policy. op names the facade operation for logging.
	Execute(ctx context.Context, op string, fn func(context.Context) error) error
}

// LogPolicy is the default ExecPolicy: it logs backend failures and either
// propagates them or swallows them, per Suppress. [ErrKeyNotFound] is a
// result, not a failure, and always passes through untouched.
type LogPolicy struct {
	// Logger receives one line per intercepted failure. Nil falls back to
	// the package debug logger.
	Logger *log.Logger
	// Suppress turns intercepted failures into nil errors, hiding backend
	// trouble behind the facade's return-value contract.
	Suppress bool
}

// NewLogPolicy returns a LogPolicy writing to the package debug logger.
func NewLogPolicy(suppress bool) *LogPolicy {
	return &LogPolicy{Logger: logext.NewLogger(os.Stderr), Suppress: suppress}
}

// Execute implements ExecPolicy.
func (p *LogPolicy) Execute(ctx context.Context, op string, fn func(context.Context) error) error {
	err := fn(ctx)
	if err == nil || errors.Is(err, ErrKeyNotFound) {
		return err
	}
	if p.Logger != nil {
		p.Logger.Printf("%s: %v", op, err)
	}
	if p.Suppress {
		return nil
	}
	return err
}
