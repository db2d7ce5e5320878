package simulation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roman-kulish/cloud-readers/internal/channel"
)

// Fallback bounds a primary engine with a timeout and substitutes the
// fallback engine when the primary times out or fails. Cancellation of the
// caller's context is returned as is and never triggers the fallback.
type Fallback struct {
	primary  Simulator
	fallback Simulator
	timeout  time.Duration
	logger   *slog.Logger
}

// WithFallback wraps primary. A timeout of zero or less is replaced by
// DefaultTimeout, so the primary always runs under a deadline.
func WithFallback(primary, fallback Simulator, timeout time.Duration, opts ...Option) *Fallback {
	o := buildOptions(opts)
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Fallback{
		primary:  primary,
		fallback: fallback,
		timeout:  timeout,
		logger:   o.logger,
	}
}

func (f *Fallback) Generate(ctx context.Context, touch *channel.Channel, profile Profile, rate float64) ([]*channel.Channel, error) {
	pctx, cancel := context.WithTimeout(ctx, f.timeout)
	out, err := f.primary.Generate(pctx, touch, profile, rate)
	timedOut := errors.Is(pctx.Err(), context.DeadlineExceeded)
	cancel()

	if err == nil {
		return out, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if timedOut {
		err = fmt.Errorf("%w after %s: %w", ErrTimeout, f.timeout, err)
	}

	f.logger.Warn("primary simulation failed, using fallback engine", slog.Any("error", err))
	return f.fallback.Generate(ctx, touch, profile, rate)
}
