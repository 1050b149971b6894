// Package source feeds events from streams, files, websockets and stored
// logs to a Handler.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/netra-systems/zen-sub295/internal/events"
)

// Handler receives each decoded event. Returning an error stops the source.
type Handler func(ctx context.Context, event *events.AgentEvent) error

// Options configures how a source decodes records
type Options struct {
	// DefaultRunID is assigned to records without a run ID
	DefaultRunID string

	// OnParseError is called for malformed records. When nil, the first
	// malformed record stops the source with a *events.ParseError.
	OnParseError func(err *events.ParseError)

	// Logger receives diagnostics. Default: slog.Default()
	Logger *slog.Logger
}

// Option modifies Options
type Option func(*Options)

// WithDefaultRunID assigns id to records that carry no run ID
func WithDefaultRunID(id string) Option {
	return func(o *Options) { o.DefaultRunID = id }
}

// WithParseErrorHandler reports malformed records to fn and keeps reading
func WithParseErrorHandler(fn func(err *events.ParseError)) Option {
	return func(o *Options) { o.OnParseError = fn }
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) { o.Logger = logger }
}

func buildOptions(opts []Option) Options {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// handleParseError returns nil when the error was reported to the callback
func (o Options) handleParseError(err error) error {
	var perr *events.ParseError
	if o.OnParseError != nil && errors.As(err, &perr) {
		o.OnParseError(perr)
		return nil
	}
	return err
}

// ReadJSONL decodes newline-delimited records from r until EOF
func ReadJSONL(ctx context.Context, r io.Reader, h Handler, opts ...Option) error {
	o := buildOptions(opts)
	dec := events.NewDecoder(r, o.DefaultRunID)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		event, err := dec.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if err := o.handleParseError(err); err != nil {
				return err
			}
			continue
		}

		if err := h(ctx, event); err != nil {
			return fmt.Errorf("line %d: %w", event.SourceLine, err)
		}
	}
}
