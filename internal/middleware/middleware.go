// Package middleware wraps command handlers with cross-cutting behavior:
// operation ids, timing logs and panic recovery.
package middleware

import (
	"context"
	"fmt"
	"time"

	"sprig/internal/errors"
	"sprig/internal/logging"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Handler runs one command.
type Handler func(ctx context.Context, cmd *cobra.Command, args []string) error

type Middleware func(Handler) Handler

// Chain wraps h so the first middleware is the innermost.
func Chain(h Handler, middlewares ...Middleware) Handler {
	for _, m := range middlewares {
		h = m(h)
	}
	return h
}

// RunE adapts h to a cobra RunE function.
func RunE(h Handler) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		return h(ctx, cmd, args)
	}
}

// OpID tags the context with a fresh operation id.
func OpID(next Handler) Handler {
	return func(ctx context.Context, cmd *cobra.Command, args []string) error {
		return next(logging.ContextWithOpID(ctx, uuid.New().String()), cmd, args)
	}
}

// Logger logs every command with its duration and outcome.
func Logger(logger func() *logging.Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, cmd *cobra.Command, args []string) error {
			start := time.Now()

			err := next(ctx, cmd, args)

			fields := []zap.Field{
				zap.String("command", cmd.Name()),
				zap.Strings("args", args),
				zap.Duration("duration", time.Since(start)),
			}
			l := logger().WithOpID(ctx)
			switch {
			case err == nil:
				l.Info("command completed", fields...)
			case errors.IsUser(err):
				l.Info("command refused", append(fields, zap.String("reason", err.Error()))...)
			default:
				l.Error("command failed", append(fields, zap.Error(err))...)
			}
			return err
		}
	}
}

// Recover turns a panic into an internal error.
func Recover(logger func() *logging.Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, cmd *cobra.Command, args []string) (err error) {
			defer func() {
				if r := recover(); r != nil {
					logger().WithOpID(ctx).Error("panic recovered",
						zap.Any("error", r),
						zap.Stack("stack"),
					)
					err = errors.Internal("unexpected failure", fmt.Errorf("%v", r))
				}
			}()
			return next(ctx, cmd, args)
		}
	}
}
