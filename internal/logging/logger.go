package logging

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ctxKey struct{}

type Logger struct {
	*zap.Logger
}

func NewLogger(level string) (*Logger, error) {
	config := zap.NewProductionConfig()

	// Parse log level
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}
	config.Level = zap.NewAtomicLevelAt(zapLevel)
	config.OutputPaths = []string{"stderr"}
	config.DisableStacktrace = zapLevel > zapcore.DebugLevel

	logger, err := config.Build()
	if err != nil {
		return nil, err
	}

	return &Logger{logger}, nil
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zap.NewNop()}
}

// ContextWithOpID attaches the id of the running command to ctx.
func ContextWithOpID(ctx context.Context, opID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, opID)
}

// OpID returns the operation id stored in ctx, if any.
func OpID(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok
}

func (l *Logger) WithOpID(ctx context.Context) *zap.Logger {
	if opID, ok := OpID(ctx); ok {
		return l.With(zap.String("op_id", opID))
	}
	return l.Logger
}
