package observability

import (
	"context"
	"log/slog"
	"os"
)

// GlobalLogger is the logger used by repository and async-operation logging.
// Replace it with SetLogger to share the request-aware application logger.
var GlobalLogger *slog.Logger

// RepoLoggingEnabled toggles per-operation repository logging.
var RepoLoggingEnabled = true

func init() {
	GlobalLogger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// SetLogger swaps the logger used by this package. A nil logger is ignored.
func SetLogger(l *slog.Logger) {
	if l != nil {
		GlobalLogger = l
	}
}

// RepoLogger provides structured logging for repository operations.
type RepoLogger struct {
	table string
}

// NewRepoLogger creates a new RepoLogger for the given table.
func NewRepoLogger(table string) *RepoLogger {
	return &RepoLogger{table: table}
}

func (l *RepoLogger) log(ctx context.Context, op string, attrs []slog.Attr) {
	if !RepoLoggingEnabled {
		return
	}
	args := make([]any, 0, len(attrs)+2)
	args = append(args, slog.String("table", l.table), slog.String("operation", op))
	for _, a := range attrs {
		args = append(args, a)
	}
	GlobalLogger.DebugContext(ctx, "repository "+op, args...)
}

// LogCreate logs a repository create operation.
func (l *RepoLogger) LogCreate(ctx context.Context, attrs ...slog.Attr) {
	l.log(ctx, "create", attrs)
}

// LogRead logs a repository read operation.
func (l *RepoLogger) LogRead(ctx context.Context, attrs ...slog.Attr) {
	l.log(ctx, "read", attrs)
}

// LogUpdate logs a repository update operation.
func (l *RepoLogger) LogUpdate(ctx context.Context, attrs ...slog.Attr) {
	l.log(ctx, "update", attrs)
}

// LogDelete logs a repository delete operation.
func (l *RepoLogger) LogDelete(ctx context.Context, attrs ...slog.Attr) {
	l.log(ctx, "delete", attrs)
}

// LogError logs a repository error. Errors are always logged.
func (l *RepoLogger) LogError(ctx context.Context, err error, operation string) {
	GlobalLogger.ErrorContext(ctx, "repository error",
		slog.String("table", l.table),
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}

// LogReadFailure reports a fail-soft read: logged, counted, never surfaced.
func LogReadFailure(ctx context.Context, resource string, err error) {
	RemoteReadFailures.WithLabelValues(resource).Inc()
	RecordErrorInContext(ctx, err)
	GlobalLogger.ErrorContext(ctx, "directory read failed",
		slog.String("resource", resource),
		slog.String("error", err.Error()),
	)
}

// LogWriteFailure reports a rejected mutation with the store's error code.
func LogWriteFailure(ctx context.Context, operation, code string, err error) {
	if code == "" {
		code = "unknown"
	}
	RemoteWriteFailures.WithLabelValues(operation, code).Inc()
	RecordErrorInContext(ctx, err)
	GlobalLogger.WarnContext(ctx, "directory write rejected",
		slog.String("operation", operation),
		slog.String("code", code),
		slog.String("error", err.Error()),
	)
}
