package logger

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

// Init 配置全局 zerolog，为当前服务打上 service 标签。
// 各个服务的 main 函数在启动时调用一次。
func Init(serviceName string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zlog.Logger = zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", serviceName).
		Logger()
}

// Ctx 从 context 中取出 logger。如果 context 中存在有效的 trace，
// 会自动附加 trace_id 字段，方便在日志系统中与 Jaeger 关联。
func Ctx(ctx context.Context) *zerolog.Logger {
	l := zlog.Ctx(ctx)
	if l.GetLevel() == zerolog.Disabled {
		l = &zlog.Logger
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		withTrace := l.With().Str("trace_id", sc.TraceID().String()).Logger()
		return &withTrace
	}
	return l
}

// WithContext 将带有附加字段的 logger 存入 context，供下游 handler 使用。
func WithContext(ctx context.Context, l zerolog.Logger) context.Context {
	return l.WithContext(ctx)
}
