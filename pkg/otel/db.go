package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DBSpan 为数据库操作创建 span
func DBSpan(ctx context.Context, system, operation, statement string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "db."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", system),
			attribute.String("db.operation", operation),
			attribute.String("db.statement", statement),
		),
	)
}

// TraceDB 包装一次数据库调用，自动记录 span 状态
func TraceDB(ctx context.Context, system, operation, statement string, fn func(context.Context) error) error {
	ctx, span := DBSpan(ctx, system, operation, statement)
	err := fn(ctx)
	EndSpan(span, err)
	return err
}
