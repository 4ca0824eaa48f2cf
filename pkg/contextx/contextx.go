// Package contextx 提供在 context 中传递事务句柄、调用方身份与追踪信息的辅助函数
package contextx

import "context"

type contextKey string

const (
	txKey        contextKey = "tx"
	callerKey    contextKey = "caller"
	traceIDKey   contextKey = "trace_id"
	spanIDKey    contextKey = "span_id"
	requestIDKey contextKey = "request_id"
)

// WithTx 将事务句柄放入 context
func WithTx(ctx context.Context, tx any) context.Context {
	return context.WithValue(ctx, txKey, tx)
}

// GetTx 取出事务句柄，不存在时返回 nil
func GetTx(ctx context.Context) any {
	if ctx == nil {
		return nil
	}
	return ctx.Value(txKey)
}

// WithCaller 记录发起调用的账户
func WithCaller(ctx context.Context, account string) context.Context {
	return context.WithValue(ctx, callerKey, account)
}

// Caller 返回发起调用的账户
func Caller(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(callerKey).(string)
	return v
}

// WithTrace 写入 trace_id / span_id / request_id
func WithTrace(ctx context.Context, traceID, spanID, requestID string) context.Context {
	ctx = context.WithValue(ctx, traceIDKey, traceID)
	ctx = context.WithValue(ctx, spanIDKey, spanID)
	return context.WithValue(ctx, requestIDKey, requestID)
}

// TraceID 返回 trace_id
func TraceID(ctx context.Context) string {
	return stringValue(ctx, traceIDKey)
}

// SpanID 返回 span_id
func SpanID(ctx context.Context) string {
	return stringValue(ctx, spanIDKey)
}

// RequestID 返回 request_id
func RequestID(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

func stringValue(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}
