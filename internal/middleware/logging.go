package middleware

import (
	"context"
	"errors"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hsn0918/dentalrag/internal/logger"
)

const RequestIDHeader = "X-Request-Id"

type requestIDKey struct{}

// RequestID returns the id assigned to the current request, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// RequestLogger assigns a request id (keeping one sent by the caller),
// echoes it in the response header and logs every call.
func RequestLogger() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			id := req.Header().Get(RequestIDHeader)
			if _, err := uuid.Parse(id); err != nil {
				id = uuid.NewString()
			}
			ctx = context.WithValue(ctx, requestIDKey{}, id)

			start := time.Now()
			resp, err := next(ctx, req)
			fields := []zap.Field{
				zap.String("request_id", id),
				zap.String("procedure", req.Spec().Procedure),
				zap.Duration("duration", time.Since(start)),
			}
			if err != nil {
				var connectErr *connect.Error
				if errors.As(err, &connectErr) {
					connectErr.Meta().Set(RequestIDHeader, id)
					fields = append(fields, zap.String("code", connectErr.Code().String()))
				}
				logger.GetLogger().Warn("RPC 调用失败", append(fields, zap.Error(err))...)
				return nil, err
			}
			resp.Header().Set(RequestIDHeader, id)
			logger.GetLogger().Info("RPC 调用完成", fields...)
			return resp, nil
		}
	}
}
