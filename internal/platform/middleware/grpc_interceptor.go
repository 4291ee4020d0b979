package middleware

import (
	"context"
	"time"

	"chat-relay/internal/platform/logger"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// GRPCUnaryInterceptor gRPC 一元 RPC 攔截器：帶入 trace ID、記錄耗時並把 panic 轉成 Internal
func GRPCUnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp interface{}, err error) {
		ctx = logger.WithTraceID(ctx, traceFromMetadata(ctx))
		start := time.Now()

		defer func() {
			if r := recover(); r != nil {
				logger.Critical(ctx, "gRPC handler panic",
					logger.WithAction(info.FullMethod),
					logger.WithDetails(map[string]interface{}{"panic": r}))
				err = status.Errorf(codes.Internal, "internal error")
			}
			logger.Debug(ctx, "gRPC 請求完成",
				logger.WithAction(info.FullMethod),
				logger.WithDetails(map[string]interface{}{
					"code":    status.Code(err).String(),
					"latency": time.Since(start).String(),
				}))
		}()

		return handler(ctx, req)
	}
}

// GRPCStreamInterceptor gRPC 流式 RPC 攔截器
func GRPCStreamInterceptor() grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) (err error) {
		ctx := logger.WithTraceID(ss.Context(), traceFromMetadata(ss.Context()))
		defer func() {
			if r := recover(); r != nil {
				logger.Critical(ctx, "gRPC stream panic",
					logger.WithAction(info.FullMethod),
					logger.WithDetails(map[string]interface{}{"panic": r}))
				err = status.Errorf(codes.Internal, "internal error")
			}
		}()

		logger.Debug(ctx, "gRPC stream 開始", logger.WithAction(info.FullMethod))
		return handler(srv, ss)
	}
}

// traceFromMetadata 優先使用呼叫端傳入的 x-request-id
func traceFromMetadata(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get("x-request-id"); len(values) > 0 && values[0] != "" {
			return values[0]
		}
	}
	return logger.NewTraceID()
}
