package grpcserver

import (
	"context"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// LoggingUnary returns a unary server interceptor for structured logging.
func LoggingUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		logCall(log, ctx, info.FullMethod, start, err)
		return resp, err
	}
}

// LoggingStream is the streaming counterpart of LoggingUnary (health Watch).
func LoggingStream(log *zap.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, next grpc.StreamHandler) error {
		start := time.Now()
		err := next(srv, ss)
		logCall(log, ss.Context(), info.FullMethod, start, err)
		return err
	}
}

// logCall logs metadata only, never payloads.
func logCall(log *zap.Logger, ctx context.Context, method string, start time.Time, err error) {
	code := status.Code(err)
	var remote string
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		remote = p.Addr.String()
	}
	lvl := zapcore.InfoLevel
	switch code {
	case codes.OK, codes.Canceled:
	case codes.Internal, codes.Unknown, codes.DataLoss:
		lvl = zapcore.ErrorLevel
	default:
		lvl = zapcore.WarnLevel
	}
	log.Check(lvl, "grpc").Write(
		zap.String("method", method),
		zap.String("code", code.String()),
		zap.Duration("dur", time.Since(start)),
		zap.String("peer", remote),
	)
}

// RecoverUnary returns a unary server interceptor that recovers from panics.
func RecoverUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (resp any, err error) {
		defer recoverTo(log, info.FullMethod, &err)
		return next(ctx, req)
	}
}

// RecoverStream returns a stream server interceptor that recovers from panics.
func RecoverStream(log *zap.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, next grpc.StreamHandler) (err error) {
		defer recoverTo(log, info.FullMethod, &err)
		return next(srv, ss)
	}
}

func recoverTo(log *zap.Logger, method string, err *error) {
	if r := recover(); r != nil {
		log.Error("panic",
			zap.Any("reason", r),
			zap.ByteString("stack", debug.Stack()),
			zap.String("method", method),
		)
		*err = status.Error(codes.Internal, "internal")
	}
}
