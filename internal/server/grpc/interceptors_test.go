package grpcserver

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

type fakeAddr struct{}

func (fakeAddr) Network() string { return "tcp" }
func (fakeAddr) String() string  { return "127.0.0.1:12345" }

type fakeStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s fakeStream) Context() context.Context { return s.ctx }

func TestLoggingUnary_Passthrough(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	ic := LoggingUnary(zap.New(core))

	ctx := peer.NewContext(context.Background(), &peer.Peer{Addr: fakeAddr{}})

	h := func(ctx context.Context, req any) (any, error) { return "ok", nil }
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

	resp, err := ic(ctx, "req", info, h)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if s, _ := resp.(string); s != "ok" {
		t.Fatalf("resp mismatch: %v", resp)
	}

	wantErr := errors.New("boom")
	hErr := func(ctx context.Context, req any) (any, error) { return nil, wantErr }
	_, err = ic(ctx, "req", info, hErr)
	if !errors.Is(err, wantErr) {
		t.Fatalf("want handler error, got: %v", err)
	}

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("want 2 log entries, got %d", len(entries))
	}
	if entries[0].Level != zapcore.InfoLevel || entries[0].ContextMap()["peer"] != "127.0.0.1:12345" {
		t.Fatalf("bad success entry: %+v", entries[0])
	}
	// plain errors map to codes.Unknown
	if entries[1].Level != zapcore.ErrorLevel || entries[1].ContextMap()["code"] != "Unknown" {
		t.Fatalf("bad failure entry: %+v", entries[1])
	}
}

func TestLoggingUnary_ClientErrorsAreWarnings(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	ic := LoggingUnary(zap.New(core))
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

	h := func(ctx context.Context, req any) (any, error) {
		return nil, status.Error(codes.NotFound, "unknown service")
	}
	if _, err := ic(context.Background(), "req", info, h); status.Code(err) != codes.NotFound {
		t.Fatalf("want NotFound, got %v", err)
	}
	if got := logs.FilterLevelExact(zapcore.WarnLevel).Len(); got != 1 {
		t.Fatalf("want one warning, got %d", got)
	}
}

func TestRecoverUnary_CatchesPanic(t *testing.T) {
	t.Parallel()

	ic := RecoverUnary(zaptest.NewLogger(t))
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

	panicH := func(ctx context.Context, req any) (any, error) {
		panic("oh no")
	}

	_, err := ic(context.Background(), "req", info, panicH)
	if err == nil {
		t.Fatalf("expected error from panic")
	}
	st, ok := status.FromError(err)
	if !ok || st.Code() != codes.Internal {
		t.Fatalf("want codes.Internal, got: %v", err)
	}
}

func TestRecoverUnary_NoPanicPassThrough(t *testing.T) {
	t.Parallel()

	ic := RecoverUnary(zaptest.NewLogger(t))
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

	h := func(ctx context.Context, req any) (any, error) { return 42, nil }

	resp, err := ic(context.Background(), "req", info, h)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if resp.(int) != 42 {
		t.Fatalf("resp mismatch: %v", resp)
	}
}

func TestStreamInterceptors(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	log := zap.New(core)
	info := &grpc.StreamServerInfo{FullMethod: "/grpc.health.v1.Health/Watch", IsServerStream: true}
	ss := fakeStream{ctx: context.Background()}

	err := RecoverStream(log)(nil, ss, info, func(any, grpc.ServerStream) error { panic("stream") })
	if status.Code(err) != codes.Internal {
		t.Fatalf("want codes.Internal, got %v", err)
	}

	err = LoggingStream(log)(nil, ss, info, func(any, grpc.ServerStream) error {
		time.Sleep(time.Millisecond)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if logs.FilterMessage("grpc").Len() != 1 {
		t.Fatalf("stream call not logged")
	}
}
