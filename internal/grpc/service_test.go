package grpc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sync"
	"testing"
	"time"

	grpclib "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"driftpursuit/rewind/internal/dump"
	"driftpursuit/rewind/internal/input"
	"driftpursuit/rewind/internal/logging"
	"driftpursuit/rewind/internal/simulation"
)

type fakeController struct {
	mu       sync.Mutex
	commands []input.Command
	status   simulation.Status
	full     bool
	bodies   map[string]bool
}

func (f *fakeController) Enqueue(cmd input.Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	if f.full {
		return simulation.ErrQueueFull
	}
	f.mu.Lock()
	f.commands = append(f.commands, cmd)
	f.mu.Unlock()
	return nil
}

func (f *fakeController) Status() simulation.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeController) setTick(tick uint64) {
	f.mu.Lock()
	f.status.Tick = tick
	f.mu.Unlock()
}

func (f *fakeController) SpawnDrifter(context.Context) (string, error) { return "drifter-9", nil }

func (f *fakeController) Despawn(_ context.Context, id string) (bool, error) {
	return f.bodies[id], nil
}

func (f *fakeController) ExportHistory(context.Context) (dump.Capture, error) {
	return dump.Capture{
		SessionID: "s-1",
		Tick:      42,
		Entities:  []dump.EntityHistory{{ID: "pawn", Kind: "pawn"}},
	}, nil
}

func newTestService(controller Controller, opts ...Option) *Service {
	return NewService(controller, append([]Option{WithLogger(logging.NewTestLogger())}, opts...)...)
}

func mustStruct(t *testing.T, fields map[string]any) *structpb.Struct {
	t.Helper()
	out, err := structpb.NewStruct(fields)
	if err != nil {
		t.Fatalf("new struct: %v", err)
	}
	return out
}

func TestExecuteQueuesNormalisedCommand(t *testing.T) {
	controller := &fakeController{}
	service := newTestService(controller)

	resp, err := service.Execute(context.Background(), mustStruct(t, map[string]any{"action": " Set_Speed ", "preset": "fastest"}))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !resp.GetFields()["queued"].GetBoolValue() {
		t.Fatalf("expected queued response, got %v", resp)
	}
	if len(controller.commands) != 1 || controller.commands[0].Action != input.ActionSetSpeed || controller.commands[0].Preset != "fastest" {
		t.Fatalf("unexpected commands %+v", controller.commands)
	}
}

func TestExecuteMapsErrors(t *testing.T) {
	cases := []struct {
		name   string
		fields map[string]any
		full   bool
		code   codes.Code
	}{
		{name: "missing action", fields: map[string]any{"preset": "normal"}, code: codes.InvalidArgument},
		{name: "unknown action", fields: map[string]any{"action": "warp"}, code: codes.InvalidArgument},
		{name: "bad move axis", fields: map[string]any{"action": "move", "x": 3.0}, code: codes.InvalidArgument},
		{name: "queue full", fields: map[string]any{"action": "toggle_scrub"}, full: true, code: codes.ResourceExhausted},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			service := newTestService(&fakeController{full: tc.full})
			_, err := service.Execute(context.Background(), mustStruct(t, tc.fields))
			if status.Code(err) != tc.code {
				t.Fatalf("expected %v, got %v", tc.code, err)
			}
		})
	}
}

func TestStatusAndDespawn(t *testing.T) {
	controller := &fakeController{
		status: simulation.Status{SessionID: "s-1", Tick: 7, Preset: "normal", Direction: "idle"},
		bodies: map[string]bool{"drifter-1": true},
	}
	service := newTestService(controller)

	out, err := service.Status(context.Background(), &emptypb.Empty{})
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if out.GetFields()["tick"].GetNumberValue() != 7 || out.GetFields()["preset"].GetStringValue() != "normal" {
		t.Fatalf("unexpected status %v", out)
	}

	if _, err := service.Despawn(context.Background(), mustStruct(t, map[string]any{})); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	if _, err := service.Despawn(context.Background(), mustStruct(t, map[string]any{"id": "ghost"})); status.Code(err) != codes.NotFound {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := service.Despawn(context.Background(), mustStruct(t, map[string]any{"id": "drifter-1"})); err != nil {
		t.Fatalf("despawn: %v", err)
	}
	spawned, err := service.Spawn(context.Background(), &emptypb.Empty{})
	if err != nil || spawned.GetFields()["id"].GetStringValue() != "drifter-9" {
		t.Fatalf("unexpected spawn result %v, %v", spawned, err)
	}
}

func TestDumpHistoryCompressesCapture(t *testing.T) {
	service := newTestService(&fakeController{}, WithCompressor(NewGZIPCompressor()))
	out, err := service.DumpHistory(context.Background(), &emptypb.Empty{})
	if err != nil {
		t.Fatalf("dump history: %v", err)
	}
	fields := out.GetFields()
	if fields["encoding"].GetStringValue() != "gzip" || fields["entities"].GetNumberValue() != 1 {
		t.Fatalf("unexpected dump summary %v", out)
	}
	compressed, err := base64.StdEncoding.DecodeString(fields["payload"].GetStringValue())
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	raw, err := NewGZIPCompressor().Decompress(compressed)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	var capture dump.Capture
	if err := json.Unmarshal(raw, &capture); err != nil {
		t.Fatalf("unmarshal capture: %v", err)
	}
	if capture.SessionID != "s-1" || capture.Tick != 42 {
		t.Fatalf("unexpected capture %+v", capture)
	}
}

type recordingStream struct {
	ctx    context.Context
	frames chan *structpb.Struct
}

func (r *recordingStream) Send(frame *structpb.Struct) error {
	r.frames <- frame
	return nil
}

func (r *recordingStream) Context() context.Context { return r.ctx }

func TestWatchStatusSkipsUnchangedTicks(t *testing.T) {
	controller := &fakeController{status: simulation.Status{Tick: 1}}
	ticks := make(chan time.Time)
	service := newTestService(controller, WithTickerFactory(func(time.Duration) (<-chan time.Time, func()) {
		return ticks, func() {}
	}))

	ctx, cancel := context.WithCancel(context.Background())
	stream := &recordingStream{ctx: ctx, frames: make(chan *structpb.Struct, 8)}
	done := make(chan error, 1)
	go func() { done <- service.WatchStatus(&emptypb.Empty{}, stream) }()

	ticks <- time.Now()
	ticks <- time.Now()
	controller.setTick(2)
	ticks <- time.Now()
	cancel()

	if err := <-done; status.Code(err) != codes.Canceled {
		t.Fatalf("expected cancelled stream, got %v", err)
	}
	close(stream.frames)
	var seen []float64
	for frame := range stream.frames {
		seen = append(seen, frame.GetFields()["tick"].GetNumberValue())
	}
	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Fatalf("expected one frame per tick, got %v", seen)
	}
}

func TestServiceDescDispatchesThroughInterceptor(t *testing.T) {
	controller := &fakeController{status: simulation.Status{Tick: 3}}
	service := newTestService(controller)

	var method string
	interceptor := func(ctx context.Context, req any, info *grpclib.UnaryServerInfo, handler grpclib.UnaryHandler) (any, error) {
		method = info.FullMethod
		return handler(ctx, req)
	}
	dec := func(any) error { return nil }
	var statusDesc grpclib.MethodDesc
	for _, desc := range ServiceDesc.Methods {
		if desc.MethodName == "Status" {
			statusDesc = desc
		}
	}
	out, err := statusDesc.Handler(service, context.Background(), dec, interceptor)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if method != "/rewind.v1.RewindControl/Status" {
		t.Fatalf("unexpected full method %q", method)
	}
	if out.(*structpb.Struct).GetFields()["tick"].GetNumberValue() != 3 {
		t.Fatalf("unexpected response %v", out)
	}
}

func TestSharedSecretUnaryInterceptor(t *testing.T) {
	interceptor := SharedSecretUnaryInterceptor("hunter2")
	handler := func(context.Context, any) (any, error) { return "ok", nil }

	cases := []struct {
		name string
		md   metadata.MD
		code codes.Code
	}{
		{name: "header", md: metadata.Pairs(SharedSecretMetadataKey, "hunter2"), code: codes.OK},
		{name: "bearer", md: metadata.Pairs("authorization", "Bearer hunter2"), code: codes.OK},
		{name: "wrong", md: metadata.Pairs(SharedSecretMetadataKey, "nope"), code: codes.Unauthenticated},
		{name: "missing", md: metadata.MD{}, code: codes.Unauthenticated},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := metadata.NewIncomingContext(context.Background(), tc.md)
			_, err := interceptor(ctx, nil, &grpclib.UnaryServerInfo{}, handler)
			if status.Code(err) != tc.code {
				t.Fatalf("expected %v, got %v", tc.code, err)
			}
		})
	}
	if _, err := interceptor(context.Background(), nil, &grpclib.UnaryServerInfo{}, handler); status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected missing metadata to fail, got %v", err)
	}
}

type stubServerStream struct {
	grpclib.ServerStream
	ctx context.Context
}

func (s *stubServerStream) Context() context.Context { return s.ctx }

func TestSharedSecretStreamInterceptorRejectsUnconfiguredSecret(t *testing.T) {
	interceptor := SharedSecretStreamInterceptor("  ")
	md := metadata.Pairs(SharedSecretMetadataKey, "anything")
	stream := &stubServerStream{ctx: metadata.NewIncomingContext(context.Background(), md)}
	err := interceptor(nil, stream, &grpclib.StreamServerInfo{}, func(any, grpclib.ServerStream) error { return nil })
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
}
