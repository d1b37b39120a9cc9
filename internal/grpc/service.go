package grpc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"driftpursuit/rewind/internal/dump"
	"driftpursuit/rewind/internal/input"
	"driftpursuit/rewind/internal/logging"
	"driftpursuit/rewind/internal/simulation"
)

const (
	// execTimeout bounds how long an RPC waits for the tick goroutine.
	execTimeout = 2 * time.Second
	// defaultWatchRateHz throttles WatchStatus frames.
	defaultWatchRateHz = 10
)

// Controller is the slice of the simulation session the control service drives.
type Controller interface {
	Enqueue(cmd input.Command) error
	Status() simulation.Status
	SpawnDrifter(ctx context.Context) (string, error)
	Despawn(ctx context.Context, id string) (bool, error)
	ExportHistory(ctx context.Context) (dump.Capture, error)
}

// Option customises the behaviour of the control service.
type Option func(*Service)

// tickerFactory constructs cancellable tick channels for throttled streaming.
type tickerFactory func(time.Duration) (<-chan time.Time, func())

// WithCompressor overrides the history export compressor.
func WithCompressor(compressor Compressor) Option {
	return func(s *Service) {
		if compressor != nil {
			s.compressor = compressor
		}
	}
}

// WithTickerFactory overrides the throttling ticker factory (used in tests).
func WithTickerFactory(factory tickerFactory) Option {
	return func(s *Service) {
		if factory != nil {
			s.newTicker = factory
		}
	}
}

// WithWatchRate sets how many status frames per second WatchStatus may send.
func WithWatchRate(hz int) Option {
	return func(s *Service) {
		if hz > 0 {
			s.watchRate = hz
		}
	}
}

// WithLogger attaches a structured logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.log = logger
		}
	}
}

// Service implements RewindControlServer on top of a session.
type Service struct {
	controller Controller
	compressor Compressor
	newTicker  tickerFactory
	watchRate  int
	log        *logging.Logger
}

// NewService wires the control service to the session and optional settings.
func NewService(controller Controller, opts ...Option) *Service {
	service := &Service{
		controller: controller,
		compressor: NewSnappyCompressor(),
		newTicker:  defaultTickerFactory,
		watchRate:  defaultWatchRateHz,
		log:        logging.L(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(service)
		}
	}
	service.log = service.log.Named("grpc")
	return service
}

func defaultTickerFactory(interval time.Duration) (<-chan time.Time, func()) {
	ticker := time.NewTicker(interval)
	return ticker.C, ticker.Stop
}

// Execute queues one control command; fields mirror the WebSocket envelope.
func (s *Service) Execute(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s == nil || s.controller == nil {
		return nil, status.Error(codes.FailedPrecondition, "control unavailable")
	}
	cmd, err := commandFromStruct(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := s.controller.Enqueue(cmd); err != nil {
		switch {
		case errors.Is(err, input.ErrUnknownAction), errors.Is(err, input.ErrInvalidArgument):
			return nil, status.Error(codes.InvalidArgument, err.Error())
		case errors.Is(err, simulation.ErrQueueFull):
			return nil, status.Error(codes.ResourceExhausted, err.Error())
		default:
			return nil, status.Errorf(codes.Internal, "enqueue: %v", err)
		}
	}
	s.log.Debug("command queued", logging.String("action", string(cmd.Action)), logging.String("trace_id", logging.TraceIDFromContext(ctx)))
	return structpb.NewStruct(map[string]any{"queued": true, "action": string(cmd.Action)})
}

// Status returns the most recently published session status.
func (s *Service) Status(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if s == nil || s.controller == nil {
		return nil, status.Error(codes.FailedPrecondition, "control unavailable")
	}
	out, err := toStruct(s.controller.Status())
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode status: %v", err)
	}
	return out, nil
}

// Spawn adds a drifter and returns its identifier.
func (s *Service) Spawn(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if s == nil || s.controller == nil {
		return nil, status.Error(codes.FailedPrecondition, "control unavailable")
	}
	ctx, cancel := context.WithTimeout(ctx, execTimeout)
	defer cancel()
	id, err := s.controller.SpawnDrifter(ctx)
	if err != nil {
		return nil, contextStatus(err, "spawn")
	}
	return structpb.NewStruct(map[string]any{"id": id})
}

// Despawn removes the body named by the request's "id" field.
func (s *Service) Despawn(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s == nil || s.controller == nil {
		return nil, status.Error(codes.FailedPrecondition, "control unavailable")
	}
	id := req.GetFields()["id"].GetStringValue()
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}
	ctx, cancel := context.WithTimeout(ctx, execTimeout)
	defer cancel()
	removed, err := s.controller.Despawn(ctx, id)
	if err != nil {
		return nil, contextStatus(err, "despawn")
	}
	if !removed {
		return nil, status.Errorf(codes.NotFound, "body %q not found", id)
	}
	return structpb.NewStruct(map[string]any{"id": id, "removed": true})
}

// DumpHistory exports every engine's history as a compressed JSON capture.
func (s *Service) DumpHistory(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if s == nil || s.controller == nil {
		return nil, status.Error(codes.FailedPrecondition, "control unavailable")
	}
	ctx, cancel := context.WithTimeout(ctx, execTimeout)
	defer cancel()
	capture, err := s.controller.ExportHistory(ctx)
	if err != nil {
		return nil, contextStatus(err, "export history")
	}
	raw, err := json.Marshal(capture)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode capture: %v", err)
	}
	compressed, err := s.compressor.Compress(raw)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "compress capture: %v", err)
	}
	return structpb.NewStruct(map[string]any{
		"session_id": capture.SessionID,
		"tick":       float64(capture.Tick),
		"entities":   float64(len(capture.Entities)),
		"snapshots":  float64(capture.SnapshotCount()),
		"encoding":   s.compressor.Name(),
		"payload":    base64.StdEncoding.EncodeToString(compressed),
	})
}

// WatchStatus streams the session status whenever a new tick was published.
func (s *Service) WatchStatus(_ *emptypb.Empty, stream StatusStream) error {
	if s == nil || s.controller == nil {
		return status.Error(codes.FailedPrecondition, "control unavailable")
	}
	ctx := stream.Context()
	tickCh, stop := s.newTicker(time.Second / time.Duration(s.watchRate))
	defer stop()

	var (
		lastTick uint64
		sent     bool
	)
	for {
		select {
		case <-ctx.Done():
			//1.- Surface cancellation so clients can tell it apart from a server fault.
			if errors.Is(ctx.Err(), context.Canceled) {
				return status.Error(codes.Canceled, "stream cancelled")
			}
			return status.Error(codes.DeadlineExceeded, "stream deadline exceeded")
		case <-tickCh:
			current := s.controller.Status()
			//2.- Skip frames when the simulation has not advanced since the last send.
			if sent && current.Tick == lastTick {
				continue
			}
			frame, err := toStruct(current)
			if err != nil {
				return status.Errorf(codes.Internal, "encode status: %v", err)
			}
			if err := stream.Send(frame); err != nil {
				return err
			}
			lastTick, sent = current.Tick, true
		}
	}
}

func commandFromStruct(req *structpb.Struct) (input.Command, error) {
	if req == nil {
		return input.Command{}, errors.New("request body required")
	}
	fields := req.GetFields()
	action := fields["action"].GetStringValue()
	if action == "" {
		return input.Command{}, errors.New("action is required")
	}
	raw, err := json.Marshal(req.AsMap())
	if err != nil {
		return input.Command{}, err
	}
	var cmd input.Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return input.Command{}, fmt.Errorf("decode command: %w", err)
	}
	return cmd.Normalized(), nil
}

func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	return structpb.NewStruct(fields)
}

func contextStatus(err error, op string) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return status.Errorf(codes.DeadlineExceeded, "%s: simulation did not respond", op)
	case errors.Is(err, context.Canceled):
		return status.Errorf(codes.Canceled, "%s cancelled", op)
	case errors.Is(err, simulation.ErrQueueFull):
		return status.Error(codes.ResourceExhausted, err.Error())
	default:
		return status.Error(codes.Internal, fmt.Sprintf("%s: %v", op, err))
	}
}
