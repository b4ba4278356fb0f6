package scenestream

import (
	"context"
	"errors"
	"io"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/mission-trajectory-sim/internal/logging"
	"github.com/signalsfoundry/mission-trajectory-sim/model"
)

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "mission.scene.v1.SceneStream"
	// WatchMethod is the full method name of the frame stream.
	WatchMethod = "/" + ServiceName + "/Watch"

	sessionIDMetadataKey = "x-session-id"
)

// SceneStreamServer is the server API of the scene stream. Watch takes a
// request Struct with an optional "bodies" list of ids and streams one
// Struct per frame until the client goes away.
type SceneStreamServer interface {
	Watch(*structpb.Struct, WatchServer) error
}

// WatchServer is the server side of a Watch stream.
type WatchServer interface {
	Send(*structpb.Struct) error
	grpc.ServerStream
}

type watchServer struct {
	grpc.ServerStream
}

func (x *watchServer) Send(m *structpb.Struct) error {
	return x.ServerStream.SendMsg(m)
}

func watchHandler(srv interface{}, stream grpc.ServerStream) error {
	req := new(structpb.Struct)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(SceneStreamServer).Watch(req, &watchServer{stream})
}

// ServiceDesc describes the scene stream for grpc.ServiceRegistrar.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SceneStreamServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Watch",
			Handler:       watchHandler,
			ServerStreams: true,
		},
	},
	Metadata: "mission/scene/v1/scene.proto",
}

// RegisterSceneStreamServer registers srv on s.
func RegisterSceneStreamServer(s grpc.ServiceRegistrar, srv SceneStreamServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Service serves Watch streams from a Hub.
type Service struct {
	hub     *Hub
	metrics Metrics
	log     logging.Logger
}

// NewService builds a Service over hub. metrics and log may be nil.
func NewService(hub *Hub, metrics Metrics, log logging.Logger) *Service {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if log == nil {
		log = logging.Noop()
	}
	return &Service{hub: hub, metrics: metrics, log: log}
}

// Watch streams frames until the client cancels or the hub closes.
func (s *Service) Watch(req *structpb.Struct, stream WatchServer) error {
	ctx := stream.Context()
	log := logging.LoggerFromContext(ctx)
	if log == nil {
		log = s.log
	}
	only := bodyFilter(req)

	frames, cancel := s.hub.Subscribe()
	defer cancel()
	log.Info(ctx, "scene watcher connected", logging.Int("filter", len(only)))

	sent := 0
	for {
		select {
		case <-ctx.Done():
			log.Info(ctx, "scene watcher gone", logging.Int("frames", sent))
			return status.FromContextError(ctx.Err()).Err()
		case f, ok := <-frames:
			if !ok {
				log.Info(ctx, "scene stream closed", logging.Int("frames", sent))
				return nil
			}
			start := time.Now()
			msg, err := FrameToStruct(f, only)
			s.metrics.ObserveFrameEncode(time.Since(start))
			if err != nil {
				log.Error(ctx, "frame encode failed", logging.Err(err))
				return status.Error(codes.Internal, err.Error())
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
			s.metrics.RecordFrameSent()
			sent++
		}
	}
}

// NewGRPCServer returns a gRPC server carrying the scene stream and the
// standard health service, instrumented with OpenTelemetry and the stream
// metrics interceptor.
func NewGRPCServer(svc *Service, streamMetrics grpc.StreamServerInterceptor, log logging.Logger, opts ...grpc.ServerOption) *grpc.Server {
	interceptors := []grpc.StreamServerInterceptor{SessionStreamServerInterceptor(log)}
	if streamMetrics != nil {
		interceptors = append(interceptors, streamMetrics)
	}
	opts = append([]grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainStreamInterceptor(interceptors...),
	}, opts...)

	server := grpc.NewServer(opts...)
	RegisterSceneStreamServer(server, svc)

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, hs)
	return server
}

// SessionStreamServerInterceptor ensures a session_id is present on the
// stream context, sourcing it from inbound metadata if provided, and attaches
// a per-stream logger annotated with session_id and method.
func SessionStreamServerInterceptor(base logging.Logger) grpc.StreamServerInterceptor {
	if base == nil {
		base = logging.Noop()
	}
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx := ss.Context()
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if vals := md.Get(sessionIDMetadataKey); len(vals) > 0 && vals[0] != "" {
				ctx = logging.ContextWithSessionID(ctx, vals[0])
			}
		}
		ctx, streamLog := logging.WithSessionLogger(ctx, base.With(logging.String("method", info.FullMethod)))
		ctx = logging.ContextWithLogger(ctx, streamLog)
		return handler(srv, &contextStream{ServerStream: ss, ctx: ctx})
	}
}

type contextStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *contextStream) Context() context.Context { return s.ctx }

// Client watches a remote scene stream.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Watch opens a frame stream, optionally restricted to the given body ids.
func (c *Client) Watch(ctx context.Context, bodies ...string) (*Watcher, error) {
	ids := make([]interface{}, 0, len(bodies))
	for _, id := range bodies {
		ids = append(ids, id)
	}
	req, err := structpb.NewStruct(map[string]interface{}{"bodies": ids})
	if err != nil {
		return nil, err
	}

	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], WatchMethod)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(req); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &Watcher{stream: stream}, nil
}

// Watcher is the client side of a Watch stream.
type Watcher struct {
	stream grpc.ClientStream
}

// Recv blocks for the next frame. It returns io.EOF when the server ends the
// stream.
func (w *Watcher) Recv() (model.Frame, error) {
	msg := new(structpb.Struct)
	if err := w.stream.RecvMsg(msg); err != nil {
		if errors.Is(err, io.EOF) {
			return model.Frame{}, io.EOF
		}
		return model.Frame{}, err
	}
	return FrameFromStruct(msg)
}
