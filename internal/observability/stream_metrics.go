package observability

import (
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// StreamCollector exposes scene stream metrics: subscriber counts, frames
// dropped for slow subscribers and per-RPC accounting.
type StreamCollector struct {
	gatherer prometheus.Gatherer

	Subscribers    prometheus.Gauge
	FramesSent     prometheus.Counter
	FramesDropped  prometheus.Counter
	FrameEncode    prometheus.Histogram
	StreamRPCs     *prometheus.CounterVec
	StreamDuration *prometheus.HistogramVec
}

// NewStreamCollector registers scene stream metrics against the provided
// registerer.
func NewStreamCollector(reg prometheus.Registerer) (*StreamCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	subscribers, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scene_stream_subscribers",
		Help: "Number of clients currently watching the scene stream.",
	}), "scene_stream_subscribers")
	if err != nil {
		return nil, err
	}
	sent, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scene_frames_sent_total",
		Help: "Frames queued for scene stream subscribers.",
	}), "scene_frames_sent_total")
	if err != nil {
		return nil, err
	}
	dropped, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scene_frames_dropped_total",
		Help: "Frames dropped because a subscriber was not keeping up.",
	}), "scene_frames_dropped_total")
	if err != nil {
		return nil, err
	}
	encode, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "scene_frame_encode_duration_seconds",
		Help:    "Time to encode one frame for the wire.",
		Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
	}), "scene_frame_encode_duration_seconds")
	if err != nil {
		return nil, err
	}
	rpcs, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scene_stream_rpcs_total",
		Help: "Finished scene stream RPCs, labeled by service, method, and gRPC status code.",
	}, []string{"service", "method", "code"}), "scene_stream_rpcs_total")
	if err != nil {
		return nil, err
	}
	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scene_stream_rpc_duration_seconds",
		Help:    "Scene stream RPC lifetime in seconds.",
		Buckets: []float64{0.1, 1, 10, 60, 300, 1800, 3600},
	}, []string{"service", "method"}), "scene_stream_rpc_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &StreamCollector{
		gatherer:       gatherer,
		Subscribers:    subscribers,
		FramesSent:     sent,
		FramesDropped:  dropped,
		FrameEncode:    encode,
		StreamRPCs:     rpcs,
		StreamDuration: durations,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *StreamCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// SetSubscribers updates the subscriber gauge.
func (c *StreamCollector) SetSubscribers(n int) {
	if c == nil {
		return
	}
	c.Subscribers.Set(float64(n))
}

// RecordFrameSent counts a frame queued for one subscriber.
func (c *StreamCollector) RecordFrameSent() {
	if c == nil {
		return
	}
	c.FramesSent.Inc()
}

// RecordFrameDropped counts a frame skipped for a slow subscriber.
func (c *StreamCollector) RecordFrameDropped() {
	if c == nil {
		return
	}
	c.FramesDropped.Inc()
}

// ObserveFrameEncode records one frame encoding duration.
func (c *StreamCollector) ObserveFrameEncode(d time.Duration) {
	if c == nil {
		return
	}
	c.FrameEncode.Observe(d.Seconds())
}

// StreamServerInterceptor records counts and lifetimes of streaming RPCs.
func (c *StreamCollector) StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)

		if c == nil {
			return err
		}

		fullMethod := ""
		if info != nil {
			fullMethod = info.FullMethod
		}
		service, method := SplitMethod(fullMethod)
		code := status.Code(err).String()

		c.StreamRPCs.WithLabelValues(service, method, code).Inc()
		c.StreamDuration.WithLabelValues(service, method).Observe(time.Since(start).Seconds())
		return err
	}
}

// SplitMethod parses a fully-qualified gRPC method name into service and method
// components. It tolerates empty strings and partial paths, returning
// "unknown"/"unknown" when parsing fails.
func SplitMethod(fullMethod string) (string, string) {
	if fullMethod == "" {
		return "unknown", "unknown"
	}
	fullMethod = strings.TrimPrefix(fullMethod, "/")
	parts := strings.Split(fullMethod, "/")
	if len(parts) < 2 {
		return "unknown", "unknown"
	}
	service := parts[len(parts)-2]
	method := parts[len(parts)-1]
	if dot := strings.LastIndex(service, "."); dot >= 0 && dot+1 < len(service) {
		service = service[dot+1:]
	}
	if service == "" {
		service = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	return service, method
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}
