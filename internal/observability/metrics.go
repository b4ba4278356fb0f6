package observability

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Label values used by the engine metrics.
const (
	ResultOK       = "ok"
	ResultError    = "error"
	ResultAccepted = "accepted"
	ResultSkipped  = "skipped"
	ResultMatched  = "matched"
	ResultDropped  = "dropped"
)

// EngineCollector bundles Prometheus metrics for the mission engine: the
// tick loop, ephemeris loading, merging and the camera.
type EngineCollector struct {
	gatherer prometheus.Gatherer

	Ticks          prometheus.Counter
	Elapsed        prometheus.Gauge
	BodiesAttached prometheus.Gauge

	EphemerisLoads        *prometheus.CounterVec
	EphemerisLoadDuration *prometheus.HistogramVec
	EphemerisRows         *prometheus.CounterVec
	MergeSamples          *prometheus.CounterVec

	CameraRetargets *prometheus.CounterVec
}

// NewEngineCollector registers engine Prometheus metrics against the
// provided registerer, defaulting to the global Prometheus registry when nil.
func NewEngineCollector(reg prometheus.Registerer) (*EngineCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	ticks, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mission_ticks_total",
		Help: "Total number of simulation ticks processed.",
	}), "mission_ticks_total")
	if err != nil {
		return nil, err
	}
	elapsed, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mission_elapsed_seconds",
		Help: "Mission clock elapsed time at the last tick.",
	}), "mission_elapsed_seconds")
	if err != nil {
		return nil, err
	}
	bodies, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mission_bodies_attached",
		Help: "Current number of bodies in the scene registry.",
	}), "mission_bodies_attached")
	if err != nil {
		return nil, err
	}

	loads, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ephemeris_loads_total",
		Help: "Ephemeris report loads, labeled by source and result.",
	}, []string{"source", "result"}), "ephemeris_loads_total")
	if err != nil {
		return nil, err
	}
	loadDuration, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ephemeris_load_duration_seconds",
		Help:    "Time to fetch and parse one ephemeris report.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"source"}), "ephemeris_load_duration_seconds")
	if err != nil {
		return nil, err
	}
	rows, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ephemeris_rows_total",
		Help: "Ephemeris report rows, labeled by source and whether they parsed.",
	}, []string{"source", "result"}), "ephemeris_rows_total")
	if err != nil {
		return nil, err
	}
	merge, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "merge_samples_total",
		Help: "Dependent ephemeris samples matched to or dropped from the primary report.",
	}, []string{"result"}), "merge_samples_total")
	if err != nil {
		return nil, err
	}
	retargets, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "camera_retargets_total",
		Help: "Automatic camera target changes, labeled by the new body.",
	}, []string{"body"}), "camera_retargets_total")
	if err != nil {
		return nil, err
	}

	return &EngineCollector{
		gatherer:              gatherer,
		Ticks:                 ticks,
		Elapsed:               elapsed,
		BodiesAttached:        bodies,
		EphemerisLoads:        loads,
		EphemerisLoadDuration: loadDuration,
		EphemerisRows:         rows,
		MergeSamples:          merge,
		CameraRetargets:       retargets,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *EngineCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// RecordTick counts a tick and publishes the mission time it produced.
func (c *EngineCollector) RecordTick(elapsed float64) {
	if c == nil {
		return
	}
	c.Ticks.Inc()
	c.Elapsed.Set(elapsed)
}

// SetBodiesAttached publishes the registry size.
func (c *EngineCollector) SetBodiesAttached(n int) {
	if c == nil {
		return
	}
	c.BodiesAttached.Set(float64(n))
}

// RecordRetarget counts an automatic camera move to body.
func (c *EngineCollector) RecordRetarget(body string) {
	if c == nil {
		return
	}
	c.CameraRetargets.WithLabelValues(body).Inc()
}

// RecordMerge counts the outcome of one merge of dependent samples.
func (c *EngineCollector) RecordMerge(matched, dropped int) {
	if c == nil {
		return
	}
	c.MergeSamples.WithLabelValues(ResultMatched).Add(float64(matched))
	c.MergeSamples.WithLabelValues(ResultDropped).Add(float64(dropped))
}

// RecordEphemerisLoad counts one load of source and its duration. A nil err
// is recorded as ResultOK.
func (c *EngineCollector) RecordEphemerisLoad(source string, err error, d time.Duration) {
	if c == nil {
		return
	}
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	source = SourceLabel(source)
	c.EphemerisLoads.WithLabelValues(source, result).Inc()
	c.EphemerisLoadDuration.WithLabelValues(source).Observe(d.Seconds())
}

// RecordEphemerisRows counts parsed and skipped rows of source.
func (c *EngineCollector) RecordEphemerisRows(source string, accepted, skipped int) {
	if c == nil {
		return
	}
	source = SourceLabel(source)
	c.EphemerisRows.WithLabelValues(source, ResultAccepted).Add(float64(accepted))
	c.EphemerisRows.WithLabelValues(source, ResultSkipped).Add(float64(skipped))
}

// SourceLabel normalises a report name into a label value, returning
// "unknown" for empty names.
func SourceLabel(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return "unknown"
	}
	return name
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
