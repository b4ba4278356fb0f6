package ephemeris

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/mission-trajectory-sim/core"
	"github.com/signalsfoundry/mission-trajectory-sim/internal/logging"
)

const tracerName = "github.com/signalsfoundry/mission-trajectory-sim/internal/ephemeris"

// MetricsRecorder receives load outcomes; observability.EngineCollector
// satisfies it.
type MetricsRecorder interface {
	RecordEphemerisLoad(source string, err error, d time.Duration)
	RecordEphemerisRows(source string, accepted, skipped int)
}

// Loader fetches and parses the primary and dependent reports.
type Loader struct {
	log     logging.Logger
	metrics MetricsRecorder
	tracer  trace.Tracer
	timeout time.Duration
}

// LoaderOption customises Loader construction.
type LoaderOption func(*Loader)

// WithMetrics attaches a metrics recorder.
func WithMetrics(m MetricsRecorder) LoaderOption {
	return func(l *Loader) { l.metrics = m }
}

// WithTimeout bounds each fetch; zero leaves it to the context.
func WithTimeout(d time.Duration) LoaderOption {
	return func(l *Loader) { l.timeout = d }
}

// WithTracerProvider overrides the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) LoaderOption {
	return func(l *Loader) {
		if tp != nil {
			l.tracer = tp.Tracer(tracerName)
		}
	}
}

// NewLoader returns a Loader logging to log.
func NewLoader(log logging.Logger, opts ...LoaderOption) *Loader {
	if log == nil {
		log = logging.Noop()
	}
	l := &Loader{log: log, tracer: otel.Tracer(tracerName)}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// Load fetches both reports concurrently and parses them. Each side fails
// independently: a failed fetch is logged and recorded in the batch, and
// the other side is still returned. A nil dependent source is skipped.
func (l *Loader) Load(ctx context.Context, primary, dependent Source) core.EphemerisBatch {
	var batch core.EphemerisBatch
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		data, err := l.fetch(ctx, primary)
		if err != nil {
			batch.PrimaryErr = err
			return
		}
		rows, stats, err := ParsePrimary(data)
		l.record(ctx, primary, stats, err)
		batch.Primary, batch.PrimaryErr = rows, err
	}()

	if dependent != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			data, err := l.fetch(ctx, dependent)
			if err != nil {
				batch.DependentErr = err
				return
			}
			rows, stats, err := ParseDependent(data)
			l.record(ctx, dependent, stats, err)
			batch.Dependent, batch.DependentErr = rows, err
		}()
	}

	wg.Wait()
	return batch
}

// LoadAsync runs Load in the background. The returned channel delivers
// exactly one batch and is then closed.
func (l *Loader) LoadAsync(ctx context.Context, primary, dependent Source) <-chan core.EphemerisBatch {
	ch := make(chan core.EphemerisBatch, 1)
	go func() {
		defer close(ch)
		ch <- l.Load(ctx, primary, dependent)
	}()
	return ch
}

func (l *Loader) fetch(ctx context.Context, src Source) ([]byte, error) {
	if src == nil {
		return nil, errNoSource
	}
	name := src.Name()
	ctx, span := l.tracer.Start(ctx, "ephemeris.load", trace.WithAttributes(attribute.String("ephemeris.source", name)))
	defer span.End()

	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	start := time.Now()
	data, err := src.Fetch(ctx)
	if l.metrics != nil {
		l.metrics.RecordEphemerisLoad(name, err, time.Since(start))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		l.log.Warn(ctx, "ephemeris source unavailable; body left out",
			logging.String("source", name), logging.Err(err))
		return nil, err
	}
	span.SetAttributes(attribute.Int("ephemeris.bytes", len(data)))
	return data, nil
}

func (l *Loader) record(ctx context.Context, src Source, stats ParseStats, err error) {
	name := src.Name()
	if l.metrics != nil {
		l.metrics.RecordEphemerisRows(name, stats.Accepted, stats.Skipped)
	}
	if err != nil {
		l.log.Warn(ctx, "ephemeris report unreadable", logging.String("source", name), logging.Err(err))
		return
	}
	l.log.Info(ctx, "ephemeris report loaded",
		logging.String("source", name),
		logging.Int("accepted", stats.Accepted),
		logging.Int("skipped", stats.Skipped),
		logging.Int("duplicates", stats.Duplicates),
	)
}
