package otel

import (
	"context"
	"errors"
	"fmt"
	"strings"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Instrument names. Engine counters share one instrument and are told
// apart by the "event" attribute.
const (
	EventsInstrument       = "goidentity.events"
	AuditDroppedInstrument = "goidentity.audit.dropped"
	EventKey               = attribute.Key("event")
	BoundKey               = attribute.Key("le")
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() goIdentity.MetricsSnapshot
	AuditDropped() uint64
}

// Option configures an Exporter.
type Option func(*options)

type options struct {
	attrs []attribute.KeyValue
}

// WithAttributes adds constant attributes to every observation, such as
// the store backend or deployment name.
func WithAttributes(attrs ...attribute.KeyValue) Option {
	return func(o *options) {
		o.attrs = append(o.attrs, attrs...)
	}
}

type eventSeries struct {
	id  goIdentity.MetricID
	opt metric.ObserveOption
}

type latencySeries struct {
	id      goIdentity.MetricID
	buckets metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
	bounds  [8]metric.ObserveOption
}

// Exporter publishes engine counters as observable OTel instruments. One
// callback reads a snapshot per collection.
type Exporter struct {
	source       metricsSource
	registration metric.Registration
	events       metric.Int64ObservableCounter
	series       []eventSeries
	latency      []latencySeries
	auditDropped metric.Int64ObservableCounter
	base         metric.ObserveOption
}

// NewExporter registers instruments on meter that read from engine.
func NewExporter(meter metric.Meter, engine *goIdentity.Engine, opts ...Option) (*Exporter, error) {
	if engine == nil {
		return nil, ErrNilSource
	}
	return NewExporterFromSource(meter, engine, opts...)
}

func NewExporterFromSource(meter metric.Meter, source metricsSource, opts ...Option) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	exporter := &Exporter{
		source: source,
		series: make([]eventSeries, 0, len(internaldefs.CounterDefs)),
		base:   metric.WithAttributeSet(attribute.NewSet(o.attrs...)),
	}

	// Attribute sets are built once; the callback only observes.
	withBase := func(kv attribute.KeyValue) metric.ObserveOption {
		attrs := make([]attribute.KeyValue, 0, len(o.attrs)+1)
		attrs = append(attrs, o.attrs...)
		attrs = append(attrs, kv)
		return metric.WithAttributeSet(attribute.NewSet(attrs...))
	}

	events, err := meter.Int64ObservableCounter(EventsInstrument,
		metric.WithDescription("Identity lifecycle events by kind."))
	if err != nil {
		return nil, fmt.Errorf("create events counter: %w", err)
	}
	exporter.events = events
	for _, def := range internaldefs.CounterDefs {
		exporter.series = append(exporter.series, eventSeries{
			id:  def.ID,
			opt: withBase(EventKey.String(EventName(def.Name))),
		})
	}
	observables := []metric.Observable{events}

	for _, def := range internaldefs.HistogramDefs {
		s := latencySeries{id: def.ID}
		s.buckets, err = meter.Int64ObservableGauge(dotted(def.Name)+".bucket",
			metric.WithDescription(def.Help+" Cumulative count per upper bound."))
		if err != nil {
			return nil, fmt.Errorf("create bucket gauge for %s: %w", def.Name, err)
		}
		s.count, err = meter.Int64ObservableGauge(dotted(def.Name)+".count",
			metric.WithDescription(def.Help+" Total samples."))
		if err != nil {
			return nil, fmt.Errorf("create count gauge for %s: %w", def.Name, err)
		}
		for i, bound := range internaldefs.HistogramBounds {
			s.bounds[i] = withBase(BoundKey.String(bound))
		}
		exporter.latency = append(exporter.latency, s)
		observables = append(observables, s.buckets, s.count)
	}

	exporter.auditDropped, err = meter.Int64ObservableCounter(AuditDroppedInstrument,
		metric.WithDescription("Audit events dropped under backpressure or at shutdown."))
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	observables = append(observables, exporter.auditDropped)

	exporter.registration, err = meter.RegisterCallback(exporter.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	return exporter, nil
}

func (e *Exporter) observe(_ context.Context, observer metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()
	for _, s := range e.series {
		observer.ObserveInt64(e.events, int64(snapshot.Counters[s.id]), s.opt)
	}
	for _, s := range e.latency {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[s.id]))
		for i, v := range cumulative {
			observer.ObserveInt64(s.buckets, int64(v), s.bounds[i])
		}
		observer.ObserveInt64(s.count, int64(cumulative[len(cumulative)-1]), e.base)
	}
	observer.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()), e.base)
	return nil
}

// Close unregisters the collection callback.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}

// EventName maps a Prometheus counter name to its "event" attribute value:
// goidentity_login_success_total becomes login_success.
func EventName(name string) string {
	return strings.TrimSuffix(strings.TrimPrefix(name, "goidentity_"), "_total")
}

func dotted(name string) string {
	return strings.ReplaceAll(name, "_", ".")
}
