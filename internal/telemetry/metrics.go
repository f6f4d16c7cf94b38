// Package telemetry counts execution events with OpenTelemetry metrics.
package telemetry

import (
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/roach88/deployer/internal/engine"
)

// Metric names.
const (
	TransactionsSent           = "deployer.transactions.sent"
	TransactionsConfirmed      = "deployer.transactions.confirmed"
	TransactionsFeeBumps       = "deployer.transactions.fee_bumps"
	TransactionsDropped        = "deployer.transactions.dropped"
	TransactionsTimeouts       = "deployer.transactions.timeouts"
	TransactionsReplacedByUser = "deployer.transactions.replaced_by_user"
	FuturesCompleted           = "deployer.futures.completed"
)

// MetricsListener is an engine listener that counts transactions and
// completed futures.
type MetricsListener struct {
	counters  map[engine.EventType]metric.Int64Counter
	completed metric.Int64Counter
}

// NewMetricsListener creates the counters on meter.
func NewMetricsListener(meter metric.Meter) (*MetricsListener, error) {
	l := &MetricsListener{counters: make(map[engine.EventType]metric.Int64Counter)}
	for _, c := range []struct {
		event engine.EventType
		name  string
		desc  string
	}{
		{engine.EventTransactionSend, TransactionsSent, "Transactions sent"},
		{engine.EventTransactionConfirm, TransactionsConfirmed, "Transactions confirmed"},
		{engine.EventBumpFees, TransactionsFeeBumps, "Fee bumps"},
		{engine.EventDropped, TransactionsDropped, "Interactions whose transactions were dropped"},
		{engine.EventTimeout, TransactionsTimeouts, "Interactions that timed out"},
		{engine.EventReplacedByUser, TransactionsReplacedByUser, "Interactions replaced by a user transaction"},
	} {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", c.name, err)
		}
		l.counters[c.event] = counter
	}
	completed, err := meter.Int64Counter(FuturesCompleted, metric.WithDescription("Futures completed, by status"))
	if err != nil {
		return nil, fmt.Errorf("create counter %s: %w", FuturesCompleted, err)
	}
	l.completed = completed
	return l, nil
}

// HandleEvent implements engine.Listener.
func (l *MetricsListener) HandleEvent(e engine.Event) {
	ctx := context.Background()
	if e.Type == engine.EventFutureComplete {
		l.completed.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(e.Status))))
		return
	}
	if c, ok := l.counters[e.Type]; ok {
		c.Add(ctx, 1)
	}
}

// Recorder keeps metrics in memory so the CLI can print them after a run.
type Recorder struct {
	*MetricsListener
	reader   *sdkmetric.ManualReader
	provider *sdkmetric.MeterProvider
}

// NewRecorder creates a listener backed by an in-memory meter provider.
func NewRecorder() (*Recorder, error) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	l, err := NewMetricsListener(provider.Meter("github.com/roach88/deployer"))
	if err != nil {
		return nil, err
	}
	return &Recorder{MetricsListener: l, reader: reader, provider: provider}, nil
}

// Sample is one counter value.
type Sample struct {
	Name   string `json:"name"`
	Status string `json:"status,omitempty"`
	Value  int64  `json:"value"`
}

// Collect returns the current counter values sorted by name and status.
func (r *Recorder) Collect(ctx context.Context) ([]Sample, error) {
	var rm metricdata.ResourceMetrics
	if err := r.reader.Collect(ctx, &rm); err != nil {
		return nil, fmt.Errorf("collect metrics: %w", err)
	}
	var out []Sample
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				s := Sample{Name: m.Name, Value: dp.Value}
				if v, ok := dp.Attributes.Value("status"); ok {
					s.Status = v.AsString()
				}
				out = append(out, s)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Status < out[j].Status
	})
	return out, nil
}

// Shutdown releases the meter provider.
func (r *Recorder) Shutdown(ctx context.Context) error {
	return r.provider.Shutdown(ctx)
}
