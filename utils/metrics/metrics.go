package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"go.uber.org/zap"
)

const Namespace = "orderarb"

var (
	registry = prometheus.NewRegistry()
	logger   *zap.Logger
)

// Initialize makes the package registry the default registerer and adds the
// process and Go runtime collectors to it.
func Initialize(log *zap.Logger) {
	logger = log
	prometheus.DefaultRegisterer = registry
	for _, c := range []prometheus.Collector{
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	} {
		if err := registry.Register(c); err != nil {
			logger.Debug("Collector already registered", zap.Error(err))
		}
	}
}

// Registry returns the registry metric groups should be registered with.
func Registry() *prometheus.Registry {
	return registry
}

// Handler serves the package registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// ScanMetrics tracks order-book scanning. A nil registerer builds unregistered
// collectors, which is what tests use.
type ScanMetrics struct {
	Cycles        prometheus.Counter
	CycleErrors   prometheus.Counter
	CycleDuration prometheus.Histogram
	DroppedTicks  prometheus.Counter
	OrdersFetched *prometheus.CounterVec
	OrdersSkipped *prometheus.CounterVec
	Quotes        prometheus.Counter
	Evaluated     *prometheus.CounterVec
	Opportunities prometheus.Counter
	NetProfit     prometheus.Histogram
	LedgerSize    prometheus.Gauge
}

func NewScanMetrics(reg prometheus.Registerer, namespace string) *ScanMetrics {
	factory := promauto.With(reg)
	return &ScanMetrics{
		Cycles: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scan_cycles_total",
			Help:      "Total number of completed scan cycles",
		}),
		CycleErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scan_cycle_errors_total",
			Help:      "Total number of scan cycles aborted by an error",
		}),
		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_cycle_duration_seconds",
			Help:      "Duration of scan cycles",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		DroppedTicks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_dropped_ticks_total",
			Help:      "Timer ticks dropped because a cycle was still running",
		}),
		OrdersFetched: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_fetched_total",
			Help:      "Orders returned by the order book",
		}, []string{"pair"}),
		OrdersSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_skipped_total",
			Help:      "Orders skipped before or during evaluation by reason",
		}, []string{"reason"}),
		Quotes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quotes_total",
			Help:      "Aggregator quotes requested",
		}),
		Evaluated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_evaluated_total",
			Help:      "Orders that reached profit evaluation by fee class",
		}, []string{"fee"}),
		Opportunities: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "opportunities_total",
			Help:      "Feasible opportunities found",
		}),
		NetProfit: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "net_profit_wei",
			Help:      "Net profit of evaluated orders in wei of the input asset",
			Buckets:   prometheus.ExponentialBuckets(1e12, 10, 8),
		}),
		LedgerSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dedup_ledger_size",
			Help:      "Order fingerprints currently held by the dedup ledger",
		}),
	}
}

// ExecutionMetrics tracks trade submission.
type ExecutionMetrics struct {
	Attempts      prometheus.Counter
	Successes     prometheus.Counter
	Failures      *prometheus.CounterVec
	DryRuns       prometheus.Counter
	ExecutionTime prometheus.Histogram
}

func NewExecutionMetrics(reg prometheus.Registerer, namespace string) *ExecutionMetrics {
	factory := promauto.With(reg)
	return &ExecutionMetrics{
		Attempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trade_attempts_total",
			Help:      "Total number of trade submissions attempted",
		}),
		Successes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trade_successes_total",
			Help:      "Total number of trades submitted successfully",
		}),
		Failures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trade_failures_total",
			Help:      "Total number of failed trade submissions by stage",
		}, []string{"stage"}),
		DryRuns: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trade_dry_runs_total",
			Help:      "Trades built but not submitted because of dry-run mode",
		}),
		ExecutionTime: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "trade_execution_seconds",
			Help:      "Time taken to build and submit a trade",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// CounterValue reads the current value of a counter.
func CounterValue(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	if err := c.Write(m); err != nil || m.Counter == nil {
		return 0
	}
	return m.Counter.GetValue()
}
