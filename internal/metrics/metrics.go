// Package metrics registers the counters and timers the rest of the
// service increments, using go-ethereum/metrics the way
// core/vote/vote_signer.go registers votesSigningErrorCounter, and
// exposes them to Prometheus via client_golang (spec's ambient
// observability stack).
package metrics

import (
	"net/http"

	"github.com/ethereum/go-ethereum/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// QueryRequests counts inbound GraphQL query resolutions, as one
	// total across all operations (spec §4.4).
	QueryRequests = metrics.NewRegisteredCounter("query/requests", nil)
	// QueryErrors counts query resolutions that returned an error to
	// the caller.
	QueryErrors = metrics.NewRegisteredCounter("query/errors", nil)
	// CacheHits / CacheMisses track the stale-while-revalidate read
	// path's hit rate.
	CacheHits   = metrics.NewRegisteredCounter("query/cache_hits", nil)
	CacheMisses = metrics.NewRegisteredCounter("query/cache_misses", nil)

	// DispatchFetches counts every upstream Fetch call the dispatch
	// engine makes, regardless of outcome.
	DispatchFetches = metrics.NewRegisteredCounter("dispatch/fetches", nil)
	// DispatchErrors counts upstream Fetch calls that returned an error.
	DispatchErrors = metrics.NewRegisteredCounter("dispatch/errors", nil)
	// DispatchLatency times a full fetch_all run end to end.
	DispatchLatency = metrics.NewRegisteredTimer("dispatch/latency", nil)

	// RefetchQueueDepth samples the background refetch queue's length.
	RefetchQueueDepth = metrics.NewRegisteredGauge("refetch/queue_depth", nil)
	// RefetchDropped counts refetches dropped because the queue was full.
	RefetchDropped = metrics.NewRegisteredCounter("refetch/dropped", nil)

	// StoreWrites / StoreWriteErrors track the graph store's write path.
	StoreWrites      = metrics.NewRegisteredCounter("store/writes", nil)
	StoreWriteErrors = metrics.NewRegisteredCounter("store/write_errors", nil)
)

// PrometheusHandler exposes go-ethereum's default metrics registry
// through client_golang's exposition format, for the same
// /debug/metrics style endpoint the teacher registers under its node.
func PrometheusHandler() http.Handler {
	registry := prometheus.NewRegistry()
	registry.MustRegister(&goEthereumCollector{})
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// goEthereumCollector bridges go-ethereum's own metrics.DefaultRegistry
// into client_golang's Collector interface so both ecosystems' metrics
// libraries can coexist without every call site choosing one.
type goEthereumCollector struct{}

func (c *goEthereumCollector) Describe(ch chan<- *prometheus.Desc) {}

func (c *goEthereumCollector) Collect(ch chan<- prometheus.Metric) {
	metrics.DefaultRegistry.Each(func(name string, i any) {
		switch m := i.(type) {
		case metrics.Counter:
			ch <- prometheus.MustNewConstMetric(
				prometheus.NewDesc(sanitize(name), name, nil, nil),
				prometheus.CounterValue, float64(m.Count()))
		case metrics.Gauge:
			ch <- prometheus.MustNewConstMetric(
				prometheus.NewDesc(sanitize(name), name, nil, nil),
				prometheus.GaugeValue, float64(m.Value()))
		case metrics.Timer:
			ch <- prometheus.MustNewConstMetric(
				prometheus.NewDesc(sanitize(name), name, nil, nil),
				prometheus.GaugeValue, m.Mean())
		}
	})
}

func sanitize(name string) string {
	out := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			out[i] = c
		} else {
			out[i] = '_'
		}
	}
	return "relationservice_" + string(out)
}
