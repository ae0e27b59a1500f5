// Package proxymetrics defines prometheus metric types and provides convenience
// methods to add accounting to the codec and proxy pipeline.
//
// When defining new operations or metrics, these are helpful values to track:
//  - things coming into or go out of the system: messages decoded, attributes synthesized.
//  - the success or error status of any of the above.
//  - the distribution of processing latency.
package proxymetrics

import (
	"log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DecodeTimeHistogram tracks the latency of decoding one message, by family.
	DecodeTimeHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "rtnlproxy_decode_time_histogram",
			Help: "message decode latency distribution (seconds)",
			Buckets: []float64{
				0.00001, 0.0000125, 0.000016, 0.00002, 0.000025, 0.000032, 0.00004, 0.00005,
				0.0001, 0.000125, 0.00016, 0.0002, 0.00025, 0.00032, 0.0004, 0.0005,
				0.001, 0.00125, 0.0016, 0.002, 0.0025, 0.0032, 0.004, 0.005,
			},
		},
		[]string{"family"})

	// EncodeTimeHistogram tracks the latency of encoding one message, by family.
	EncodeTimeHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "rtnlproxy_encode_time_histogram",
			Help: "message encode latency distribution (seconds)",
			Buckets: []float64{
				0.00001, 0.0000125, 0.000016, 0.00002, 0.000025, 0.000032, 0.00004, 0.00005,
				0.0001, 0.000125, 0.00016, 0.0002, 0.00025, 0.00032, 0.0004, 0.0005,
				0.001, 0.00125, 0.0016, 0.002, 0.0025, 0.0032, 0.004, 0.005,
			},
		},
		[]string{"family"})

	// BackendLatencyHistogram tracks the latency of an emulation backend call
	// (sysfs I/O, subprocess invocation, ioctl), labeled by backend name.
	BackendLatencyHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "rtnlproxy_backend_latency_histogram",
			Help: "emulation backend call latency distribution (seconds)",
			Buckets: []float64{
				0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005,
				0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5,
			},
		},
		[]string{"backend"})

	// VerdictCount counts proxy verdicts by operation and outcome
	// ("forward", "local", "error").
	//
	// Example usage:
	//   proxymetrics.VerdictCount.With(prometheus.Labels{"op": "newlink", "verdict": "forward"}).Inc()
	VerdictCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rtnlproxy_verdict_total",
			Help: "The total number of proxy verdicts, by operation and outcome.",
		}, []string{"op", "verdict"})

	// ErrorCount measures the number of errors encountered by the codec or proxy.
	//
	// Example usage:
	//   proxymetrics.ErrorCount.With(prometheus.Labels{"type": "decode"}).Inc()
	ErrorCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rtnlproxy_error_total",
			Help: "The total number of errors encountered.",
		}, []string{"type"})

	// SysfsSkipCount counts per-attribute sysfs reads silently skipped
	// during dump enrichment.
	SysfsSkipCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rtnlproxy_sysfs_skip_total",
			Help: "Number of sysfs reads skipped during dump enrichment.",
		},
	)
)

// init() prints a log message to let the user know that the package has been
// loaded and the metrics registered. The metrics are auto-registered, which
// means they are registered as soon as this package is loaded, and the exact
// time this occurs (and whether this occurs at all in a given context) can be
// opaque.
func init() {
	log.Println("Prometheus metrics in rtnl-proxy.proxymetrics are registered.")
}
