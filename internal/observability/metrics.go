package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Line outcomes.
const (
	LineParsed    = "parsed"
	LineMalformed = "malformed"
	LineTooLong   = "too_long"
)

// Reasons a response is not written.
const (
	DropBudget  = "budget"
	DropTooLong = "too_long"
	DropInvalid = "invalid"
)

// Handler failure kinds.
const (
	FailError = "error"
	FailPanic = "panic"
)

var (
	registerOnce sync.Once

	linesRead = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ircctl",
			Subsystem: "engine",
			Name:      "lines_total",
			Help:      "Lines read from the server by outcome.",
		},
		[]string{"outcome"},
	)
	dispatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ircctl",
			Subsystem: "engine",
			Name:      "dispatches_total",
			Help:      "Dispatched messages by command and whether any handler matched.",
		},
		[]string{"command", "matched"},
	)
	dispatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "ircctl",
			Subsystem: "engine",
			Name:      "dispatch_duration_seconds",
			Help:      "Time from parse to the last response write.",
			Buckets:   prometheus.DefBuckets,
		},
	)
	handlerCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ircctl",
			Subsystem: "handler",
			Name:      "invocations_total",
			Help:      "Handler invocations by plugin.",
		},
		[]string{"plugin"},
	)
	handlerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ircctl",
			Subsystem: "handler",
			Name:      "failures_total",
			Help:      "Handler failures absorbed as zero responses.",
		},
		[]string{"plugin", "kind"},
	)
	responsesSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ircctl",
			Subsystem: "engine",
			Name:      "responses_sent_total",
			Help:      "Response lines written to the server.",
		},
	)
	responsesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ircctl",
			Subsystem: "engine",
			Name:      "responses_dropped_total",
			Help:      "Responses not written, by reason.",
		},
		[]string{"reason"},
	)
	pluginsRegistered = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ircctl",
			Subsystem: "plugins",
			Name:      "registered",
			Help:      "Handlers in the active registry.",
		},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ircctl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests to the metrics endpoint.",
		},
		[]string{"method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			linesRead,
			dispatches,
			dispatchDuration,
			handlerCalls,
			handlerFailures,
			responsesSent,
			responsesDropped,
			pluginsRegistered,
			httpRequests,
		)
	})
}

func RecordLine(outcome string) {
	RegisterMetrics()
	linesRead.WithLabelValues(outcome).Inc()
}

func RecordDispatch(command string, matched int, duration time.Duration) {
	RegisterMetrics()
	dispatches.WithLabelValues(command, strconv.FormatBool(matched > 0)).Inc()
	dispatchDuration.Observe(duration.Seconds())
}

func RecordHandler(plugin string) {
	RegisterMetrics()
	handlerCalls.WithLabelValues(plugin).Inc()
}

func RecordHandlerFailure(plugin, kind string) {
	RegisterMetrics()
	handlerFailures.WithLabelValues(plugin, kind).Inc()
}

func RecordResponseSent() {
	RegisterMetrics()
	responsesSent.Inc()
}

func RecordResponseDropped(reason string) {
	RegisterMetrics()
	responsesDropped.WithLabelValues(reason).Inc()
}

func SetPluginsRegistered(n int) {
	RegisterMetrics()
	pluginsRegistered.Set(float64(n))
}

func RecordHTTPRequest(method, path string, status int) {
	RegisterMetrics()
	httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
}
