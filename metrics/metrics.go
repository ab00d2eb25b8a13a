// Package metrics holds the Prometheus collectors shared by every component.
// They are registered on Registry rather than the global default so that a
// process embedding this module decides what it exposes.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mini_jsonrpc"

var Registry = prometheus.NewRegistry()

var (
	Connections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "transport",
		Name:      "open_connections",
		Help:      "Connections currently open, inbound and outbound.",
	})

	FramesRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "transport",
		Name:      "frames_rejected_total",
		Help:      "Inbound frames that caused the connection to be shut down.",
	}, []string{"reason"})

	UnhandledMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "dispatcher",
		Name:      "unhandled_messages_total",
		Help:      "Messages dropped by the dispatcher, by kind and reason.",
	}, []string{"kind", "reason"})

	PendingCalls = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "requestor",
		Name:      "pending_calls",
		Help:      "Outbound requests waiting for a response.",
	})

	RPCRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rpc",
		Name:      "requests_total",
		Help:      "RPC requests served, by method and result code.",
	}, []string{"method", "rcode"})

	RPCDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "rpc",
		Name:      "request_duration_seconds",
		Help:      "Time spent in the server handler chain.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})

	RegistryEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "registry",
		Name:      "events_total",
		Help:      "Registry operations and notifications, by event.",
	}, []string{"event"})

	Providers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "registry",
		Name:      "providers",
		Help:      "Connections currently registered as providers.",
	})

	TopicPublishes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "topic",
		Name:      "publishes_total",
		Help:      "Publish requests, by result.",
	}, []string{"result"})

	TopicDeliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "topic",
		Name:      "deliveries_total",
		Help:      "Per-subscriber deliveries, by result.",
	}, []string{"result"})

	Topics = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "topic",
		Name:      "topics",
		Help:      "Topics currently known to the engine.",
	})
)

func init() {
	Registry.MustRegister(
		Connections,
		FramesRejected,
		UnhandledMessages,
		PendingCalls,
		RPCRequests,
		RPCDuration,
		RegistryEvents,
		Providers,
		TopicPublishes,
		TopicDeliveries,
		Topics,
		collectors.NewGoCollector(),
	)
}

// Handler serves Registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
