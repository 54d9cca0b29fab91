package obs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{Name: "ncstreamer_remote_active_connections", Help: "Open controller connections"})
	PendingRequests   = promauto.NewGauge(prometheus.GaugeOpts{Name: "ncstreamer_remote_pending_requests", Help: "Requests checked in and not yet answered"})
	RequestsTotal     = promauto.NewCounterVec(prometheus.CounterOpts{Name: "ncstreamer_remote_requests_total", Help: "Decoded requests by type"}, []string{"type"})
	ResponsesTotal    = promauto.NewCounterVec(prometheus.CounterOpts{Name: "ncstreamer_remote_responses_total", Help: "Responses written by type"}, []string{"type"})
	ResponsesDropped  = promauto.NewCounter(prometheus.CounterOpts{Name: "ncstreamer_remote_responses_dropped_total", Help: "Responses whose connection was gone"})
	ProtocolErrors    = promauto.NewCounterVec(prometheus.CounterOpts{Name: "ncstreamer_remote_protocol_errors_total", Help: "Dropped inbound frames by reason"}, []string{"reason"})
	SendFailures      = promauto.NewCounter(prometheus.CounterOpts{Name: "ncstreamer_remote_send_failures_total", Help: "Transport errors while writing responses"})
)
