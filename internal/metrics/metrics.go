package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Task metrics
	TasksStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statefultask_tasks_started_total",
			Help: "Total number of tasks started via Run",
		},
		[]string{"engine"},
	)

	TasksFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statefultask_tasks_finished_total",
			Help: "Total number of tasks that reached a terminal state",
		},
		[]string{"outcome"},
	)

	MultiplexCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statefultask_multiplex_calls_total",
			Help: "Total number of multiplex steps dispatched",
		},
		[]string{"engine"},
	)

	TaskMigrations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statefultask_task_migrations_total",
			Help: "Total number of tasks moved between engines",
		},
		[]string{"from", "to"},
	)

	SignalsDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "statefultask_signals_delivered_total",
			Help: "Total number of signals that woke a waiting task",
		},
	)

	SignalsPending = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "statefultask_signals_pending_total",
			Help: "Total number of signals recorded as a pending wake on an active task",
		},
	)

	// Engine metrics
	EngineQueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "statefultask_engine_queue_depth",
			Help: "Current number of tasks queued on an engine",
		},
		[]string{"engine"},
	)

	MainloopDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "statefultask_mainloop_duration_seconds",
			Help:    "Duration of one mainloop invocation",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 15), // 0.1ms to ~1.6s
		},
		[]string{"engine"},
	)

	EngineFlushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statefultask_engine_flushes_total",
			Help: "Total number of engine flushes",
		},
		[]string{"engine"},
	)

	// Timer metrics
	TimersStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "statefultask_timers_started_total",
			Help: "Total number of timers pushed onto a timer queue",
		},
	)

	TimersExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "statefultask_timers_expired_total",
			Help: "Total number of timers that fired",
		},
	)

	TimersCancelled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "statefultask_timers_cancelled_total",
			Help: "Total number of timers cancelled before expiring",
		},
	)

	// HTTP metrics
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "statefultask_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statefultask_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// WebSocket metrics
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "statefultask_websocket_connections",
			Help: "Current number of WebSocket connections",
		},
	)

	WebSocketMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statefultask_websocket_messages_total",
			Help: "Total number of WebSocket messages sent",
		},
		[]string{"type"},
	)
)

// RecordTaskStart records a task entering the scheduler
func RecordTaskStart(engine string) {
	TasksStarted.WithLabelValues(engine).Inc()
}

// RecordTaskFinish records a task reaching a terminal state
func RecordTaskFinish(outcome string) {
	TasksFinished.WithLabelValues(outcome).Inc()
}

// RecordMultiplex records one dispatched multiplex step
func RecordMultiplex(engine string) {
	MultiplexCalls.WithLabelValues(engine).Inc()
}

// RecordMigration records a task moving between engines
func RecordMigration(from, to string) {
	TaskMigrations.WithLabelValues(from, to).Inc()
}

// RecordSignal records a signal, delivered or deferred
func RecordSignal(delivered bool) {
	if delivered {
		SignalsDelivered.Inc()
	} else {
		SignalsPending.Inc()
	}
}

// UpdateEngineQueueDepth updates the queue depth gauge for an engine
func UpdateEngineQueueDepth(engine string, depth float64) {
	EngineQueueDepth.WithLabelValues(engine).Set(depth)
}

// RecordMainloopDuration records the duration of one mainloop invocation
func RecordMainloopDuration(engine string, seconds float64) {
	MainloopDuration.WithLabelValues(engine).Observe(seconds)
}

// RecordEngineFlush records a flush
func RecordEngineFlush(engine string) {
	EngineFlushes.WithLabelValues(engine).Inc()
}

// RecordTimerStart records a timer push
func RecordTimerStart() {
	TimersStarted.Inc()
}

// RecordTimerExpired records a fired timer
func RecordTimerExpired() {
	TimersExpired.Inc()
}

// RecordTimerCancelled records a cancelled timer
func RecordTimerCancelled() {
	TimersCancelled.Inc()
}

// RecordHTTPRequest records an HTTP request
func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration)
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
}

// SetWebSocketConnections sets the WebSocket connections gauge
func SetWebSocketConnections(count float64) {
	WebSocketConnections.Set(count)
}

// RecordWebSocketMessage records a WebSocket message
func RecordWebSocketMessage(msgType string) {
	WebSocketMessages.WithLabelValues(msgType).Inc()
}
