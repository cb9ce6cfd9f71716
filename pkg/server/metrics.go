package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus metric descriptors for the game server.
type Metrics struct {
	game      *Game
	startTime time.Time

	playersConnected *prometheus.GaugeVec
	objectsTotal     prometheus.Gauge
	commandsTotal    prometheus.Counter
	commandsDropped  prometheus.Counter
	queueDepth       *prometheus.GaugeVec
	pidsInUse        prometheus.Gauge
	uptimeSeconds    prometheus.Gauge
	memoryHeapBytes  prometheus.Gauge
	goroutines       prometheus.Gauge
}

// NewMetrics creates and registers Prometheus metrics for the game.
func NewMetrics(game *Game, startTime time.Time) *Metrics {
	m := &Metrics{
		game:      game,
		startTime: startTime,
		playersConnected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mushqd_players_connected",
			Help: "Number of currently connected players by transport.",
		}, []string{"transport"}),
		objectsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mushqd_objects_total",
			Help: "Total number of objects in the database.",
		}),
		commandsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mushqd_commands_processed_total",
			Help: "Total queue entries dispatched since server start.",
		}),
		commandsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mushqd_commands_dropped_total",
			Help: "Commands dropped by the per-object rate limiter.",
		}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mushqd_queue_depth",
			Help: "Current command queue depth by type.",
		}, []string{"queue_type"}),
		pidsInUse: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mushqd_queue_pids_in_use",
			Help: "Queue PIDs currently allocated.",
		}),
		uptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mushqd_uptime_seconds",
			Help: "Server uptime in seconds.",
		}),
		memoryHeapBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mushqd_memory_heap_bytes",
			Help: "Go heap memory allocated in bytes.",
		}),
		goroutines: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mushqd_goroutines",
			Help: "Number of active goroutines.",
		}),
	}

	prometheus.MustRegister(
		m.playersConnected,
		m.objectsTotal,
		m.commandsTotal,
		m.commandsDropped,
		m.queueDepth,
		m.pidsInUse,
		m.uptimeSeconds,
		m.memoryHeapBytes,
		m.goroutines,
	)

	return m
}

// CommandDispatched bumps the executed-command counter.
func (m *Metrics) CommandDispatched() {
	if m != nil {
		m.commandsTotal.Inc()
	}
}

// CommandDropped bumps the rate-limiter drop counter.
func (m *Metrics) CommandDropped() {
	if m != nil {
		m.commandsDropped.Inc()
	}
}

// Update refreshes all gauge metrics from current game state.
func (m *Metrics) Update() {
	var tcp, ws int
	for _, d := range m.game.Conns.AllDescriptors() {
		if d.State != ConnConnected {
			continue
		}
		if d.Transport == TransportWebSocket {
			ws++
		} else {
			tcp++
		}
	}
	m.playersConnected.WithLabelValues("tcp").Set(float64(tcp))
	m.playersConnected.WithLabelValues("websocket").Set(float64(ws))

	m.objectsTotal.Set(float64(len(m.game.DB.Objects)))

	player, object, wait, semaphore, pids := m.game.Sched.Stats()
	m.queueDepth.WithLabelValues("player").Set(float64(player))
	m.queueDepth.WithLabelValues("object").Set(float64(object))
	m.queueDepth.WithLabelValues("wait").Set(float64(wait))
	m.queueDepth.WithLabelValues("semaphore").Set(float64(semaphore))
	m.pidsInUse.Set(float64(pids))

	m.uptimeSeconds.Set(time.Since(m.startTime).Seconds())

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	m.memoryHeapBytes.Set(float64(mem.HeapAlloc))
	m.goroutines.Set(float64(runtime.NumGoroutine()))
}

// Handler returns an http.Handler that updates metrics before serving them.
func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.Update()
		promhttp.Handler().ServeHTTP(w, r)
	})
}
