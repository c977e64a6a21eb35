// monitor/monitor.go
package monitor

import (
	"expvar"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Engine-level counters, registered once per process. They live at
// package level because stage transitions happen deep inside the game
// engine where no Monitor instance is threaded through.
var (
	ActionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "blackjack",
		Name:      "actions_total",
		Help:      "Total number of player actions by action name",
	}, []string{"action"})

	StageTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "blackjack",
		Name:      "stage_transitions_total",
		Help:      "Total number of committed stage transitions by target stage",
	}, []string{"stage"})

	EventsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "blackjack",
		Name:      "events_dropped_total",
		Help:      "Total number of events dropped for slow subscribers",
	})
)

func init() {
	prometheus.MustRegister(ActionsTotal, StageTransitions, EventsDropped)
}

// Monitor 服务器监控
type Monitor struct {
	onlinePlayers  prometheus.Gauge
	activeRooms    prometheus.Gauge
	actionsHandled prometheus.Counter
	actionLatency  prometheus.Histogram

	startTime   time.Time
	actionCount int64
	mutex       sync.Mutex
}

func NewMonitor(namespace string) *Monitor {
	m := &Monitor{
		onlinePlayers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_players",
			Help:      "Number of connected players",
		}),
		activeRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_rooms",
			Help:      "Number of rooms with a running game",
		}),
		actionsHandled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Total number of client messages received",
		}),
		actionLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "message_latency_seconds",
			Help:      "Client message processing latency",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 10),
		}),
		startTime: time.Now(),
	}

	prometheus.MustRegister(
		m.onlinePlayers,
		m.activeRooms,
		m.actionsHandled,
		m.actionLatency,
	)

	return m
}

func (m *Monitor) StartServer(addr string) {
	http.Handle("/metrics", promhttp.Handler())

	// 添加expvar指标
	expvar.Publish("uptime", expvar.Func(func() interface{} {
		return time.Since(m.startTime).Seconds()
	}))

	expvar.Publish("messages", expvar.Func(func() interface{} {
		m.mutex.Lock()
		defer m.mutex.Unlock()
		return m.actionCount
	}))

	go http.ListenAndServe(addr, nil)
}

func (m *Monitor) IncOnlinePlayers() {
	m.onlinePlayers.Inc()
}

func (m *Monitor) DecOnlinePlayers() {
	m.onlinePlayers.Dec()
}

func (m *Monitor) SetActiveRooms(count int) {
	m.activeRooms.Set(float64(count))
}

func (m *Monitor) IncMessagesReceived() {
	m.actionsHandled.Inc()
	m.mutex.Lock()
	m.actionCount++
	m.mutex.Unlock()
}

func (m *Monitor) ObserveMessageLatency(duration time.Duration) {
	m.actionLatency.Observe(duration.Seconds())
}
