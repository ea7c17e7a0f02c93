// monitor/monitor.go
package monitor

import (
	"context"
	"errors"
	"expvar"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wfunc/soccerserver/logger"
)

const namespace = "soccer"

type Metrics struct {
	OnlinePlayers prometheus.Gauge
	ActiveRooms   prometheus.Gauge
	Ticks         prometheus.Counter
	TickDuration  prometheus.Histogram
	Goals         *prometheus.CounterVec
	RoomFull      prometheus.Counter
	PublishErrors prometheus.Counter
	Inputs        prometheus.Counter
	InvalidInputs prometheus.Counter
	MirrorDropped prometheus.Counter
	MatchesPlayed prometheus.Counter
	registry      prometheus.Gatherer
}

// NewMetrics registers the engine collectors on reg. Tests pass a fresh prometheus.NewRegistry().
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		OnlinePlayers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_players",
			Help:      "Number of players in rooms",
		}),
		ActiveRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_rooms",
			Help:      "Number of live rooms",
		}),
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Total number of room ticks simulated",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Time spent advancing one room by one tick",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 2, 14),
		}),
		Goals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "goals_total",
			Help:      "Goals scored, by team",
		}, []string{"team"}),
		RoomFull: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "room_full_total",
			Help:      "Join attempts rejected because the room was full",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Snapshot publish failures",
		}),
		Inputs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inputs_total",
			Help:      "Input events applied",
		}),
		InvalidInputs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invalid_inputs_total",
			Help:      "Malformed input events rejected",
		}),
		MirrorDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mirror_dropped_total",
			Help:      "Persistence writes dropped because the queue was full",
		}),
		MatchesPlayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_total",
			Help:      "Matches played to the final whistle",
		}),
		registry: reg,
	}

	reg.MustRegister(
		m.OnlinePlayers,
		m.ActiveRooms,
		m.Ticks,
		m.TickDuration,
		m.Goals,
		m.RoomFull,
		m.PublishErrors,
		m.Inputs,
		m.InvalidInputs,
		m.MirrorDropped,
		m.MatchesPlayed,
	)
	return m
}

// Handler serves the collectors registered by NewMetrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

var publishOnce sync.Once

type Monitor struct {
	metrics   *Metrics
	startTime time.Time
	server    *http.Server
}

func NewMonitor(metrics *Metrics) *Monitor {
	return &Monitor{
		metrics:   metrics,
		startTime: time.Now(),
	}
}

// Mux exposes /metrics and the expvar page.
func (m *Monitor) Mux() *http.ServeMux {
	// 添加expvar指标
	publishOnce.Do(func() {
		start := m.startTime
		expvar.Publish("uptime", expvar.Func(func() interface{} {
			return time.Since(start).Seconds()
		}))
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.metrics.Handler())
	mux.Handle("/debug/vars", expvar.Handler())
	return mux
}

func (m *Monitor) StartServer(addr string) {
	m.server = &http.Server{Addr: addr, Handler: m.Mux(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := m.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Errorf("metrics server: %v", err)
		}
	}()
}

func (m *Monitor) Shutdown(ctx context.Context) error {
	if m.server == nil {
		return nil
	}
	return m.server.Shutdown(ctx)
}
