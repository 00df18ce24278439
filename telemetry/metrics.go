// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	PlaysStarted    prometheus.Counter
	PlaysFinished   prometheus.Counter
	PlaysAbandoned  prometheus.Counter
	PlayRetries     prometheus.Counter
	ProcessCrashes  prometheus.Counter
	ResolveFailures prometheus.Counter
	SpawnFailures   prometheus.Counter
	ChatCommands    *prometheus.CounterVec
	TipsReceived    prometheus.Counter

	// Histograms (seconds)
	ResolveDuration prometheus.Observer
	SessionDuration prometheus.Observer

	// Gauges
	QueueDepthGauge prometheus.Gauge
	PlayingGauge    prometheus.Gauge // 1=streaming,0=not
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		PlaysStarted = promauto.NewCounter(prometheus.CounterOpts{Name: "roomcast_plays_started_total", Help: "Number of streamer processes started (including restarts)"})
		PlaysFinished = promauto.NewCounter(prometheus.CounterOpts{Name: "roomcast_plays_finished_total", Help: "Number of streams that reached their natural end"})
		PlaysAbandoned = promauto.NewCounter(prometheus.CounterOpts{Name: "roomcast_plays_abandoned_total", Help: "Number of URLs dropped after exhausting the retry budget"})
		PlayRetries = promauto.NewCounter(prometheus.CounterOpts{Name: "roomcast_play_retries_total", Help: "Number of crash-triggered restarts"})
		ProcessCrashes = promauto.NewCounter(prometheus.CounterOpts{Name: "roomcast_process_crashes_total", Help: "Number of unexpected streamer exits"})
		ResolveFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "roomcast_resolve_failures_total", Help: "Number of URLs that could not be resolved"})
		SpawnFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "roomcast_spawn_failures_total", Help: "Number of streamer processes that failed to start"})
		ChatCommands = promauto.NewCounterVec(prometheus.CounterOpts{Name: "roomcast_chat_commands_total", Help: "Chat commands handled by command name"}, []string{"command"})
		TipsReceived = promauto.NewCounter(prometheus.CounterOpts{Name: "roomcast_tips_received_total", Help: "Number of tips credited to the ledger"})
		ResolveDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "roomcast_resolve_duration_seconds", Help: "URL resolution duration seconds", Buckets: prometheus.DefBuckets})
		SessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "roomcast_session_duration_seconds", Help: "Streamer process lifetime seconds", Buckets: []float64{1, 5, 30, 60, 180, 300, 600, 1800, 3600}})
		QueueDepthGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "roomcast_queue_depth", Help: "Current number of queued URLs"})
		PlayingGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "roomcast_playing", Help: "Streamer active=1 idle=0"})
	})
}

// The helpers below are no-ops until Init has run so packages can be tested
// without registering collectors.

func inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

func PlayStarted()    { inc(PlaysStarted) }
func PlayFinished()   { inc(PlaysFinished) }
func PlayAbandoned()  { inc(PlaysAbandoned) }
func PlayRetried()    { inc(PlayRetries) }
func ProcessCrashed() { inc(ProcessCrashes) }
func ResolveFailed()  { inc(ResolveFailures) }
func SpawnFailed()    { inc(SpawnFailures) }
func TipReceived()    { inc(TipsReceived) }

// ChatCommand counts one handled chat command.
func ChatCommand(name string) {
	if ChatCommands != nil {
		ChatCommands.WithLabelValues(name).Inc()
	}
}

// ObserveResolve records a resolution duration.
func ObserveResolve(d time.Duration) {
	if ResolveDuration != nil {
		ResolveDuration.Observe(d.Seconds())
	}
}

// ObserveSession records how long a streamer process lived.
func ObserveSession(d time.Duration) {
	if SessionDuration != nil {
		SessionDuration.Observe(d.Seconds())
	}
}

// SetPlayerQueueDepth records current queue length.
func SetPlayerQueueDepth(n int) {
	if QueueDepthGauge != nil {
		QueueDepthGauge.Set(float64(n))
	}
}

// SetPlaying sets gauge to 1 while a streamer is active else 0.
func SetPlaying(on bool) {
	if PlayingGauge == nil {
		return
	}
	if on {
		PlayingGauge.Set(1)
	} else {
		PlayingGauge.Set(0)
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context carrying the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
