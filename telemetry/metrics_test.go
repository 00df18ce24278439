package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestHelpersBeforeInit(t *testing.T) {
	// Helpers must be safe when collectors are not registered yet.
	if PlaysStarted != nil {
		t.Skip("Init already ran in this test binary")
	}
	PlayStarted()
	ResolveFailed()
	ChatCommand("play")
	ObserveResolve(time.Second)
	SetPlayerQueueDepth(3)
	SetPlaying(true)
}

func TestCountersIncrement(t *testing.T) {
	Init()

	tests := []struct {
		name    string
		counter prometheus.Counter
		fn      func()
	}{
		{"plays_started", PlaysStarted, PlayStarted},
		{"plays_finished", PlaysFinished, PlayFinished},
		{"plays_abandoned", PlaysAbandoned, PlayAbandoned},
		{"play_retries", PlayRetries, PlayRetried},
		{"process_crashes", ProcessCrashes, ProcessCrashed},
		{"resolve_failures", ResolveFailures, ResolveFailed},
		{"spawn_failures", SpawnFailures, SpawnFailed},
		{"tips", TipsReceived, TipReceived},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := testutil.ToFloat64(tt.counter)
			tt.fn()
			if got := testutil.ToFloat64(tt.counter); got != before+1 {
				t.Errorf("%s = %v, want %v", tt.name, got, before+1)
			}
		})
	}
}

func TestChatCommandLabels(t *testing.T) {
	Init()
	before := testutil.ToFloat64(ChatCommands.WithLabelValues("play"))
	ChatCommand("play")
	ChatCommand("play")
	ChatCommand("stop")
	if got := testutil.ToFloat64(ChatCommands.WithLabelValues("play")); got != before+2 {
		t.Errorf("play commands = %v, want %v", got, before+2)
	}
}

func TestGauges(t *testing.T) {
	Init()

	SetPlayerQueueDepth(7)
	if got := testutil.ToFloat64(QueueDepthGauge); got != 7 {
		t.Errorf("queue depth = %v, want 7", got)
	}
	SetPlaying(true)
	if got := testutil.ToFloat64(PlayingGauge); got != 1 {
		t.Errorf("playing = %v, want 1", got)
	}
	SetPlaying(false)
	if got := testutil.ToFloat64(PlayingGauge); got != 0 {
		t.Errorf("playing = %v, want 0", got)
	}
}

func TestTimeFuncRecordsObservation(t *testing.T) {
	testHistogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_duration_seconds",
		Help:    "Test duration",
		Buckets: prometheus.DefBuckets,
	})

	executed := false
	duration := TimeFunc(testHistogram, func() {
		time.Sleep(10 * time.Millisecond)
		executed = true
	})
	if !executed {
		t.Error("TimeFunc did not execute provided function")
	}
	if duration < 10*time.Millisecond {
		t.Errorf("TimeFunc duration = %v, want >= 10ms", duration)
	}

	metric := &dto.Metric{}
	if err := testHistogram.Write(metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.Histogram == nil || metric.Histogram.GetSampleCount() != 1 {
		t.Errorf("expected one observation, got %v", metric.Histogram)
	}
}

func TestCorrelation(t *testing.T) {
	ctx := context.Background()
	if got := GetCorrelation(ctx); got != "" {
		t.Errorf("empty context corr = %q", got)
	}
	ctx = WithCorrelation(ctx, "abc-123")
	if got := GetCorrelation(ctx); got != "abc-123" {
		t.Errorf("corr = %q, want abc-123", got)
	}
	if LoggerWithCorr(ctx) == nil {
		t.Error("LoggerWithCorr returned nil")
	}
}

func TestTracingDisabledWithoutEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	shutdown, err := InitTracing("roomcast-test", "0.0.0")
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	shutdown()
	if IsTracingEnabled() {
		t.Error("tracing should stay disabled without an endpoint")
	}

	// No-op provider spans must still be usable.
	_, span := StartSpan(WithCorrelation(context.Background(), "c1"), "test", "noop")
	SetSpanSuccess(span)
	SetSpanHTTPStatus(span, 500)
	span.End()
}
