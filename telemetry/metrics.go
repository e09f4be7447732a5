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
	MessagesIngested   *prometheus.CounterVec
	MessagesFiltered   prometheus.Counter
	MessagesSent       *prometheus.CounterVec
	SendFailures       *prometheus.CounterVec
	BroadcastsSent     prometheus.Counter
	PollErrors         *prometheus.CounterVec
	EmoteCacheHits     prometheus.Counter
	EmoteCacheMisses   prometheus.Counter
	DroppedSubscribers prometheus.Counter

	// Gauges
	SubscribersGauge prometheus.Gauge
	ClientUpGauge    *prometheus.GaugeVec

	// Histograms (seconds)
	NowPlayingCycleDuration prometheus.Observer
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		MessagesIngested = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chat_messages_ingested_total", Help: "Chat messages normalized and appended to history"}, []string{"platform"})
		MessagesFiltered = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_messages_filtered_total", Help: "Chat messages dropped by content filters"})
		MessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chat_messages_sent_total", Help: "Outbound chat messages sent"}, []string{"platform"})
		SendFailures = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chat_send_failures_total", Help: "Outbound chat send failures"}, []string{"platform"})
		BroadcastsSent = promauto.NewCounter(prometheus.CounterOpts{Name: "hub_broadcasts_total", Help: "Events fanned out to subscribers"})
		PollErrors = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chat_poll_errors_total", Help: "Polling errors per platform"}, []string{"platform"})
		EmoteCacheHits = promauto.NewCounter(prometheus.CounterOpts{Name: "emote_cache_hits_total", Help: "Emote catalog loads served from the disk cache"})
		EmoteCacheMisses = promauto.NewCounter(prometheus.CounterOpts{Name: "emote_cache_misses_total", Help: "Emote catalog loads that went to the network"})
		DroppedSubscribers = promauto.NewCounter(prometheus.CounterOpts{Name: "hub_subscribers_dropped_total", Help: "Subscribers pruned for not keeping up"})
		SubscribersGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "hub_subscribers", Help: "Currently registered push subscribers"})
		ClientUpGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{Name: "chat_client_connected", Help: "Platform client connected=1 disconnected=0"}, []string{"platform"})
		NowPlayingCycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "nowplaying_cycle_duration_seconds", Help: "Now-playing poll cycle duration seconds", Buckets: prometheus.DefBuckets})
	})
}

// SetSubscribers records the current subscriber count.
func SetSubscribers(n int) {
	if SubscribersGauge != nil {
		SubscribersGauge.Set(float64(n))
	}
}

// SetClientUp flips the per-platform connected gauge.
func SetClientUp(platform string, up bool) {
	if ClientUpGauge == nil {
		return
	}
	v := 0.0
	if up {
		v = 1
	}
	ClientUpGauge.WithLabelValues(platform).Set(v)
}

// CountIngested increments the per-platform ingestion counter if metrics are up.
func CountIngested(platform string) {
	if MessagesIngested != nil {
		MessagesIngested.WithLabelValues(platform).Inc()
	}
}

// CountFiltered increments the filtered-message counter if metrics are up.
func CountFiltered() {
	if MessagesFiltered != nil {
		MessagesFiltered.Inc()
	}
}

// CountBroadcast increments the fan-out counter if metrics are up.
func CountBroadcast() {
	if BroadcastsSent != nil {
		BroadcastsSent.Inc()
	}
}

// CountDropped records pruned subscribers if metrics are up.
func CountDropped(n int) {
	if DroppedSubscribers != nil {
		DroppedSubscribers.Add(float64(n))
	}
}

// CountPollError increments the per-platform poll error counter if metrics are up.
func CountPollError(platform string) {
	if PollErrors != nil {
		PollErrors.WithLabelValues(platform).Inc()
	}
}

// CountSent records an outbound send result if metrics are up.
func CountSent(platform string, ok bool) {
	if ok {
		if MessagesSent != nil {
			MessagesSent.WithLabelValues(platform).Inc()
		}
		return
	}
	if SendFailures != nil {
		SendFailures.WithLabelValues(platform).Inc()
	}
}

// CountEmoteCache records a disk-cache hit or miss if metrics are up.
func CountEmoteCache(hit bool) {
	if hit {
		if EmoteCacheHits != nil {
			EmoteCacheHits.Inc()
		}
		return
	}
	if EmoteCacheMisses != nil {
		EmoteCacheMisses.Inc()
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

// WithCorrelation returns a new context embedding correlation id (if absent) and the id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
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
