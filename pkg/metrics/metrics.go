// Package metrics exposes Prometheus instrumentation for the live
// session pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups all counters and gauges for a running client.
type Metrics struct {
	// Capture path
	FramesSent    prometheus.Counter
	FramesDropped prometheus.Counter
	SilenceFrames prometheus.Counter
	AudioBytesIn  prometheus.Counter

	// Playback path
	ChunksScheduled prometheus.Counter
	ChunksCancelled prometheus.Counter
	ChunksDropped   prometheus.Counter
	AudioBytesOut   prometheus.Counter

	// Connection lifecycle
	ReconnectAttempts  prometheus.Counter
	ReconnectExhausted prometheus.Counter
	ActiveSessions     prometheus.Gauge

	// Transcript
	TranscriptItems prometheus.Counter

	SessionDuration prometheus.Histogram
}

// New creates and registers all metrics with the given registerer.
// A nil registerer uses the default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		FramesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "oratio_capture_frames_sent_total",
			Help: "Audio frames sent to the remote service",
		}),
		FramesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "oratio_capture_frames_dropped_total",
			Help: "Audio frames dropped because no connection was open",
		}),
		SilenceFrames: factory.NewCounter(prometheus.CounterOpts{
			Name: "oratio_capture_silence_frames_total",
			Help: "Heartbeat silence frames sent while muted or paused",
		}),
		AudioBytesIn: factory.NewCounter(prometheus.CounterOpts{
			Name: "oratio_audio_bytes_in_total",
			Help: "Encoded audio bytes sent to the service",
		}),
		ChunksScheduled: factory.NewCounter(prometheus.CounterOpts{
			Name: "oratio_playback_chunks_scheduled_total",
			Help: "Agent audio chunks scheduled for playback",
		}),
		ChunksCancelled: factory.NewCounter(prometheus.CounterOpts{
			Name: "oratio_playback_chunks_cancelled_total",
			Help: "Scheduled chunks cancelled by barge-in or session end",
		}),
		ChunksDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "oratio_playback_chunks_dropped_total",
			Help: "Malformed audio chunks dropped before scheduling",
		}),
		AudioBytesOut: factory.NewCounter(prometheus.CounterOpts{
			Name: "oratio_audio_bytes_out_total",
			Help: "Decoded audio bytes received from the service",
		}),
		ReconnectAttempts: factory.NewCounter(prometheus.CounterOpts{
			Name: "oratio_reconnect_attempts_total",
			Help: "Reconnection attempts after unexpected connection loss",
		}),
		ReconnectExhausted: factory.NewCounter(prometheus.CounterOpts{
			Name: "oratio_reconnect_exhausted_total",
			Help: "Times the reconnect retry budget was exhausted",
		}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "oratio_active_sessions",
			Help: "Live sessions currently open (0 or 1)",
		}),
		TranscriptItems: factory.NewCounter(prometheus.CounterOpts{
			Name: "oratio_transcript_items_total",
			Help: "Transcript items promoted at turn boundaries",
		}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "oratio_session_duration_seconds",
			Help:    "Duration of completed sessions",
			Buckets: prometheus.ExponentialBuckets(30, 2, 8),
		}),
	}
}
