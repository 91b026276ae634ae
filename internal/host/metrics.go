package host

import (
	"go.opentelemetry.io/otel/metric"
)

type metrics struct {
	requests   metric.Int64Counter
	audioBytes metric.Int64Counter
	latency    metric.Float64Histogram
}

func newMetrics(meter metric.Meter) (*metrics, error) {
	requests, err := meter.Int64Counter("briefer_requests_total",
		metric.WithDescription("Requests handled, by action and terminal status"))
	if err != nil {
		return nil, err
	}
	audioBytes, err := meter.Int64Counter("briefer_audio_bytes_total",
		metric.WithDescription("Audio bytes produced"),
		metric.WithUnit("By"))
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram("briefer_request_duration_seconds",
		metric.WithDescription("Wall time from request to terminal response"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	return &metrics{requests: requests, audioBytes: audioBytes, latency: latency}, nil
}
