/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package metrics exposes the daemon's internal counters over Prometheus,
// grounded on facebook-time's ptp/sptp/stats.PrometheusExporter: one
// registry, one /metrics HTTP handler, and a counter/gauge per concern
// matching ptp4u/stats' Inc*/Set* API shape, adapted from PTP subscription
// and TX/RX bookkeeping to per-device frame and subscriber bookkeeping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every counter/gauge the daemon publishes.
type Metrics struct {
	registry *prometheus.Registry

	framesDecoded    *prometheus.CounterVec
	checksumFailures *prometheus.CounterVec
	decodeErrors     *prometheus.CounterVec
	subscribers      prometheus.Gauge
	devicesOpen      prometheus.Gauge
	ppsJitterSeconds *prometheus.GaugeVec
	deviceStale      *prometheus.CounterVec
}

// New builds and registers every metric.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.framesDecoded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pvtd_frames_decoded_total",
		Help: "Frames successfully decoded, by wire format.",
	}, []string{"format"})

	m.checksumFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pvtd_checksum_failures_total",
		Help: "Frames discarded for a bad checksum, by wire format.",
	}, []string{"format"})

	m.decodeErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pvtd_decode_errors_total",
		Help: "Frames that passed checksum but failed driver decode, by wire format.",
	}, []string{"format"})

	m.subscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pvtd_subscribers",
		Help: "Currently connected TCP subscribers.",
	})

	m.devicesOpen = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pvtd_devices_open",
		Help: "Currently open device transports.",
	})

	m.ppsJitterSeconds = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pvtd_pps_jitter_seconds",
		Help: "Running standard deviation of PPS edge jitter, by device.",
	}, []string{"device"})

	m.deviceStale = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pvtd_device_stale_total",
		Help: "Times a device was marked stale for lack of fresh data, by device.",
	}, []string{"device"})

	m.registry.MustRegister(
		m.framesDecoded,
		m.checksumFailures,
		m.decodeErrors,
		m.subscribers,
		m.devicesOpen,
		m.ppsJitterSeconds,
		m.deviceStale,
	)
	return m
}

// IncFramesDecoded records one successfully decoded frame for format.
func (m *Metrics) IncFramesDecoded(format string) { m.framesDecoded.WithLabelValues(format).Inc() }

// IncChecksumFailures records one checksum-rejected frame for format.
func (m *Metrics) IncChecksumFailures(format string) {
	m.checksumFailures.WithLabelValues(format).Inc()
}

// IncDecodeErrors records one driver decode failure for format.
func (m *Metrics) IncDecodeErrors(format string) { m.decodeErrors.WithLabelValues(format).Inc() }

// SetSubscribers sets the current subscriber count.
func (m *Metrics) SetSubscribers(n int) { m.subscribers.Set(float64(n)) }

// SetDevicesOpen sets the current open-device count.
func (m *Metrics) SetDevicesOpen(n int) { m.devicesOpen.Set(float64(n)) }

// SetPPSJitterSeconds records device's current PPS jitter standard
// deviation, in seconds.
func (m *Metrics) SetPPSJitterSeconds(device string, stddev float64) {
	m.ppsJitterSeconds.WithLabelValues(device).Set(stddev)
}

// IncDeviceStale records one staleness event for device.
func (m *Metrics) IncDeviceStale(device string) { m.deviceStale.WithLabelValues(device).Inc() }

// Handler returns the HTTP handler to mount at /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// ListenAndServe starts a dedicated HTTP server for the metrics endpoint,
// matching PrometheusExporter.Start's single-purpose listener.
func (m *Metrics) ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return http.ListenAndServe(addr, mux)
}
