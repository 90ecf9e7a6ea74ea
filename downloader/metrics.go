package downloader

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the per-run Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	Registry        *prometheus.Registry
	PagesTotal      prometheus.Counter
	ImagesTotal     *prometheus.CounterVec
	ChallengesTotal prometheus.Counter
	RetriesTotal    prometheus.Counter
	ErrorsTotal     *prometheus.CounterVec
	ExportDuration  prometheus.Histogram
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	pages := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scrollgrab_pages_total",
		Help: "Gallery pages processed.",
	})
	images := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrollgrab_images_total",
			Help: "Image download attempts by outcome.",
		},
		[]string{"outcome"},
	)
	challenges := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scrollgrab_challenges_total",
		Help: "Interstitial challenges encountered.",
	})
	retries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scrollgrab_discovery_retries_total",
		Help: "Image discovery retries (reload and rescroll).",
	})
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrollgrab_errors_total",
			Help: "Errors by type.",
		},
		[]string{"error_type"},
	)
	exportDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "scrollgrab_export_duration_seconds",
		Help:    "Time to export and save one image.",
		Buckets: prometheus.DefBuckets,
	})

	registry.MustRegister(pages, images, challenges, retries, errorsTotal, exportDuration)

	return &Metrics{
		Registry:        registry,
		PagesTotal:      pages,
		ImagesTotal:     images,
		ChallengesTotal: challenges,
		RetriesTotal:    retries,
		ErrorsTotal:     errorsTotal,
		ExportDuration:  exportDuration,
	}
}

func (m *Metrics) IncPage() {
	if m == nil {
		return
	}
	m.PagesTotal.Inc()
}

// IncImage counts one download attempt under its outcome label
func (m *Metrics) IncImage(s Status) {
	if m == nil {
		return
	}
	m.ImagesTotal.WithLabelValues(s.String()).Inc()
}

func (m *Metrics) IncChallenge() {
	if m == nil {
		return
	}
	m.ChallengesTotal.Inc()
}

func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the errors counter for err's classification
func (m *Metrics) IncError(err error) {
	if m == nil || err == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorLabel(err)).Inc()
}

func (m *Metrics) ObserveExport(d time.Duration) {
	if m == nil {
		return
	}
	m.ExportDuration.Observe(d.Seconds())
}

// WriteTextfile dumps the registry in the node_exporter textfile format
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}
