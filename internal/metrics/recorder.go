package metrics

import (
	"context"
	"net/http"
	"time"

	"engagement_backend/platform/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const writeTimeout = 3 * time.Second

// Store persists daily counters.
type Store interface {
	IncrementDaily(ctx context.Context, day time.Time, locationID string, name Name, n int64) error
}

// Recorder increments the reporting counters and exposes operational metrics.
// Every method is best-effort: failures are logged, never returned.
type Recorder struct {
	store    Store
	log      *logger.Logger
	location *time.Location
	now      func() time.Time

	// Registry owns every collector below; /metrics serves it.
	Registry *prometheus.Registry

	conversationEvents *prometheus.CounterVec
	intents            *prometheus.CounterVec
	externalErrors     *prometheus.CounterVec
	stepDuration       *prometheus.HistogramVec
}

// NewRecorder creates a recorder with a private registry. day boundaries are
// computed in loc.
func NewRecorder(store Store, loc *time.Location, log *logger.Logger) *Recorder {
	if loc == nil {
		loc = time.UTC
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Recorder{
		store:    store,
		log:      log,
		location: loc,
		now:      time.Now,
		Registry: reg,
		conversationEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "engagement",
				Subsystem: "conversation",
				Name:      "events_total",
				Help:      "Conversation counters by reporting name.",
			},
			[]string{"name"},
		),
		intents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "engagement",
				Subsystem: "conversation",
				Name:      "intents_total",
				Help:      "Classified inbound intents.",
			},
			[]string{"intent"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "engagement",
				Name:      "external_errors_total",
				Help:      "Failed calls to external services.",
			},
			[]string{"service"},
		),
		stepDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "engagement",
				Subsystem: "conversation",
				Name:      "step_duration_seconds",
				Help:      "Duration of orchestrator steps.",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"step"},
		),
	}
}

// Increment adds n to a daily counter. The write is detached from the
// request context so a cancelled webhook cannot drop the increment.
func (r *Recorder) Increment(ctx context.Context, locationID string, name Name, n int64) {
	if n <= 0 || !name.IsValid() {
		return
	}
	r.conversationEvents.WithLabelValues(string(name)).Add(float64(n))
	if r.store == nil {
		return
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	day := r.now().In(r.location)
	day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	if err := r.store.IncrementDaily(writeCtx, day, locationID, name, n); err != nil {
		r.log.WithContext(ctx).Warn("metrics: increment failed", "name", string(name), "error", err)
	}
}

// ObserveIntent counts a classified intent.
func (r *Recorder) ObserveIntent(intent string) {
	r.intents.WithLabelValues(intent).Inc()
}

// ExternalError counts a failed external call.
func (r *Recorder) ExternalError(service string) {
	r.externalErrors.WithLabelValues(service).Inc()
}

// ObserveStep records how long an orchestrator step took.
func (r *Recorder) ObserveStep(step string, d time.Duration) {
	r.stepDuration.WithLabelValues(step).Observe(d.Seconds())
}

// Handler serves the private registry.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.Registry, promhttp.HandlerOpts{})
}
