package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder agrupa las métricas de generación y del feed. Un Recorder nil no registra nada.
type Recorder struct {
	generations *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	submissions *prometheus.CounterVec
}

// New registra las métricas en reg.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "libertax",
			Name:      "generations_total",
			Help:      "Provider calls by kind (rebuttal, meme) and outcome.",
		}, []string{"kind", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "libertax",
			Name:      "generation_duration_seconds",
			Help:      "Provider call latency by kind.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		}, []string{"kind"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "libertax",
			Name:      "composer_submissions_total",
			Help:      "Composer submissions by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(r.generations, r.latency, r.submissions)
	return r
}

func (r *Recorder) ObserveGeneration(kind, outcome string, took time.Duration) {
	if r == nil {
		return
	}
	r.generations.WithLabelValues(kind, outcome).Inc()
	r.latency.WithLabelValues(kind).Observe(took.Seconds())
}

func (r *Recorder) CountSubmission(outcome string) {
	if r == nil {
		return
	}
	r.submissions.WithLabelValues(outcome).Inc()
}

// Handler expone el registry en formato Prometheus.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
