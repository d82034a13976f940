package padboard

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Исходы вызова Play для метрики padboard_plays_total.
const (
	outcomeStarted  = "started"
	outcomeUnarmed  = "unarmed"
	outcomeNoSound  = "no_sound"
	outcomeFailed   = "failed"
	outcomeCanceled = "canceled"
)

// Metrics содержит метрики Prometheus движка. Нулевой указатель допустим:
// все методы тогда ничего не делают.
type Metrics struct {
	plays          *prometheus.CounterVec
	activeVoices   prometheus.Gauge
	decodes        *prometheus.CounterVec
	decodeDuration prometheus.Histogram
	cacheHits      prometheus.Counter
	cachedClips    prometheus.Gauge
}

// NewMetrics создаёт и регистрирует метрики движка.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		plays: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "padboard_plays_total",
				Help: "Total number of play requests by outcome",
			},
			[]string{"outcome"},
		),
		activeVoices: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "padboard_active_voices",
			Help: "Number of registered playback instances",
		}),
		decodes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "padboard_decodes_total",
				Help: "Total number of clip decodes by status",
			},
			[]string{"status"}, // success, error
		),
		decodeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "padboard_decode_duration_seconds",
			Help:    "Time taken to decode a clip",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "padboard_cache_hits_total",
			Help: "Total number of decoded-buffer cache hits",
		}),
		cachedClips: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "padboard_cached_clips",
			Help: "Number of decoded clips held in memory",
		}),
	}

	for _, c := range []prometheus.Collector{m.plays, m.activeVoices, m.decodes, m.decodeDuration, m.cacheHits, m.cachedClips} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) play(outcome string) {
	if m == nil {
		return
	}
	m.plays.WithLabelValues(outcome).Inc()
}

func (m *Metrics) voices(n int) {
	if m == nil {
		return
	}
	m.activeVoices.Set(float64(n))
}

func (m *Metrics) decoded(err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.decodes.WithLabelValues(status).Inc()
	m.decodeDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) cacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

func (m *Metrics) cached(n int) {
	if m == nil {
		return
	}
	m.cachedClips.Set(float64(n))
}
