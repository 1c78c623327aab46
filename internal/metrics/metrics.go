package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics — счётчики зеркалирования. Нулевой указатель допустим: методы ничего не делают.
type Metrics struct {
	Published       prometheus.Counter
	PublishFailures prometheus.Counter
	Deleted         prometheus.Counter
	EditsRequested  prometheus.Counter
	Resolutions     *prometheus.CounterVec
	Pending         *prometheus.GaugeVec
}

// New создаёт метрики и регистрирует их в reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Published: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tg2x_posts_published_total",
			Help: "Posts successfully published to X.",
		}),
		PublishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tg2x_publish_failures_total",
			Help: "Publish attempts rejected by X or failed before posting.",
		}),
		Deleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tg2x_posts_deleted_total",
			Help: "X posts deleted after the source message was deleted.",
		}),
		EditsRequested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tg2x_edit_requests_total",
			Help: "Edit approval requests created from channel edits.",
		}),
		Resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tg2x_approval_resolutions_total",
			Help: "Operator decisions by outcome.",
		}, []string{"outcome"}),
		Pending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tg2x_pending_approvals",
			Help: "Approval requests waiting for an operator decision.",
		}, []string{"category"}),
	}
	reg.MustRegister(m.Published, m.PublishFailures, m.Deleted, m.EditsRequested, m.Resolutions, m.Pending)
	return m
}

func (m *Metrics) IncPublished() {
	if m != nil {
		m.Published.Inc()
	}
}

func (m *Metrics) IncPublishFailure() {
	if m != nil {
		m.PublishFailures.Inc()
	}
}

func (m *Metrics) IncDeleted() {
	if m != nil {
		m.Deleted.Inc()
	}
}

func (m *Metrics) IncEditRequested() {
	if m != nil {
		m.EditsRequested.Inc()
	}
}

func (m *Metrics) IncResolution(outcome string) {
	if m != nil {
		m.Resolutions.WithLabelValues(outcome).Inc()
	}
}

// SetPending выставляет размер очередей подтверждения.
func (m *Metrics) SetPending(posts, edits int) {
	if m == nil {
		return
	}
	m.Pending.WithLabelValues("post").Set(float64(posts))
	m.Pending.WithLabelValues("edit").Set(float64(edits))
}
