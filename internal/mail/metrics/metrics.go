package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the mail registers.
type Metrics struct {
	Created           *prometheus.CounterVec
	Updated           *prometheus.CounterVec
	Deleted           *prometheus.CounterVec
	Reads             *prometheus.CounterVec
	Operation         *prometheus.HistogramVec
	LeakedAttachments prometheus.Counter
}

// New registers the mail metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Created: f.NewCounterVec(prometheus.CounterOpts{
			Name: "correspondence_mail_created_total",
			Help: "Mail records created by kind",
		}, []string{"kind"}),
		Updated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "correspondence_mail_updated_total",
			Help: "Mail records updated by kind",
		}, []string{"kind"}),
		Deleted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "correspondence_mail_deleted_total",
			Help: "Mail records deleted by kind",
		}, []string{"kind"}),
		Reads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "correspondence_mail_reads_total",
			Help: "First-time read acknowledgements by kind",
		}, []string{"kind"}),
		Operation: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "correspondence_mail_operation_duration_seconds",
			Help:    "Duration of mail service operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"kind", "operation", "outcome"}),
		LeakedAttachments: f.NewCounter(prometheus.CounterOpts{
			Name: "correspondence_mail_leaked_attachments_total",
			Help: "Stored attachments that could not be removed after a failed or replaced write",
		}),
	}
}

func (m *Metrics) IncrementCreated(kind string) {
	m.Created.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncrementUpdated(kind string) {
	m.Updated.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncrementDeleted(kind string) {
	m.Deleted.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncrementReads(kind string) {
	m.Reads.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncrementLeakedAttachments() {
	m.LeakedAttachments.Inc()
}

// ObserveOperation records one call. Call with time.Now() at the start of
// the operation.
func (m *Metrics) ObserveOperation(kind, operation string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.Operation.WithLabelValues(kind, operation, outcome).Observe(time.Since(start).Seconds())
}
