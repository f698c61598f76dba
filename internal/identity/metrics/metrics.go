package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for user administration and login.
type Metrics struct {
	UsersCreated     prometheus.Counter
	UsersDeleted     prometheus.Counter
	CredentialsReset prometheus.Counter
	Logins           prometheus.Counter
	LoginFailures    *prometheus.CounterVec
	LoginDuration    prometheus.Histogram
	RevocationCheck  prometheus.Histogram
}

// New registers the identity metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		UsersCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "correspondence_users_created_total",
			Help: "Total number of users created",
		}),
		UsersDeleted: f.NewCounter(prometheus.CounterOpts{
			Name: "correspondence_users_deleted_total",
			Help: "Total number of users deleted",
		}),
		CredentialsReset: f.NewCounter(prometheus.CounterOpts{
			Name: "correspondence_user_credentials_reset_total",
			Help: "Username and password regenerations caused by a full name change",
		}),
		Logins: f.NewCounter(prometheus.CounterOpts{
			Name: "correspondence_logins_total",
			Help: "Successful logins",
		}),
		LoginFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "correspondence_login_failures_total",
			Help: "Failed logins by reason",
		}, []string{"reason"}),
		LoginDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "correspondence_login_duration_seconds",
			Help:    "Duration of Login including password verification",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		RevocationCheck: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "correspondence_token_revocation_check_duration_seconds",
			Help:    "Latency of token revocation checks",
			Buckets: []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025},
		}),
	}
}

func (m *Metrics) IncrementUsersCreated() {
	m.UsersCreated.Inc()
}

func (m *Metrics) IncrementUsersDeleted() {
	m.UsersDeleted.Inc()
}

func (m *Metrics) IncrementCredentialsReset() {
	m.CredentialsReset.Inc()
}

// ObserveLogin records a login attempt. reason is empty on success.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveLogin(start time.Time, reason string) {
	m.LoginDuration.Observe(time.Since(start).Seconds())
	if reason == "" {
		m.Logins.Inc()
		return
	}
	m.LoginFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveRevocationCheck(start time.Time) {
	m.RevocationCheck.Observe(time.Since(start).Seconds())
}
