// Package metrics exposes Prometheus collectors for the session core.
// A nil *Collectors is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "session"

// Outcome labels.
const (
	OutcomeSuccess       = "success"
	OutcomeStepUp        = "step_up"
	OutcomeRejected      = "rejected"
	OutcomeTransport     = "transport_error"
	OutcomeNotRenewable  = "not_renewable"
	OutcomeDecodeFailure = "decode_error"
	OutcomeAdopted       = "adopted"
)

// Collectors are the session core's counters. A nil *Collectors records nothing.
type Collectors struct {
	Logins            *prometheus.CounterVec
	MfaVerifications  *prometheus.CounterVec
	Refreshes         *prometheus.CounterVec
	RetriedRequests   *prometheus.CounterVec
	Transitions       *prometheus.CounterVec
	PermissionFetches *prometheus.CounterVec
}

// New creates the collectors and registers them with reg (skipped when reg is nil).
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		Logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Credential exchanges by variant and outcome.",
		}, []string{"variant", "outcome"}),
		MfaVerifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mfa_verifications_total",
			Help:      "MFA code verifications by variant and outcome.",
		}, []string{"variant", "outcome"}),
		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refreshes_total",
			Help:      "Access token refreshes by variant and outcome.",
		}, []string{"variant", "outcome"}),
		RetriedRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retried_requests_total",
			Help:      "Requests re-issued after a 401, by variant.",
		}, []string{"variant"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Session state machine transitions by variant and target state.",
		}, []string{"variant", "state"}),
		PermissionFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "permission_fetches_total",
			Help:      "Capability set fetches by outcome.",
		}, []string{"outcome"}),
	}
	if reg != nil {
		reg.MustRegister(c.Logins, c.MfaVerifications, c.Refreshes, c.RetriedRequests, c.Transitions, c.PermissionFetches)
	}
	return c
}

func (c *Collectors) Login(variant, outcome string) {
	if c == nil {
		return
	}
	c.Logins.WithLabelValues(variant, outcome).Inc()
}

func (c *Collectors) MfaVerification(variant, outcome string) {
	if c == nil {
		return
	}
	c.MfaVerifications.WithLabelValues(variant, outcome).Inc()
}

func (c *Collectors) Refresh(variant, outcome string) {
	if c == nil {
		return
	}
	c.Refreshes.WithLabelValues(variant, outcome).Inc()
}

func (c *Collectors) Retry(variant string) {
	if c == nil {
		return
	}
	c.RetriedRequests.WithLabelValues(variant).Inc()
}

func (c *Collectors) Transition(variant, state string) {
	if c == nil {
		return
	}
	c.Transitions.WithLabelValues(variant, state).Inc()
}

func (c *Collectors) PermissionFetch(outcome string) {
	if c == nil {
		return
	}
	c.PermissionFetches.WithLabelValues(outcome).Inc()
}
