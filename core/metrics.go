package core

import "github.com/prometheus/client_golang/prometheus"

var (
	// DispatchTotal counts dispatched requests by matched route pattern, verb and outcome.
	DispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scaffold_dispatch_total",
			Help: "Dispatched requests",
		},
		[]string{"route", "verb", "outcome"},
	)

	// LoginAttemptsTotal counts login attempts by result (ok, unknown user, invalid password, too many attempts).
	LoginAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scaffold_login_attempts_total",
			Help: "Login attempts",
		},
		[]string{"result"},
	)

	// PrincipalResolveFailuresTotal counts session principals that no longer resolve to a user.
	PrincipalResolveFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scaffold_principal_resolve_failures_total",
			Help: "Session principals dropped because the user is gone",
		},
	)
)

// Dispatch outcomes.
const (
	outcomeResponded = "responded"
	outcomeExhausted = "exhausted"
)

func init() {
	prometheus.MustRegister(DispatchTotal, LoginAttemptsTotal, PrincipalResolveFailuresTotal)
}
