// Package metrics registers the prometheus counters this system exposes.
// Grounded on metrics/metrics.go's CounterVec-per-concern shape and
// services/rssbot/rssbot.go's pollCounter, generalized from "command type" /
// "service type" labels to this system's poll/fetch/command domain.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Status is the status of a measurable outcome (poll succeeded, command
// failed, etc).
type Status string

// Common status values.
const (
	StatusSuccess = Status("success")
	StatusFailure = Status("failure")
)

var (
	pollCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "feedbot_polls_total",
		Help: "The number of per-feed poll cycles run, by outcome kind",
	}, []string{"outcome"})

	fetchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: "feedbot_fetch_duration_seconds",
		Help: "Time spent performing a single feed fetch",
	}, []string{"outcome"})

	commandCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "feedbot_commands_total",
		Help: "The number of command-facade invocations",
	}, []string{"command", "status"})

	subscriptionGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "feedbot_subscriptions",
		Help: "The current number of active subscriptions",
	})
)

// IncrementPoll records the outcome kind of one completed poll cycle.
func IncrementPoll(outcome string) {
	pollCounter.With(prometheus.Labels{"outcome": outcome}).Inc()
}

// ObserveFetchDuration records how long a fetch attempt took.
func ObserveFetchDuration(outcome string, seconds float64) {
	fetchDuration.With(prometheus.Labels{"outcome": outcome}).Observe(seconds)
}

// IncrementCommand records one command-facade invocation.
func IncrementCommand(command string, status Status) {
	commandCounter.With(prometheus.Labels{"command": command, "status": string(status)}).Inc()
}

// SetSubscriptionCount reports the current subscription count, refreshed by
// the scheduler each tick.
func SetSubscriptionCount(n int) {
	subscriptionGauge.Set(float64(n))
}

func init() {
	prometheus.MustRegister(pollCounter)
	prometheus.MustRegister(fetchDuration)
	prometheus.MustRegister(commandCounter)
	prometheus.MustRegister(subscriptionGauge)
}
