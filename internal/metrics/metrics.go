package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AttemptsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "quiz",
		Name:      "attempts_started_total",
		Help:      "Quiz attempts started.",
	})
	AttemptsAbandoned = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "quiz",
		Name:      "attempts_abandoned_total",
		Help:      "Quiz attempts explicitly abandoned.",
	})
	Submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quiz",
		Name:      "submissions_total",
		Help:      "Quiz submissions by outcome.",
	}, []string{"outcome"})
	RewardsGranted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quiz",
		Name:      "rewards_granted_total",
		Help:      "Rewards recorded on completed attempts.",
	}, []string{"kind"})
	Scores = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "quiz",
		Name:      "score_percent",
		Help:      "Distribution of completed attempt scores.",
		Buckets:   prometheus.LinearBuckets(0, 10, 11),
	})
)

// ObserveSubmission records the outcome of a submit call.
func ObserveSubmission(outcome string) {
	Submissions.WithLabelValues(outcome).Inc()
}

var HTTPRequests = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "quiz",
	Name:      "http_request_duration_seconds",
	Help:      "HTTP request latency by route and status.",
	Buckets:   prometheus.DefBuckets,
}, []string{"method", "route", "status"})
