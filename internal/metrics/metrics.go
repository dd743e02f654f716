// Package metrics holds the engine's Prometheus collectors.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AttemptsStarted counts start calls by outcome: created or resumed.
	AttemptsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exam_attempts_started_total",
			Help: "Total number of attempt start calls that produced an attempt",
		},
		[]string{"outcome"},
	)

	AnswersRecorded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "exam_answers_recorded_total",
			Help: "Total number of answer upserts",
		},
	)

	ViolationsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exam_violations_recorded_total",
			Help: "Total number of recorded integrity violations",
		},
		[]string{"type"},
	)

	KickOuts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "exam_attempts_kicked_out_total",
			Help: "Total number of attempts terminated by the violation threshold",
		},
	)

	// Submissions counts finalized attempts by mode: manual or auto.
	Submissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exam_submissions_total",
			Help: "Total number of submitted attempts",
		},
		[]string{"mode"},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exam_definition_cache_lookups_total",
			Help: "Exam definition cache lookups by result",
		},
		[]string{"result"},
	)

	NotificationsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exam_notifications_published_total",
			Help: "Exam-created notifications handed to the broker, by status",
		},
		[]string{"status"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Time spent serving HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// Middleware records request latency labelled by the matched route template,
// so path parameters do not blow up label cardinality.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		requestDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
