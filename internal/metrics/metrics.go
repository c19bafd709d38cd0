package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Job dispositions recorded in JobsTotal
const (
	ActionDeleted  = "deleted"
	ActionReleased = "released"
	ActionBuried   = "buried"
)

var (
	// JobsTotal counts terminal actions applied to reserved jobs
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_worker_jobs_total",
			Help: "Total number of reserved jobs by terminal action.",
		},
		[]string{"queue", "action"},
	)

	// FaultsTotal counts decode failures and handler faults
	FaultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_worker_faults_total",
			Help: "Total number of jobs that failed with a decode error or handler fault.",
		},
		[]string{"queue", "kind"},
	)

	// AckErrorsTotal counts failed delete/release/bury/stats calls
	AckErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_worker_ack_errors_total",
			Help: "Total number of failed acknowledgment calls against the broker.",
		},
		[]string{"queue", "op"},
	)

	// EnqueuedTotal counts jobs put on a queue through the queue service
	EnqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_worker_enqueued_total",
			Help: "Total number of jobs enqueued.",
		},
		[]string{"queue"},
	)
)
