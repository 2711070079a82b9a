package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Operation counters exposed on /metrics.
var (
	Logins = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classtrack_logins_total",
		Help: "Successful logins by role.",
	}, []string{"role"})

	MarksSaved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "classtrack_attendance_marks_total",
		Help: "Attendance batches saved.",
	})

	LeaveDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classtrack_leave_decisions_total",
		Help: "Leave requests decided, by outcome.",
	}, []string{"decision"})
)
