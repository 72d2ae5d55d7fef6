package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Engine counters exposed on /metrics alongside the default collectors.
var (
	SlotsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_slots_published_total",
		Help: "Availability slots published by instructors.",
	})

	ClaimAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_slot_claim_attempts_total",
		Help: "Slot claim attempts, winners and losers included.",
	})

	ClaimConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_slot_claim_conflicts_total",
		Help: "Slot claims lost to a concurrent booking.",
	})

	BookingsCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_bookings_cancelled_total",
		Help: "Bookings cancelled, freeing their slot.",
	})

	AttendanceUpserts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_attendance_upserts_total",
		Help: "Attendance records inserted or updated.",
	})
)
