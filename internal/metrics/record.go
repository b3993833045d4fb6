package metrics

import "time"

// DeliveryAttempt records the outcome of a single send attempt.
func DeliveryAttempt(provider, outcome string) {
	DeliveryAttemptsTotal.WithLabelValues(provider, outcome).Inc()
}

// DeliverySent records a send operation that ended in success.
func DeliverySent(provider string, duration time.Duration) {
	DeliveriesTotal.WithLabelValues(provider, "sent").Inc()
	DeliveryDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// DeliveryFailed records a send operation that exhausted its attempts.
func DeliveryFailed(provider string, duration time.Duration) {
	DeliveriesTotal.WithLabelValues(provider, "failed").Inc()
	DeliveryDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// Verification records one transport verification attempt.
func Verification(label string, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	TransportVerificationsTotal.WithLabelValues(label, result).Inc()
}

// SetTransportState flips the state gauge so exactly one state reads 1.
func SetTransportState(current string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == current {
			v = 1
		}
		TransportState.WithLabelValues(s).Set(v)
	}
}

// TaskCompleted records a successful background task run
func TaskCompleted(task string, duration time.Duration) {
	TasksTotal.WithLabelValues(task, "completed").Inc()
	TaskDuration.WithLabelValues(task).Observe(duration.Seconds())
}

// TaskFailed records a failed background task run
func TaskFailed(task string, duration time.Duration) {
	TasksTotal.WithLabelValues(task, "failed").Inc()
	TaskDuration.WithLabelValues(task).Observe(duration.Seconds())
}
