package internaldefs

import (
	goSession "github.com/MrEthical07/goSession"
)

// CounterDef binds a core counter to its stable exported name.
type CounterDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// HistogramDef binds a core histogram to its stable exported name.
type HistogramDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter. Order is the exposition order.
var CounterDefs = []CounterDef{
	{ID: goSession.MetricSessionCreated, Name: "gosession_session_created_total", Help: "Created sessions."},
	{ID: goSession.MetricVerifySuccess, Name: "gosession_verify_success_total", Help: "Successful access token verifications."},
	{ID: goSession.MetricVerifyFailure, Name: "gosession_verify_failure_total", Help: "Failed access token verifications."},
	{ID: goSession.MetricRefreshSuccess, Name: "gosession_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: goSession.MetricRefreshFailure, Name: "gosession_refresh_failure_total", Help: "Failed refresh operations."},
	{ID: goSession.MetricRefreshIdempotentReplay, Name: "gosession_refresh_idempotent_replay_total", Help: "Refresh retries answered from the grace window."},
	{ID: goSession.MetricRefreshRetryExhausted, Name: "gosession_refresh_retry_exhausted_total", Help: "Refresh operations that exhausted their contention retry budget."},
	{ID: goSession.MetricTheftDetected, Name: "gosession_theft_detected_total", Help: "Detected refresh token thefts."},
	{ID: goSession.MetricSessionRevoked, Name: "gosession_session_revoked_total", Help: "Single-session revocations."},
	{ID: goSession.MetricRevokeAll, Name: "gosession_revoke_all_total", Help: "Revoke-all-for-user operations."},
	{ID: goSession.MetricExpiredSwept, Name: "gosession_expired_swept_total", Help: "Expired sessions removed by sweeps."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goSession.MetricVerifyLatency, Name: "gosession_verify_latency_us", Help: "Access verification latency histogram in microseconds."},
}

// HistogramBounds are the upper bucket bounds in microseconds, rendered
// as Prometheus le label values.
var HistogramBounds = []string{
	"50",
	"100",
	"250",
	"500",
	"1000",
	"5000",
	"25000",
	"+Inf",
}

// HistogramBoundSuffix mirrors HistogramBounds with characters legal in
// OTel instrument names.
var HistogramBoundSuffix = []string{
	"50",
	"100",
	"250",
	"500",
	"1000",
	"5000",
	"25000",
	"inf",
}

// NormalizeBuckets pads or truncates a raw bucket slice to the fixed
// exposition width.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into the cumulative form
// Prometheus histograms require.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
