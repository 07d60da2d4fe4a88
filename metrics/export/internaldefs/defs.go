package internaldefs

import (
	goSession "github.com/MrEthical07/goSession"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// HistogramDef names one engine latency histogram for exporters.
type HistogramDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: goSession.MetricSessionCreated, Name: "gosession_session_created_total", Help: "Sessions issued to new visitors."},
	{ID: goSession.MetricSessionDestroyed, Name: "gosession_session_destroyed_total", Help: "Sessions destroyed by logout."},
	{ID: goSession.MetricLoginStarted, Name: "gosession_login_started_total", Help: "Authorization redirects issued."},
	{ID: goSession.MetricLoginSuccess, Name: "gosession_login_success_total", Help: "Completed authorization code exchanges."},
	{ID: goSession.MetricLoginFailure, Name: "gosession_login_failure_total", Help: "Failed authorization code exchanges."},
	{ID: goSession.MetricCSRFMismatch, Name: "gosession_csrf_mismatch_total", Help: "Callbacks rejected for an OAuth state mismatch."},
	{ID: goSession.MetricRefreshSuccess, Name: "gosession_refresh_success_total", Help: "Persisted token refreshes."},
	{ID: goSession.MetricRefreshFailure, Name: "gosession_refresh_failure_total", Help: "Refreshes failed for provider or storage reasons."},
	{ID: goSession.MetricRefreshTokenInvalid, Name: "gosession_refresh_token_invalid_total", Help: "Refresh grants rejected by the provider."},
	{ID: goSession.MetricRefreshSuperseded, Name: "gosession_refresh_superseded_total", Help: "Refreshes that lost to a concurrent refresh."},
	{ID: goSession.MetricUnauthenticated, Name: "gosession_unauthenticated_total", Help: "Requests rejected as unauthenticated."},
	{ID: goSession.MetricBatchRuns, Name: "gosession_batch_runs_total", Help: "Batch refresh runs."},
	{ID: goSession.MetricBatchRefreshed, Name: "gosession_batch_refreshed_total", Help: "Sessions refreshed by batch runs."},
	{ID: goSession.MetricBatchFailed, Name: "gosession_batch_failed_total", Help: "Sessions that failed to refresh in batch runs."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goSession.MetricProviderLatency, Name: "gosession_provider_latency_seconds", Help: "Token endpoint call latency."},
}

// AuditDroppedName is the counter for audit events dropped under backpressure.
const AuditDroppedName = "gosession_audit_dropped_total"

// AuditDroppedHelp describes AuditDroppedName.
const AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."

// BucketCount is the number of histogram buckets, the last one unbounded.
const BucketCount = len(goSession.HistogramBounds) + 1

// UpperBoundsSeconds returns the finite bucket bounds in seconds.
func UpperBoundsSeconds() []float64 {
	out := make([]float64, len(goSession.HistogramBounds))
	for i, ms := range goSession.HistogramBounds {
		out[i] = ms / 1000
	}
	return out
}

// NormalizeBuckets pads or truncates raw to BucketCount entries.
func NormalizeBuckets(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [BucketCount]uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
