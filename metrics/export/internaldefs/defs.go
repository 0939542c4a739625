package internaldefs

import (
	"github.com/MrEthical07/directauth"
)

// CounterDef binds a flow counter to its exported name.
type CounterDef struct {
	ID   directauth.MetricID
	Name string
	Help string
	// State is set for counters that count operations ending in one state kind.
	State directauth.StateKind
}

// HistogramDef binds a flow histogram to its exported name.
type HistogramDef struct {
	ID   directauth.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in MetricID order.
var CounterDefs = []CounterDef{
	{ID: directauth.MetricFlowStarted, Name: "directauth_flow_started_total", Help: "Start calls that reached the wire."},
	{ID: directauth.MetricFlowResumed, Name: "directauth_flow_resumed_total", Help: "Resume and proceed calls that reached the wire."},
	{ID: directauth.MetricFlowReset, Name: "directauth_flow_reset_total", Help: "Reset calls."},
	{ID: directauth.MetricAuthenticated, Name: "directauth_authenticated_total", Help: "Operations that ended with a token set.", State: directauth.KindAuthenticated},
	{ID: directauth.MetricMfaRequired, Name: "directauth_mfa_required_total", Help: "Operations that ended in an MFA step-up.", State: directauth.KindMfaRequired},
	{ID: directauth.MetricOobPending, Name: "directauth_oob_pending_total", Help: "Operations that ended waiting for a push approval.", State: directauth.KindOobPending},
	{ID: directauth.MetricPrompt, Name: "directauth_prompt_total", Help: "Operations that ended waiting for a user-entered code.", State: directauth.KindPrompt},
	{ID: directauth.MetricTransfer, Name: "directauth_transfer_total", Help: "Operations that ended waiting for a binding-code transfer.", State: directauth.KindTransfer},
	{ID: directauth.MetricAuthorizationPending, Name: "directauth_authorization_pending_total", Help: "Polls answered with authorization_pending.", State: directauth.KindAuthorizationPending},
	{ID: directauth.MetricOAuth2Error, Name: "directauth_oauth2_error_total", Help: "Operations that ended in an OAuth2 error response.", State: directauth.KindOAuth2Error},
	{ID: directauth.MetricAPIError, Name: "directauth_api_error_total", Help: "Operations that ended in an API error response.", State: directauth.KindAPIError},
	{ID: directauth.MetricInternalError, Name: "directauth_internal_error_total", Help: "Operations that ended in a transport or contract failure.", State: directauth.KindInternalError},
	{ID: directauth.MetricCanceled, Name: "directauth_canceled_total", Help: "Operations that observed cancellation.", State: directauth.KindCanceled},
	{ID: directauth.MetricConcurrentRejected, Name: "directauth_concurrent_rejected_total", Help: "Calls rejected because another operation was in flight."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: directauth.MetricStepLatency, Name: "directauth_step_latency_seconds", Help: "Wire step latency histogram."},
}

// HistogramUpperBounds are the finite bucket bounds in seconds. The eighth bucket is +Inf.
var HistogramUpperBounds = []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}

// HistogramBoundSuffix names each bucket for exporters without native histograms.
var HistogramBoundSuffix = []string{
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"1",
	"2_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed-size array, zero-filling missing buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
