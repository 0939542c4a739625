package directauth

import (
	"context"
	"strconv"
	"strings"
	"time"
)

const (
	auditEventFlowStarted        = "flow_started"
	auditEventFlowResumed        = "flow_resumed"
	auditEventStepCompleted      = "step_completed"
	auditEventFlowReset          = "flow_reset"
	auditEventConcurrentRejected = "concurrent_call_rejected"
)

func (f *Flow) emitAudit(
	ctx context.Context,
	eventType string,
	op operation,
	state State,
	metadataBuilder func() map[string]string,
) {
	if f == nil || f.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		SessionID: f.id,
		Issuer:    f.sc.issuer,
		ClientID:  f.sc.clientID,
		Operation: string(op),
		Success:   true,
		Metadata:  metadata,
	}
	if state != nil {
		event.State = state.Kind()
		if code := auditErrorCode(state); code != "" {
			event.Success = false
			event.Error = code
		}
	}

	f.audit.Emit(ctx, event)
}

// auditErrorCode reduces an error state to a non-sensitive code. Messages and causes are
// left out because they can echo server text.
func auditErrorCode(s State) string {
	switch e := s.(type) {
	case *InternalError:
		return strings.ToLower(string(e.Code))
	case *OAuth2Error:
		if e.RawCode != "" {
			return e.RawCode
		}
		return "oauth2_error"
	case *APIError:
		return e.ErrorCode
	default:
		return ""
	}
}

func formatMillis(d time.Duration) string {
	return strconv.FormatInt(d.Milliseconds(), 10)
}
