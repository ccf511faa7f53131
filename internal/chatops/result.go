package chatops

import (
	"encoding/json"
	"fmt"
)

// Outcome tags the result of a remote operation call.
type Outcome int

const (
	// OutcomeSuccess means the service returned 2xx with a JSON body.
	// The body may still carry a service-level error marker; it is passed
	// through to the caller untouched.
	OutcomeSuccess Outcome = iota
	// OutcomeTransportError means the service returned 4xx/5xx, was
	// unreachable, or the access token could not be acquired.
	OutcomeTransportError
	// OutcomeDecodeError means a 2xx body was not valid JSON.
	OutcomeDecodeError
	// OutcomePending means the call was dispatched fire-and-forget and
	// the eventual result is only observable in the logs.
	OutcomePending
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeTransportError:
		return "transport_error"
	case OutcomeDecodeError:
		return "decode_error"
	case OutcomePending:
		return "pending"
	default:
		return "unknown"
	}
}

// Result is the tagged outcome of one remote operation call.
// Exactly one shape is populated per outcome; results are never mutated
// after construction.
type Result struct {
	Outcome    Outcome
	Payload    map[string]any // OutcomeSuccess: decoded service response, verbatim.
	StatusCode int            // OutcomeTransportError: HTTP status. 0 = network-level failure.
	Message    string         // Error or acknowledgment text for non-success outcomes.
}

// Err reports whether the result is any of the error outcomes.
func (r Result) Err() bool {
	return r.Outcome == OutcomeTransportError || r.Outcome == OutcomeDecodeError
}

// Render returns the single user-facing string for this result. Success
// payloads are rendered as indented JSON so the agent can quote them;
// error outcomes carry their message.
func (r Result) Render() string {
	switch r.Outcome {
	case OutcomeSuccess:
		b, err := json.MarshalIndent(r.Payload, "", "  ")
		if err != nil {
			return fmt.Sprintf("%v", r.Payload)
		}
		return string(b)
	case OutcomeTransportError:
		if r.StatusCode > 0 {
			return fmt.Sprintf("API request failed with status %d: %s", r.StatusCode, r.Message)
		}
		return fmt.Sprintf("Request to service failed: %s", r.Message)
	case OutcomeDecodeError:
		return fmt.Sprintf("Failed to decode JSON response from service: %s", r.Message)
	case OutcomePending:
		return "Request has been initiated in the background."
	default:
		return "Unknown result."
	}
}

func successResult(payload map[string]any) Result {
	return Result{Outcome: OutcomeSuccess, Payload: payload}
}

func transportError(status int, message string) Result {
	return Result{Outcome: OutcomeTransportError, StatusCode: status, Message: message}
}

func decodeError(message string) Result {
	return Result{Outcome: OutcomeDecodeError, Message: message}
}

func pendingResult() Result {
	return Result{Outcome: OutcomePending, Message: "request initiated in background"}
}
