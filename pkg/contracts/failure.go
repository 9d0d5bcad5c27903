package contracts

import "fmt"

// FailureKind classifies every failure the core can surface to a caller.
type FailureKind string

const (
	// FailureData means a referenced entity could not be resolved. The
	// caller should correct its input; never escalated automatically.
	FailureData FailureKind = "DATA_ERROR"

	// FailurePrecondition means an operation was requested out of the
	// required sequence. The caller should retry the correct sequence.
	FailurePrecondition FailureKind = "PRECONDITION_FAILURE"

	// FailureTransient means a timeout or temporary store unavailability.
	// The core does not auto-retry; retry policy belongs to the caller.
	FailureTransient FailureKind = "TRANSIENT"

	// FailureFatal means an internal invariant violation or repeated
	// transient failures. Always triggers automatic escalation.
	FailureFatal FailureKind = "FATAL"
)

// Deterministic failure codes. Raw internal error text never reaches the
// caller; every failure maps to a kind plus one of these codes.
const (
	CodeOrderNotFound      = "ORDER_NOT_FOUND"
	CodeCustomerNotFound   = "CUSTOMER_NOT_FOUND"
	CodeRMANotFound        = "RMA_NOT_FOUND"
	CodeAmbiguousLookup    = "AMBIGUOUS_LOOKUP"
	CodeUnknownScenario    = "UNKNOWN_SCENARIO"
	CodeInvalidArgs        = "INVALID_ARGS"
	CodeVerdictRequired    = "VERDICT_REQUIRED"
	CodeWrongRMAState      = "WRONG_RMA_STATE"
	CodeStepTimeout        = "STEP_TIMEOUT"
	CodeStoreUnavailable   = "STORE_UNAVAILABLE"
	CodeInvalidTransition  = "INVALID_TRANSITION"
	CodeStepBudgetExceeded = "STEP_BUDGET_EXCEEDED"
	CodeRepeatedFailures   = "REPEATED_FAILURES"
	CodeSessionEscalated   = "SESSION_ESCALATED"
)

// Failure is the structured error result returned to callers. Expected
// failure paths return a *Failure inside a step result; they are never
// propagated as panics.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Code    string      `json:"code"`
	Message string      `json:"message"`
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s/%s: %s", f.Kind, f.Code, f.Message)
}

// Recoverable reports whether the caller can recover by correcting input or
// retrying in sequence.
func (f *Failure) Recoverable() bool {
	return f.Kind == FailureData || f.Kind == FailurePrecondition
}

// NewFailure builds a Failure with a formatted message.
func NewFailure(kind FailureKind, code, format string, args ...any) *Failure {
	return &Failure{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}
