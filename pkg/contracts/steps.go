package contracts

import "encoding/json"

// StepOp names one of the finite set of operations the orchestrator
// executes. There is no dynamic dispatch surface: an unknown op is rejected
// before any side effect.
type StepOp string

const (
	OpLookupOrder      StepOp = "lookup_order"
	OpCheckEligibility StepOp = "check_eligibility"
	OpCreateRMA        StepOp = "create_rma"
	OpIssueLabel       StepOp = "issue_label"
	OpNotifyCustomer   StepOp = "notify_customer"
	OpEscalate         StepOp = "escalate"
)

// StepRequest is one caller-issued step. The session identifier is always
// explicit; the core holds no ambient session state.
type StepRequest struct {
	SessionID string          `json:"session_id"`
	Op        StepOp          `json:"op"`
	Args      json.RawMessage `json:"args"`
}

// Typed argument payloads, one per op. Args are validated against a JSON
// Schema before decoding.

type LookupOrderArgs struct {
	OrderNumber string `json:"order_number,omitempty"`
	Email       string `json:"email,omitempty"`
}

type CheckEligibilityArgs struct {
	OrderNumber  string   `json:"order_number"`
	ItemIDs      []string `json:"item_ids"`
	ReturnReason string   `json:"return_reason"`
}

type CreateRMAArgs struct {
	OrderNumber  string   `json:"order_number"`
	ItemIDs      []string `json:"item_ids"`
	ReturnReason string   `json:"return_reason"`
	// VerdictCode references the prior eligibility result the caller is
	// acting on; the orchestrator re-validates it against the most recent
	// verdict for the session.
	VerdictCode ReasonCode `json:"verdict_code"`
}

type IssueLabelArgs struct {
	RMANumber string `json:"rma_number"`
}

type NotifyCustomerArgs struct {
	Recipient string         `json:"recipient"`
	Scenario  string         `json:"scenario"`
	Context   map[string]any `json:"context,omitempty"`
}

type EscalateArgs struct {
	Reason   string             `json:"reason"`
	Priority EscalationPriority `json:"priority,omitempty"`
}

// StepResult is the structured outcome of a step attempt. Exactly one of
// Failure or the op-specific payload fields is set.
type StepResult struct {
	SessionID string   `json:"session_id"`
	Op        StepOp   `json:"op"`
	Seq       uint64   `json:"seq"`
	OK        bool     `json:"ok"`
	Failure   *Failure `json:"failure,omitempty"`

	Order        *Order         `json:"order,omitempty"`
	Orders       []Order        `json:"orders,omitempty"`
	Verdict      *Verdict       `json:"verdict,omitempty"`
	RMA          *RMA           `json:"rma,omitempty"`
	Label        *LabelResult   `json:"label,omitempty"`
	Delivery     *Delivery      `json:"delivery,omitempty"`
	Ticket       *Ticket        `json:"ticket,omitempty"`
	AutoEscalate *Ticket        `json:"auto_escalation,omitempty"`
	Extra        map[string]any `json:"extra,omitempty"`
}

// LabelResult is the outcome of a simulated label issuance.
type LabelResult struct {
	RMANumber      string `json:"rma_number"`
	TrackingNumber string `json:"tracking_number"`
	LabelURL       string `json:"label_url"`
}

// Delivery is the confirmation of a simulated customer notification.
type Delivery struct {
	MessageID string `json:"message_id"`
	Recipient string `json:"recipient"`
	Scenario  string `json:"scenario"`
	Preview   string `json:"preview,omitempty"`
}

// Ticket is the structured hand-off package produced by an escalation.
type Ticket struct {
	TicketID  string             `json:"ticket_id"`
	SessionID string             `json:"session_id"`
	Reason    string             `json:"reason"`
	Priority  EscalationPriority `json:"priority"`
	Summary   string             `json:"summary"`
	RMANumber string             `json:"rma_number,omitempty"`
}
