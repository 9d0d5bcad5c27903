// Package orchestrator implements the bounded tool-orchestration loop. It
// executes exactly one caller-issued step at a time against the store and
// the lifecycle state machine, appends one audit entry per attempted step,
// and enforces the session step budget, per-step timeout, operation
// preconditions, and automatic escalation.
//
// The orchestrator never decides which step comes next; that belongs to
// the external front end. It also never lets a raw internal error reach
// the caller: every failure is classified into the taxonomy before it is
// returned.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Mindburn-Labs/returns-core/pkg/audit"
	"github.com/Mindburn-Labs/returns-core/pkg/contracts"
	"github.com/Mindburn-Labs/returns-core/pkg/eligibility"
	"github.com/Mindburn-Labs/returns-core/pkg/escalation"
	"github.com/Mindburn-Labs/returns-core/pkg/lifecycle"
	"github.com/Mindburn-Labs/returns-core/pkg/logistics"
	"github.com/Mindburn-Labs/returns-core/pkg/notify"
	"github.com/Mindburn-Labs/returns-core/pkg/observability"
	"github.com/Mindburn-Labs/returns-core/pkg/policy"
	"github.com/Mindburn-Labs/returns-core/pkg/store"
)

const (
	// DefaultMaxSteps is the session step budget before forced escalation.
	DefaultMaxSteps = 15

	// DefaultMaxFailures is the cumulative failed-step count that triggers
	// automatic escalation.
	DefaultMaxFailures = 3

	// DefaultStepTimeout bounds one step's execution.
	DefaultStepTimeout = 5 * time.Second

	// lookupLimit caps email-based order lookups.
	lookupLimit = 10
)

// Config wires the orchestrator's collaborators. Store and AuditLog are
// required; everything else has a usable default.
type Config struct {
	Store         store.Store
	AuditLog      audit.Log
	Evaluator     *eligibility.Evaluator
	Policies      *policy.Repository
	Labels        *logistics.LabelIssuer
	Notifier      *notify.Notifier
	Escalation    *escalation.Handler
	Observability *observability.Provider
	Logger        *slog.Logger

	MaxSteps    int
	MaxFailures int
	StepTimeout time.Duration
	Seed        int64
}

// Orchestrator executes steps for concurrent sessions. Steps within one
// session are strictly sequential; sessions share nothing but the store.
type Orchestrator struct {
	store       store.Store
	auditLog    audit.Log
	evaluator   *eligibility.Evaluator
	policies    *policy.Repository
	labels      *logistics.LabelIssuer
	notifier    *notify.Notifier
	escalation  *escalation.Handler
	obs         *observability.Provider
	logger      *slog.Logger
	schemas     map[contracts.StepOp]*jsonschema.Schema
	sessions    *sessionRegistry
	rmaNumbers  *rmaNumberGen
	maxSteps    int
	maxFailures int
	stepTimeout time.Duration
}

// New validates the wiring and compiles the argument schemas.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Store == nil {
		return nil, errors.New("orchestrator: store is required")
	}
	if cfg.AuditLog == nil {
		return nil, errors.New("orchestrator: audit log is required")
	}
	if cfg.Policies == nil {
		return nil, errors.New("orchestrator: policy repository is required")
	}
	if cfg.Evaluator == nil {
		cfg.Evaluator = eligibility.NewEvaluator(cfg.Policies)
	}
	if cfg.Labels == nil {
		cfg.Labels = logistics.NewLabelIssuer(cfg.Seed)
	}
	if cfg.Notifier == nil {
		n, err := notify.NewNotifier(cfg.Logger)
		if err != nil {
			return nil, err
		}
		cfg.Notifier = n
	}
	if cfg.Escalation == nil {
		cfg.Escalation = escalation.NewHandler(cfg.AuditLog, cfg.Store, cfg.Logger)
	}
	if cfg.Observability == nil {
		p, err := observability.New(context.Background(), &observability.Config{Enabled: false})
		if err != nil {
			return nil, err
		}
		cfg.Observability = p
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = DefaultMaxSteps
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = DefaultMaxFailures
	}
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = DefaultStepTimeout
	}

	schemas, err := compileSchemas()
	if err != nil {
		return nil, err
	}

	return &Orchestrator{
		store:       cfg.Store,
		auditLog:    cfg.AuditLog,
		evaluator:   cfg.Evaluator,
		policies:    cfg.Policies,
		labels:      cfg.Labels,
		notifier:    cfg.Notifier,
		escalation:  cfg.Escalation,
		obs:         cfg.Observability,
		logger:      cfg.Logger.With("component", "orchestrator"),
		schemas:     schemas,
		sessions:    newSessionRegistry(),
		rmaNumbers:  newRMANumberGen(cfg.Seed),
		maxSteps:    cfg.MaxSteps,
		maxFailures: cfg.MaxFailures,
		stepTimeout: cfg.StepTimeout,
	}, nil
}

// Execute runs one step. The returned error is reserved for audit-trail
// unavailability; every expected failure is reported inside the result.
// A session whose result carries AutoEscalate (or a successful escalate
// op) accepts no further steps.
func (o *Orchestrator) Execute(ctx context.Context, req contracts.StepRequest) (*contracts.StepResult, error) {
	if req.SessionID == "" {
		return nil, errors.New("orchestrator: session id is required")
	}

	s := o.sessions.get(req.SessionID)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.steps++
	res := &contracts.StepResult{SessionID: req.SessionID, Op: req.Op, Seq: s.steps}
	if s.steps == 1 {
		o.obs.SessionStarted(ctx)
	}

	ctx, endStep := o.obs.StartStep(ctx, req.SessionID, string(req.Op))
	defer func() {
		kind := ""
		if res.Failure != nil {
			kind = string(res.Failure.Kind)
		}
		endStep(res.Failure != nil, kind)
	}()

	switch {
	case s.escalated:
		res.Failure = contracts.NewFailure(contracts.FailurePrecondition, contracts.CodeSessionEscalated,
			"session %s has been escalated to a human agent", req.SessionID)
		return res, o.record(ctx, s, res, "")

	case s.steps > uint64(o.maxSteps):
		res.Failure = contracts.NewFailure(contracts.FailureFatal, contracts.CodeStepBudgetExceeded,
			"session exceeded the %d-step budget", o.maxSteps)
		return res, o.record(ctx, s, res, "step budget exhausted")
	}

	if f := o.validateArgs(req.Op, req.Args); f != nil {
		res.Failure = f
		return res, o.record(ctx, s, res, "")
	}

	stepCtx, cancel := context.WithTimeout(ctx, o.stepTimeout)
	o.runStep(stepCtx, s, req, res)
	cancel()

	escalateReason := ""
	switch {
	case res.Failure != nil && res.Failure.Kind == contracts.FailureFatal:
		escalateReason = res.Failure.Message
	case res.Failure != nil && s.failures+1 >= o.maxFailures:
		escalateReason = fmt.Sprintf("%d step failures in one session", s.failures+1)
	case res.Verdict != nil && res.Verdict.ManualReview:
		escalateReason = res.Verdict.Detail
	}
	if res.Failure != nil {
		s.failures++
	}

	return res, o.record(ctx, s, res, escalateReason)
}

// record appends the step's audit entry and, when reason is non-empty,
// invokes the escalation handler. The audit append must succeed before
// the session may continue; its failure is the one error Execute returns.
func (o *Orchestrator) record(ctx context.Context, s *session, res *contracts.StepResult, escalateReason string) error {
	// The audit write must not be lost to the step's own timeout.
	if _, err := o.auditLog.Append(context.WithoutCancel(ctx), res.SessionID, contracts.ActorSystem, contracts.AuditStepResult, res); err != nil {
		return fmt.Errorf("orchestrator: audit append failed: %w", err)
	}

	o.logger.Info("step executed",
		"session_id", res.SessionID,
		"op", string(res.Op),
		"seq", res.Seq,
		"ok", res.OK,
		"failure", failureCode(res.Failure),
		"recoverable", res.Failure != nil && res.Failure.Recoverable())

	if escalateReason == "" || s.escalated {
		return nil
	}

	priority := autoPriority(res)
	ticket, err := o.escalation.Escalate(context.WithoutCancel(ctx), res.SessionID, escalateReason, priority)
	if err != nil {
		return fmt.Errorf("orchestrator: auto-escalation failed: %w", err)
	}
	s.escalated = true
	res.AutoEscalate = ticket
	o.obs.RecordEscalation(ctx, string(ticket.Priority))
	o.obs.SessionEnded(ctx)
	return nil
}

/// autoPriority maps the triggering condition to a hand-off priority:
// damage verdicts go HIGH, risk verdicts URGENT, everything else derives
// from the reason text.
func autoPriority(res *contracts.StepResult) contracts.EscalationPriority {
	if res.Verdict != nil {
		switch res.Verdict.ReasonCode {
		case contracts.ReasonDamagedManual:
			return contracts.PriorityHigh
		case contracts.ReasonRiskManual:
			return contracts.PriorityUrgent
		}
	}
	return ""
}

// runStep dispatches to the op handler. Handlers set either the payload
// fields (and OK) or Failure on res; they never both.
func (o *Orchestrator) runStep(ctx context.Context, s *session, req contracts.StepRequest, res *contracts.StepResult) {
	switch req.Op {
	case contracts.OpLookupOrder:
		var args contracts.LookupOrderArgs
		if f := decodeArgs(req.Args, &args); f != nil {
			res.Failure = f
			return
		}
		o.lookupOrder(ctx, args, res)

	case contracts.OpCheckEligibility:
		var args contracts.CheckEligibilityArgs
		if f := decodeArgs(req.Args, &args); f != nil {
			res.Failure = f
			return
		}
		o.checkEligibility(ctx, s, args, res)

	case contracts.OpCreateRMA:
		var args contracts.CreateRMAArgs
		if f := decodeArgs(req.Args, &args); f != nil {
			res.Failure = f
			return
		}
		o.createRMA(ctx, s, args, res)

	case contracts.OpIssueLabel:
		var args contracts.IssueLabelArgs
		if f := decodeArgs(req.Args, &args); f != nil {
			res.Failure = f
			return
		}
		o.issueLabel(ctx, args, res)

	case contracts.OpNotifyCustomer:
		var args contracts.NotifyCustomerArgs
		if f := decodeArgs(req.Args, &args); f != nil {
			res.Failure = f
			return
		}
		o.notifyCustomer(ctx, args, res)

	case contracts.OpEscalate:
		var args contracts.EscalateArgs
		if f := decodeArgs(req.Args, &args); f != nil {
			res.Failure = f
			return
		}
		o.escalate(ctx, s, req.SessionID, args, res)

	default:
		res.Failure = contracts.NewFailure(contracts.FailureData, contracts.CodeInvalidArgs,
			"unknown operation %q", req.Op)
	}
}

func (o *Orchestrator) lookupOrder(ctx context.Context, args contracts.LookupOrderArgs, res *contracts.StepResult) {
	if args.OrderNumber != "" {
		order, err := o.store.GetOrder(ctx, args.OrderNumber)
		if err != nil {
			res.Failure = classify(err)
			return
		}
		res.OK = true
		res.Order = order
		return
	}

	orders, err := o.store.ListOrdersByEmail(ctx, args.Email, lookupLimit)
	if err != nil {
		res.Failure = classify(err)
		return
	}
	switch len(orders) {
	case 0:
		res.Failure = contracts.NewFailure(contracts.FailureData, contracts.CodeOrderNotFound,
			"no orders found for %s", args.Email)
	case 1:
		res.OK = true
		res.Order = &orders[0]
	default:
		// The candidates ride along so the caller can disambiguate by
		// order number.
		res.Orders = orders
		res.Failure = contracts.NewFailure(contracts.FailureData, contracts.CodeAmbiguousLookup,
			"%d orders found for %s; specify an order number", len(orders), args.Email)
	}
}

func (o *Orchestrator) checkEligibility(ctx context.Context, s *session, args contracts.CheckEligibilityArgs, res *contracts.StepResult) {
	var order *contracts.Order
	var customer *contracts.Customer

	order, err := o.store.GetOrder(ctx, args.OrderNumber)
	switch {
	case errors.Is(err, store.ErrOrderNotFound):
		order = nil
	case err != nil:
		res.Failure = classify(err)
		return
	default:
		customer = order.Customer
	}

	v := o.evaluator.Evaluate(order, args.ItemIDs, args.ReturnReason, customer)
	res.OK = true
	res.Verdict = &v
	s.lastVerdict = &verdictRecord{
		OrderNumber: args.OrderNumber,
		ItemsKey:    itemsKey(args.ItemIDs),
		Reason:      args.ReturnReason,
		Verdict:     v,
	}
}

func (o *Orchestrator) createRMA(ctx context.Context, s *session, args contracts.CreateRMAArgs, res *contracts.StepResult) {
	last := s.lastVerdict
	switch {
	case last == nil || !last.matches(args.OrderNumber, args.ItemIDs, args.ReturnReason):
		res.Failure = contracts.NewFailure(contracts.FailurePrecondition, contracts.CodeVerdictRequired,
			"no eligibility verdict for this order and item selection")
		return
	case last.Verdict.ReasonCode != contracts.ReasonApproved || args.VerdictCode != contracts.ReasonApproved:
		res.Failure = contracts.NewFailure(contracts.FailurePrecondition, contracts.CodeVerdictRequired,
			"most recent eligibility verdict is %s, not APPROVED", last.Verdict.ReasonCode)
		return
	}

	order, err := o.store.GetOrder(ctx, args.OrderNumber)
	if err != nil {
		res.Failure = classify(err)
		return
	}

	matched := o.policyByID(last.Verdict.PolicyID)
	refund, err := eligibility.Refund(order, args.ItemIDs, matched)
	if err != nil {
		res.Failure = contracts.NewFailure(contracts.FailureData, contracts.CodeInvalidArgs,
			"refund computation failed for order %s", args.OrderNumber)
		return
	}

	rma := &contracts.RMA{
		RMANumber:     o.rmaNumbers.next(),
		OrderNumber:   order.OrderNumber,
		CustomerEmail: order.CustomerEmail,
		ItemIDs:       args.ItemIDs,
		ReturnReason:  args.ReturnReason,
		ReasonCode:    contracts.ReasonApproved,
		Status:        contracts.RMAInitiated,
		RefundCents:   refund,
	}
	if err := o.store.CreateRMA(ctx, rma); err != nil {
		res.Failure = classify(err)
		return
	}
	res.OK = true
	res.RMA = rma
}

func (o *Orchestrator) issueLabel(ctx context.Context, args contracts.IssueLabelArgs, res *contracts.StepResult) {
	label := o.labels.Issue(args.RMANumber)
	rma, err := o.store.AttachLabel(ctx, args.RMANumber, label.TrackingNumber, label.LabelURL)
	if err != nil {
		res.Failure = classify(err)
		return
	}
	res.OK = true
	res.RMA = rma
	res.Label = &label
}

func (o *Orchestrator) notifyCustomer(ctx context.Context, args contracts.NotifyCustomerArgs, res *contracts.StepResult) {
	if err := ctx.Err(); err != nil {
		res.Failure = classify(err)
		return
	}
	d, err := o.notifier.Send(args.Recipient, args.Scenario, args.Context)
	if err != nil {
		res.Failure = classify(err)
		return
	}
	res.OK = true
	res.Delivery = d
}

func (o *Orchestrator) escalate(ctx context.Context, s *session, sessionID string, args contracts.EscalateArgs, res *contracts.StepResult) {
	ticket, err := o.escalation.Escalate(ctx, sessionID, args.Reason, args.Priority)
	if err != nil {
		res.Failure = classify(err)
		return
	}
	s.escalated = true
	res.OK = true
	res.Ticket = ticket
	o.obs.RecordEscalation(ctx, string(ticket.Priority))
	o.obs.SessionEnded(ctx)
}

// policyByID resolves the policy a verdict matched. A nil return only
// means no restocking fee applies.
func (o *Orchestrator) policyByID(policyID string) *contracts.ReturnPolicy {
	if policyID == "" {
		return nil
	}
	for _, p := range o.policies.Active() {
		if p.PolicyID == policyID {
			out := p
			return &out
		}
	}
	return nil
}

func decodeArgs(raw json.RawMessage, into any) *contracts.Failure {
	if err := json.Unmarshal(raw, into); err != nil {
		return contracts.NewFailure(contracts.FailureData, contracts.CodeInvalidArgs,
			"malformed step arguments")
	}
	return nil
}

// classify converts internal errors into the failure taxonomy. Raw error
// text never crosses this boundary.
func classify(err error) *contracts.Failure {
	var invalid *lifecycle.InvalidTransitionError
	var escalated *lifecycle.EscalatedError

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return contracts.NewFailure(contracts.FailureTransient, contracts.CodeStepTimeout,
			"step timed out; try again")
	case errors.Is(err, context.Canceled):
		return contracts.NewFailure(contracts.FailureTransient, contracts.CodeStepTimeout,
			"step was canceled; try again")
	case errors.Is(err, store.ErrOrderNotFound):
		return contracts.NewFailure(contracts.FailureData, contracts.CodeOrderNotFound,
			"order not found")
	case errors.Is(err, store.ErrCustomerNotFound):
		return contracts.NewFailure(contracts.FailureData, contracts.CodeCustomerNotFound,
			"customer not found")
	case errors.Is(err, store.ErrRMANotFound):
		return contracts.NewFailure(contracts.FailureData, contracts.CodeRMANotFound,
			"return authorization not found")
	case errors.Is(err, notify.ErrUnknownScenario):
		return contracts.NewFailure(contracts.FailureData, contracts.CodeUnknownScenario,
			"unknown notification scenario")
	case errors.As(err, &escalated):
		return contracts.NewFailure(contracts.FailurePrecondition, contracts.CodeWrongRMAState,
			"authorization %s is escalated and locked", escalated.RMANumber)
	case errors.As(err, &invalid):
		return contracts.NewFailure(contracts.FailurePrecondition, contracts.CodeWrongRMAState,
			"%s cannot move from %s to %s", invalid.Entity, invalid.From, invalid.To)
	case errors.Is(err, store.ErrDuplicateRMA), errors.Is(err, store.ErrDuplicateOrder):
		return contracts.NewFailure(contracts.FailureFatal, contracts.CodeInvalidTransition,
			"store rejected a write that should have been legal")
	default:
		return contracts.NewFailure(contracts.FailureTransient, contracts.CodeStoreUnavailable,
			"store unavailable; try again")
	}
}

func failureCode(f *contracts.Failure) string {
	if f == nil {
		return ""
	}
	return f.Code
}
