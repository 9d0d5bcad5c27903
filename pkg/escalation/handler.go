// Package escalation builds the structured hand-off package for human
// operators: a ticket, a bounded summary of what the session already did,
// and the escalation marks on any related return authorization.
package escalation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/Mindburn-Labs/returns-core/pkg/audit"
	"github.com/Mindburn-Labs/returns-core/pkg/contracts"
	"github.com/Mindburn-Labs/returns-core/pkg/store"
)

// maxSummarySteps bounds how many step lines the hand-off summary lists;
// older steps are elided with a count.
const maxSummarySteps = 10

// Handler implements Escalate. It reads the audit trail, never mutates it
// except to append the terminal escalation entry.
type Handler struct {
	auditLog audit.Log
	store    store.Store
	logger   *slog.Logger
	clock    func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// NewHandler wires the escalation handler.
func NewHandler(auditLog audit.Log, st store.Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		auditLog: auditLog,
		store:    st,
		logger:   logger,
		clock:    time.Now,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WithClock overrides the time source for deterministic testing.
func (h *Handler) WithClock(clock func() time.Time) *Handler {
	h.clock = clock
	return h
}

// Escalate hands the session off to a human operator. Priority may be
// empty, in which case it is derived from the reason text (damage
// vocabulary maps to HIGH, fraud/risk to URGENT, everything else MEDIUM).
func (h *Handler) Escalate(ctx context.Context, sessionID, reason string, priority contracts.EscalationPriority) (*contracts.Ticket, error) {
	if priority == "" {
		priority = DefaultPriority(reason)
	}

	entries, err := h.auditLog.Session(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("escalate %s: read audit trail: %w", sessionID, err)
	}

	ticket := &contracts.Ticket{
		TicketID:  h.ticketID(),
		SessionID: sessionID,
		Reason:    reason,
		Priority:  priority,
		RMANumber: relatedRMA(entries),
	}
	ticket.Summary = summarize(entries, reason)

	if ticket.RMANumber != "" {
		err := h.store.MarkRMAEscalated(ctx, ticket.RMANumber, reason)
		if err != nil && !errors.Is(err, store.ErrRMANotFound) {
			return nil, fmt.Errorf("escalate %s: mark rma %s: %w", sessionID, ticket.RMANumber, err)
		}
	}

	if _, err := h.auditLog.Append(ctx, sessionID, contracts.ActorSystem, contracts.AuditEscalation, ticket); err != nil {
		return nil, fmt.Errorf("escalate %s: record ticket: %w", sessionID, err)
	}

	h.logger.Warn("session escalated to human agent",
		"session_id", sessionID,
		"ticket_id", ticket.TicketID,
		"priority", string(priority),
		"rma_number", ticket.RMANumber,
		"reason", reason)
	return ticket, nil
}

// DefaultPriority derives a priority from the escalation reason.
func DefaultPriority(reason string) contracts.EscalationPriority {
	lowered := strings.ToLower(reason)
	switch {
	case strings.Contains(lowered, "fraud") || strings.Contains(lowered, "risk"):
		return contracts.PriorityUrgent
	case strings.Contains(lowered, "damag") || strings.Contains(lowered, "defect") || strings.Contains(lowered, "broken"):
		return contracts.PriorityHigh
	default:
		return contracts.PriorityMedium
	}
}

func (h *Handler) ticketID() string {
	h.mu.Lock()
	suffix := h.rng.Intn(10000)
	h.mu.Unlock()
	return fmt.Sprintf("TICKET-%d-%04d", h.clock().Unix(), suffix)
}

// stepPayload is the subset of a step-result payload the summary reads.
type stepPayload struct {
	Op      string `json:"op"`
	OK      bool   `json:"ok"`
	Verdict *struct {
		ReasonCode string `json:"reason_code"`
		Eligible   bool   `json:"eligible"`
	} `json:"verdict"`
	RMA *struct {
		RMANumber string `json:"rma_number"`
	} `json:"rma"`
	Label *struct {
		RMANumber string `json:"rma_number"`
	} `json:"label"`
	Failure *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"failure"`
}

// relatedRMA finds the most recently mentioned RMA number in the session.
func relatedRMA(entries []audit.Entry) string {
	rma := ""
	for _, e := range entries {
		var p stepPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			continue
		}
		if p.RMA != nil && p.RMA.RMANumber != "" {
			rma = p.RMA.RMANumber
		} else if p.Label != nil && p.Label.RMANumber != "" {
			rma = p.Label.RMANumber
		}
	}
	return rma
}

// summarize compresses the session trail into a bounded hand-off text.
func summarize(entries []audit.Entry, reason string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ESCALATION REASON: %s\n", reason)

	if len(entries) == 0 {
		b.WriteString("No session history available.\n")
		b.WriteString(recommendation(reason))
		return b.String()
	}

	fmt.Fprintf(&b, "AUDIT ENTRIES: %d\n", len(entries))
	if excerpt := firstRequestExcerpt(entries); excerpt != "" {
		fmt.Fprintf(&b, "FIRST REQUEST: %s\n", excerpt)
	}

	var steps []stepPayload
	failures := 0
	var lastVerdict *stepPayload
	for _, e := range entries {
		if e.Type != contracts.AuditStepResult {
			continue
		}
		var p stepPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			continue
		}
		steps = append(steps, p)
		if !p.OK {
			failures++
		}
		if p.Verdict != nil {
			v := p
			lastVerdict = &v
		}
	}

	fmt.Fprintf(&b, "STEPS EXECUTED: %d (%d failed)\n", len(steps), failures)

	shown := steps
	if len(shown) > maxSummarySteps {
		fmt.Fprintf(&b, "(%d earlier steps elided)\n", len(shown)-maxSummarySteps)
		shown = shown[len(shown)-maxSummarySteps:]
	}
	for _, s := range shown {
		status := "ok"
		if !s.OK {
			status = "FAILED"
			if s.Failure != nil {
				status = fmt.Sprintf("FAILED(%s)", s.Failure.Code)
			}
		}
		fmt.Fprintf(&b, "  - %s: %s\n", s.Op, status)
	}

	if lastVerdict != nil && lastVerdict.Verdict != nil {
		fmt.Fprintf(&b, "ELIGIBILITY VERDICT: %s (eligible=%t)\n",
			lastVerdict.Verdict.ReasonCode, lastVerdict.Verdict.Eligible)
	}

	b.WriteString(recommendation(reason))
	return b.String()
}

// firstRequestExcerpt returns a truncated rendering of the first caller
// request entry, when a front end recorded one.
func firstRequestExcerpt(entries []audit.Entry) string {
	const limit = 120
	for _, e := range entries {
		if e.Type != contracts.AuditRequest {
			continue
		}
		text := string(e.Payload)
		var s string
		if err := json.Unmarshal(e.Payload, &s); err == nil {
			text = s
		}
		if len(text) > limit {
			// Cut on a rune boundary so multibyte text stays valid UTF-8.
			cut := limit
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
			text = text[:cut] + "..."
		}
		return text
	}
	return ""
}

func recommendation(reason string) string {
	lowered := strings.ToLower(reason)
	switch {
	case strings.Contains(lowered, "fraud") || strings.Contains(lowered, "risk"):
		return "RECOMMENDED ACTION: Verify customer identity and review account history"
	case strings.Contains(lowered, "damag") || strings.Contains(lowered, "defect"):
		return "RECOMMENDED ACTION: Request photos and initiate quality control inspection"
	default:
		return "RECOMMENDED ACTION: Review case details and provide personalized assistance"
	}
}
