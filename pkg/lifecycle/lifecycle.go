// Package lifecycle encodes the legal state transitions for orders and
// return authorizations. Every status mutation in the core goes through
// this package; a requested transition that is not adjacent in the chain is
// rejected, never clamped.
package lifecycle

import (
	"fmt"

	"github.com/Mindburn-Labs/returns-core/pkg/contracts"
)

// InvalidTransitionError is returned for any transition that is not
// adjacent in the legal chain. It maps to the FATAL taxonomy kind when it
// indicates an internal sequencing bug, and to PRECONDITION_FAILURE when it
// reflects caller ordering.
type InvalidTransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s: illegal transition %s -> %s", e.Entity, e.From, e.To)
}

// EscalatedError is returned when an automatic RMA transition is attempted
// while the escalation flag is set. Clearing the flag requires an explicit
// resolution action outside the core.
type EscalatedError struct {
	RMANumber string
}

func (e *EscalatedError) Error() string {
	return fmt.Sprintf("rma %s is escalated; automatic transitions are blocked", e.RMANumber)
}

// orderNext holds the single legal successor for each order state.
// Returned is terminal.
var orderNext = map[contracts.OrderStatus]contracts.OrderStatus{
	contracts.OrderPending:         contracts.OrderShipped,
	contracts.OrderShipped:         contracts.OrderDelivered,
	contracts.OrderDelivered:       contracts.OrderReturnInitiated,
	contracts.OrderReturnInitiated: contracts.OrderReturned,
}

// rmaNext holds the legal successors for each RMA state. The chain forks
// only after inspection: Approved -> Refunded, Rejected -> Processed.
var rmaNext = map[contracts.RMAStatus][]contracts.RMAStatus{
	contracts.RMAInitiated: {contracts.RMALabelSent},
	contracts.RMALabelSent: {contracts.RMAInTransit},
	contracts.RMAInTransit: {contracts.RMAReceived},
	contracts.RMAReceived:  {contracts.RMAInspected},
	contracts.RMAInspected: {contracts.RMAApproved, contracts.RMARejected},
	contracts.RMAApproved:  {contracts.RMARefunded},
	contracts.RMARejected:  {contracts.RMAProcessed},
}

// CheckOrderTransition reports whether from -> to is a legal order
// transition. Transition into Return_Initiated is additionally restricted to
// RMA creation: callers use this check inside the same transaction that
// creates the RMA row.
func CheckOrderTransition(from, to contracts.OrderStatus) error {
	if next, ok := orderNext[from]; ok && next == to {
		return nil
	}
	return &InvalidTransitionError{Entity: "order", From: string(from), To: string(to)}
}

// CheckRMATransition reports whether from -> to is a legal RMA transition
// for the given authorization. Escalated RMAs reject all automatic
// transitions regardless of adjacency.
func CheckRMATransition(rma *contracts.RMA, to contracts.RMAStatus) error {
	if rma.Escalated {
		return &EscalatedError{RMANumber: rma.RMANumber}
	}
	for _, next := range rmaNext[rma.Status] {
		if next == to {
			return nil
		}
	}
	return &InvalidTransitionError{Entity: "rma", From: string(rma.Status), To: string(to)}
}

// OrderTerminal reports whether the order state has no successors.
func OrderTerminal(s contracts.OrderStatus) bool {
	_, ok := orderNext[s]
	return !ok
}

// RMATerminal reports whether the RMA state has no successors.
func RMATerminal(s contracts.RMAStatus) bool {
	return len(rmaNext[s]) == 0
}
