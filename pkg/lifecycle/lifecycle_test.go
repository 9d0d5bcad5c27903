package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Mindburn-Labs/returns-core/pkg/contracts"
)

func TestOrderChainForward(t *testing.T) {
	chain := []contracts.OrderStatus{
		contracts.OrderPending,
		contracts.OrderShipped,
		contracts.OrderDelivered,
		contracts.OrderReturnInitiated,
		contracts.OrderReturned,
	}
	for i := 0; i < len(chain)-1; i++ {
		assert.NoError(t, CheckOrderTransition(chain[i], chain[i+1]))
	}
}

func TestOrderRejectsSkips(t *testing.T) {
	err := CheckOrderTransition(contracts.OrderPending, contracts.OrderReturnInitiated)
	assert.Error(t, err)
	var ite *InvalidTransitionError
	assert.ErrorAs(t, err, &ite)
	assert.Equal(t, "Pending", ite.From)

	assert.Error(t, CheckOrderTransition(contracts.OrderShipped, contracts.OrderReturned))
	assert.Error(t, CheckOrderTransition(contracts.OrderDelivered, contracts.OrderReturned))
}

func TestOrderRejectsBackwardAndTerminal(t *testing.T) {
	assert.Error(t, CheckOrderTransition(contracts.OrderDelivered, contracts.OrderShipped))
	assert.Error(t, CheckOrderTransition(contracts.OrderReturned, contracts.OrderPending))
	assert.True(t, OrderTerminal(contracts.OrderReturned))
	assert.False(t, OrderTerminal(contracts.OrderDelivered))
}

func TestRMAChain(t *testing.T) {
	rma := &contracts.RMA{RMANumber: "RMA-1", Status: contracts.RMAInitiated}

	assert.NoError(t, CheckRMATransition(rma, contracts.RMALabelSent))
	assert.Error(t, CheckRMATransition(rma, contracts.RMAReceived))

	rma.Status = contracts.RMAInspected
	assert.NoError(t, CheckRMATransition(rma, contracts.RMAApproved))
	assert.NoError(t, CheckRMATransition(rma, contracts.RMARejected))
	assert.Error(t, CheckRMATransition(rma, contracts.RMARefunded))

	rma.Status = contracts.RMARejected
	assert.NoError(t, CheckRMATransition(rma, contracts.RMAProcessed))
	assert.Error(t, CheckRMATransition(rma, contracts.RMARefunded))

	assert.True(t, RMATerminal(contracts.RMARefunded))
	assert.True(t, RMATerminal(contracts.RMAProcessed))
}

func TestEscalatedRMABlocksTransitions(t *testing.T) {
	rma := &contracts.RMA{RMANumber: "RMA-2", Status: contracts.RMAInitiated, Escalated: true}
	err := CheckRMATransition(rma, contracts.RMALabelSent)
	var ee *EscalatedError
	assert.ErrorAs(t, err, &ee)
	assert.Equal(t, "RMA-2", ee.RMANumber)
}
