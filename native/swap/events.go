package swap

import (
	"encoding/hex"
	"strconv"

	"crosslock/core/events"
)

const (
	EventTypeOrderCreated  = "swap.order.created"
	EventTypeOrderFilled   = "swap.order.filled"
	EventTypeEscrowFunded  = "escrow.funded"
	EventTypeEscrowRefund  = "escrow.refunded"
	EventTypeEscrowRelease = "escrow.released"
	EventTypeEscrowExpired = "escrow.expired"
	EventTypePartialFunded = "swap.partial_funded"
	EventTypeBothFunded    = "swap.funded"
	EventTypeSwapCompleted = "swap.completed"
	EventTypeSwapCancelled = "swap.cancelled"
)

// NewOrderCreatedEvent returns the canonical payload announcing a new order
// and its derived escrow addresses.
func NewOrderCreatedEvent(s *SwapSession) events.Event {
	attrs := sessionAttrs(s)
	if s != nil {
		attrs["makerEscrow"] = hex.EncodeToString(s.MakerEscrow[:])
		attrs["takerEscrow"] = hex.EncodeToString(s.TakerEscrow[:])
	}
	return events.Event{Type: EventTypeOrderCreated, Attributes: attrs}
}

// NewOrderFilledEvent is emitted when a taker commits to the order terms.
func NewOrderFilledEvent(s *SwapSession) events.Event {
	return events.Event{Type: EventTypeOrderFilled, Attributes: sessionAttrs(s)}
}

// NewEscrowFundedEvent is emitted when a deposit lands in an escrow.
func NewEscrowFundedEvent(e *Escrow) events.Event {
	return escrowEvent(EventTypeEscrowFunded, e)
}

// NewEscrowReleasedEvent is emitted when custody moves to the beneficiary.
func NewEscrowReleasedEvent(e *Escrow) events.Event {
	return escrowEvent(EventTypeEscrowRelease, e)
}

// NewEscrowRefundedEvent is emitted when custody returns to the depositor.
func NewEscrowRefundedEvent(e *Escrow) events.Event {
	return escrowEvent(EventTypeEscrowRefund, e)
}

// NewEscrowExpiredEvent is emitted when a never-funded escrow passes its
// timelock.
func NewEscrowExpiredEvent(e *Escrow) events.Event {
	return escrowEvent(EventTypeEscrowExpired, e)
}

// NewPartialFundedEvent is emitted when exactly one side of the swap is
// funded.
func NewPartialFundedEvent(s *SwapSession) events.Event {
	return events.Event{Type: EventTypePartialFunded, Attributes: sessionAttrs(s)}
}

// NewBothFundedEvent is emitted once both escrows report funded.
func NewBothFundedEvent(s *SwapSession) events.Event {
	return events.Event{Type: EventTypeBothFunded, Attributes: sessionAttrs(s)}
}

// NewSwapCompletedEvent is emitted after both legs released. The revealed
// secret is part of the payload: once public on one chain it is public
// everywhere, and relayers use it to finish the other side.
func NewSwapCompletedEvent(s *SwapSession, secret []byte) events.Event {
	attrs := sessionAttrs(s)
	attrs["secret"] = hex.EncodeToString(secret)
	return events.Event{Type: EventTypeSwapCompleted, Attributes: attrs}
}

// NewSwapCancelledEvent is emitted when a session reaches a cancelled or
// expired terminal state.
func NewSwapCancelledEvent(s *SwapSession) events.Event {
	return events.Event{Type: EventTypeSwapCancelled, Attributes: sessionAttrs(s)}
}

func sessionAttrs(s *SwapSession) map[string]string {
	attrs := make(map[string]string)
	if s == nil {
		return attrs
	}
	attrs["orderHash"] = hex.EncodeToString(s.OrderHash[:])
	attrs["status"] = s.Status.String()
	if order := s.Order; order != nil {
		attrs["maker"] = order.Maker.String()
		attrs["makerChain"] = order.MakerChain
		attrs["makerAsset"] = order.MakerAsset
		attrs["makerAmount"] = order.MakerAmount.String()
		attrs["takerChain"] = order.TakerChain
		attrs["takerAsset"] = order.TakerAsset
		attrs["takerAmount"] = order.TakerAmount.String()
		attrs["timelock"] = strconv.FormatInt(order.Timelock, 10)
	}
	if !s.Taker.IsZero() {
		attrs["taker"] = s.Taker.String()
	}
	return attrs
}

func escrowEvent(eventType string, e *Escrow) events.Event {
	attrs := make(map[string]string)
	if e == nil {
		return events.Event{Type: eventType, Attributes: attrs}
	}
	attrs["escrowId"] = hex.EncodeToString(e.ID[:])
	attrs["orderHash"] = hex.EncodeToString(e.OrderHash[:])
	attrs["side"] = e.Side.String()
	attrs["chain"] = e.Chain
	attrs["asset"] = e.Asset
	attrs["amount"] = e.Amount.String()
	attrs["address"] = e.Address().String()
	attrs["status"] = e.Status.String()
	attrs["timelock"] = strconv.FormatInt(e.Timelock, 10)
	return events.Event{Type: eventType, Attributes: attrs}
}
