package swap

import "fmt"

// FundingState is the cross-chain funding picture of a swap. The two escrows
// finalize on independent ledgers, so a one-sided window is inherent; the
// coordinator must refuse secret revelation until BothFunded.
type FundingState uint8

const (
	NeitherFunded FundingState = iota
	OnlyMakerFunded
	OnlyTakerFunded
	BothFunded
)

// String renders the funding state for projections and events.
func (f FundingState) String() string {
	switch f {
	case NeitherFunded:
		return "neither_funded"
	case OnlyMakerFunded:
		return "only_maker_funded"
	case OnlyTakerFunded:
		return "only_taker_funded"
	case BothFunded:
		return "both_funded"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(f))
	}
}

// CheckFunding reads both escrows of an order and reports which sides hold a
// deposit. Released legs count as funded history for completion purposes only
// at the session level; here only the live Funded flag matters.
func (c *Coordinator) CheckFunding(orderHash [32]byte) (FundingState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	session, err := c.loadSession(orderHash)
	if err != nil {
		return NeitherFunded, err
	}
	return c.fundingState(session)
}

func (c *Coordinator) fundingState(session *SwapSession) (FundingState, error) {
	makerEscrow, err := c.engine.loadEscrow(session.MakerEscrow)
	if err != nil {
		return NeitherFunded, err
	}
	takerEscrow, err := c.engine.loadEscrow(session.TakerEscrow)
	if err != nil {
		return NeitherFunded, err
	}
	makerFunded := makerEscrow.Status == EscrowFunded
	takerFunded := takerEscrow.Status == EscrowFunded
	switch {
	case makerFunded && takerFunded:
		return BothFunded, nil
	case makerFunded:
		return OnlyMakerFunded, nil
	case takerFunded:
		return OnlyTakerFunded, nil
	default:
		return NeitherFunded, nil
	}
}
