package swap

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"crosslock/core/events"
	"crosslock/crypto"
)

// engineState is the subset of state-backend functionality the escrow engine
// needs. Both the persistent Store and test mocks satisfy it.
type engineState interface {
	EscrowPut(*Escrow) error
	EscrowGet(id [32]byte) (*Escrow, bool, error)
}

// Engine drives the escrow state machine. Custody moves through the chain's
// ledger adapter; state flags move through the configured backend. A
// transition either fully commits (custody moved and flag set) or fully fails.
type Engine struct {
	state   engineState
	ledgers LedgerSet
	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine creates an escrow engine with a no-op emitter. Callers can
// override the emitter via SetEmitter.
func NewEngine(state engineState, ledgers LedgerSet) *Engine {
	return &Engine{
		state:   state,
		ledgers: ledgers,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) loadEscrow(id [32]byte) (*Escrow, error) {
	if e == nil || e.state == nil {
		return nil, fmt.Errorf("%w: engine state not configured", ErrInvalidInput)
	}
	esc, ok, err := e.state.EscrowGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %x", ErrEscrowNotFound, id)
	}
	return esc, nil
}

func (e *Engine) storeEscrow(esc *Escrow) error {
	sanitized, err := SanitizeEscrow(esc)
	if err != nil {
		return err
	}
	return e.state.EscrowPut(sanitized)
}

func (e *Engine) transfer(ctx context.Context, chain string, from, to crypto.Address, asset string, amount *big.Int) error {
	adapter, err := e.ledgers.Adapter(chain)
	if err != nil {
		return err
	}
	if err := adapter.Transfer(ctx, from, to, asset, amount); err != nil {
		return fmt.Errorf("%w: transfer on %s: %v", ErrExternalCall, chain, err)
	}
	return nil
}

func (e *Engine) associate(ctx context.Context, chain string, account crypto.Address, asset string) error {
	adapter, err := e.ledgers.Adapter(chain)
	if err != nil {
		return err
	}
	if err := adapter.Associate(ctx, account, asset); err != nil {
		return fmt.Errorf("%w: associate on %s: %v", ErrExternalCall, chain, err)
	}
	return nil
}

// CreateEscrow persists a freshly derived escrow definition in its initial
// state and asks the chain to associate the deposit address with the asset.
// Idempotent: re-creating an identical definition returns the stored copy.
func (e *Engine) CreateEscrow(ctx context.Context, esc *Escrow) (*Escrow, error) {
	sanitized, err := SanitizeEscrow(esc)
	if err != nil {
		return nil, err
	}
	if sanitized.Status != EscrowInit {
		return nil, fmt.Errorf("%w: new escrow must start in created state", ErrInvalidInput)
	}
	if sanitized.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: escrow amount must be positive", ErrInvalidInput)
	}
	existing, ok, err := e.state.EscrowGet(sanitized.ID)
	if err != nil {
		return nil, err
	}
	if ok {
		if existing.OrderHash != sanitized.OrderHash || existing.Amount.Cmp(sanitized.Amount) != 0 || existing.HashLock != sanitized.HashLock || existing.Timelock != sanitized.Timelock {
			return nil, fmt.Errorf("%w: escrow id already exists with different definition", ErrInvalidInput)
		}
		return existing, nil
	}
	if err := e.associate(ctx, sanitized.Chain, sanitized.Address(), sanitized.Asset); err != nil {
		return nil, err
	}
	sanitized.CreatedAt = e.now()
	if err := e.state.EscrowPut(sanitized); err != nil {
		return nil, err
	}
	return sanitized.Clone(), nil
}

// Fund moves the escrow amount from the depositor into the escrow account and
// marks the leg as funded. Wrong depositor or wrong amount is rejected, not
// retried, even against an already-funded escrow. Idempotent when the same
// depositor repeats the exact deposit.
func (e *Engine) Fund(ctx context.Context, id [32]byte, depositor crypto.Address, amount *big.Int) error {
	esc, err := e.loadEscrow(id)
	if err != nil {
		return err
	}
	if esc.Status.Terminal() {
		return fmt.Errorf("%w: escrow %x is %s", ErrAlreadyFinalized, id, esc.Status)
	}
	if esc.Depositor.IsZero() {
		return fmt.Errorf("%w: escrow has no depositor yet (order not filled)", ErrInvalidInput)
	}
	if !esc.Depositor.Equal(depositor) {
		return fmt.Errorf("%w: depositor mismatch", ErrInvalidInput)
	}
	if amount == nil || amount.Cmp(esc.Amount) != 0 {
		return fmt.Errorf("%w: deposit must equal escrow amount %s", ErrInvalidInput, esc.Amount)
	}
	// Idempotent only for the exact deposit already applied.
	if esc.Status == EscrowFunded {
		return nil
	}
	if err := e.transfer(ctx, esc.Chain, esc.Depositor, esc.Address(), esc.Asset, esc.Amount); err != nil {
		return err
	}
	esc.Status = EscrowFunded
	if err := e.storeEscrow(esc); err != nil {
		return err
	}
	e.emit(NewEscrowFundedEvent(esc))
	return nil
}

// Release hands the deposit to the beneficiary against a valid preimage of
// the hashlock. A wrong secret fails with ErrInvalidSecret and leaves state
// untouched; access control is the secret itself, not caller identity.
func (e *Engine) Release(ctx context.Context, id [32]byte, secret []byte) error {
	esc, err := e.loadEscrow(id)
	if err != nil {
		return err
	}
	if esc.Status == EscrowReleased {
		return nil
	}
	if esc.Status == EscrowInit {
		return fmt.Errorf("%w: escrow not funded", ErrTooEarly)
	}
	if esc.Status != EscrowFunded {
		return fmt.Errorf("%w: cannot release escrow in state %s", ErrAlreadyFinalized, esc.Status)
	}
	if len(secret) != SecretLength {
		return fmt.Errorf("%w: secret must be %d bytes", ErrInvalidSecret, SecretLength)
	}
	if !Verify(secret, esc.HashLock) {
		return fmt.Errorf("%w: preimage does not match hashlock", ErrInvalidSecret)
	}
	if esc.Beneficiary.IsZero() {
		return fmt.Errorf("%w: escrow has no beneficiary", ErrInvalidInput)
	}
	// The escrow address was associated at creation, but the beneficiary is
	// only bound at fill time and may never have held the asset on this chain.
	if err := e.associate(ctx, esc.Chain, esc.Beneficiary, esc.Asset); err != nil {
		return err
	}
	if err := e.transfer(ctx, esc.Chain, esc.Address(), esc.Beneficiary, esc.Asset, esc.Amount); err != nil {
		return err
	}
	esc.Status = EscrowReleased
	if err := e.storeEscrow(esc); err != nil {
		return err
	}
	e.emit(NewEscrowReleasedEvent(esc))
	return nil
}

// Refund returns the deposit to the depositor once the timelock has elapsed.
// Callable by anyone so a vanished counterparty cannot strand funds.
func (e *Engine) Refund(ctx context.Context, id [32]byte) error {
	esc, err := e.loadEscrow(id)
	if err != nil {
		return err
	}
	if esc.Status == EscrowRefunded {
		return nil
	}
	if esc.Status == EscrowInit {
		return fmt.Errorf("%w: escrow not funded", ErrTooEarly)
	}
	if esc.Status != EscrowFunded {
		return fmt.Errorf("%w: cannot refund escrow in state %s", ErrAlreadyFinalized, esc.Status)
	}
	if e.now() < esc.Timelock {
		return fmt.Errorf("%w: refund opens at %d", ErrTooEarly, esc.Timelock)
	}
	if err := e.transfer(ctx, esc.Chain, esc.Address(), esc.Depositor, esc.Asset, esc.Amount); err != nil {
		return err
	}
	esc.Status = EscrowRefunded
	if err := e.storeEscrow(esc); err != nil {
		return err
	}
	e.emit(NewEscrowRefundedEvent(esc))
	return nil
}

// Expire marks a never-funded escrow as expired once its timelock passes.
// Purely informational: there are no funds to move.
func (e *Engine) Expire(id [32]byte) error {
	esc, err := e.loadEscrow(id)
	if err != nil {
		return err
	}
	if esc.Status == EscrowExpired {
		return nil
	}
	if esc.Status != EscrowInit {
		return fmt.Errorf("%w: cannot expire escrow in state %s", ErrAlreadyFinalized, esc.Status)
	}
	if e.now() < esc.Timelock {
		return fmt.Errorf("%w: expiry opens at %d", ErrTooEarly, esc.Timelock)
	}
	esc.Status = EscrowExpired
	if err := e.storeEscrow(esc); err != nil {
		return err
	}
	e.emit(NewEscrowExpiredEvent(esc))
	return nil
}
