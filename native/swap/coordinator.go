package swap

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"crosslock/core/events"
	"crosslock/crypto"
	"crosslock/native/common"
)

const moduleName = "swap"

// SessionStatus represents the coordinator-level lifecycle of a swap.
type SessionStatus uint8

const (
	SessionCreated SessionStatus = iota
	SessionFilled
	SessionPartialFunded
	SessionFunded
	SessionCompleting
	SessionCompleted
	SessionCancelled
	SessionExpired
)

// Terminal reports whether the session can no longer transition.
func (s SessionStatus) Terminal() bool {
	switch s {
	case SessionCompleted, SessionCancelled, SessionExpired:
		return true
	default:
		return false
	}
}

// String renders the status for events and API projections.
func (s SessionStatus) String() string {
	switch s {
	case SessionCreated:
		return "created"
	case SessionFilled:
		return "filled"
	case SessionPartialFunded:
		return "partial_funded"
	case SessionFunded:
		return "funded"
	case SessionCompleting:
		return "completing"
	case SessionCompleted:
		return "completed"
	case SessionCancelled:
		return "cancelled"
	case SessionExpired:
		return "expired"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// SwapSession aggregates one order with its two escrow legs. It is keyed by
// the order hash and holds the revealed secret once the swap completes.
type SwapSession struct {
	OrderHash   [32]byte
	Order       *Order
	Taker       crypto.Address
	MakerEscrow [32]byte
	TakerEscrow [32]byte
	Secret      []byte
	Status      SessionStatus
	CreatedAt   int64
	UpdatedAt   int64
}

// Clone returns a deep copy of the session.
func (s *SwapSession) Clone() *SwapSession {
	if s == nil {
		return nil
	}
	clone := *s
	clone.Order = s.Order.Clone()
	clone.Secret = append([]byte(nil), s.Secret...)
	return &clone
}

// coordinatorState extends the engine state with session persistence and the
// per-maker nonce replay guard.
type coordinatorState interface {
	engineState
	SessionPut(*SwapSession) error
	SessionGet(orderHash [32]byte) (*SwapSession, bool, error)
	SessionList() ([][32]byte, error)
	NonceUsed(maker crypto.Address, nonce uint64) (bool, error)
	NonceConsume(maker crypto.Address, nonce uint64) error
}

// OrderStatus is the read-only projection of a session and its escrows.
type OrderStatus struct {
	OrderHash   [32]byte
	Exists      bool
	Status      SessionStatus
	Completed   bool
	Cancelled   bool
	Funding     FundingState
	MakerEscrow *Escrow
	TakerEscrow *Escrow
}

// Coordinator orchestrates the order lifecycle across both escrows: create,
// fill, fund, complete, cancel. Transitions are serialized per process; the
// escrow state machine provides the cross-process exclusivity.
type Coordinator struct {
	mu      sync.Mutex
	state   coordinatorState
	engine  *Engine
	emitter events.Emitter
	nowFn   func() int64
	pauses  common.PauseView
}

// NewCoordinator constructs a coordinator bound to the supplied escrow engine
// and state backend.
func NewCoordinator(state coordinatorState, engine *Engine) *Coordinator {
	return &Coordinator{
		state:   state,
		engine:  engine,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetEmitter configures the event emitter used by the coordinator and its
// engine. Passing nil resets both to a no-op implementation.
func (c *Coordinator) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		c.emitter = events.NoopEmitter{}
	} else {
		c.emitter = emitter
	}
	if c.engine != nil {
		c.engine.SetEmitter(emitter)
	}
}

// SetPauses wires the administrative pause switchboard.
func (c *Coordinator) SetPauses(p common.PauseView) {
	if c == nil {
		return
	}
	c.pauses = p
}

// SetNowFunc overrides the time source, primarily used in tests. The engine
// clock follows the coordinator clock.
func (c *Coordinator) SetNowFunc(now func() int64) {
	if now == nil {
		c.nowFn = func() int64 { return time.Now().Unix() }
	} else {
		c.nowFn = now
	}
	if c.engine != nil {
		c.engine.SetNowFunc(now)
	}
}

func (c *Coordinator) emit(evt events.Event) {
	if c == nil || c.emitter == nil {
		return
	}
	c.emitter.Emit(evt)
}

func (c *Coordinator) now() int64 {
	if c == nil || c.nowFn == nil {
		return time.Now().Unix()
	}
	return c.nowFn()
}

func (c *Coordinator) loadSession(orderHash [32]byte) (*SwapSession, error) {
	if c == nil || c.state == nil {
		return nil, fmt.Errorf("%w: coordinator state not configured", ErrInvalidInput)
	}
	session, ok, err := c.state.SessionGet(orderHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %x", ErrOrderNotFound, orderHash)
	}
	return session, nil
}

func (c *Coordinator) storeSession(session *SwapSession) error {
	session.UpdatedAt = c.now()
	return c.state.SessionPut(session)
}

// CreateOrder validates the order, consumes the maker nonce, derives the two
// deterministic escrows and persists the session. No funding happens here.
// Idempotent: re-submitting an identical order returns the stored session.
func (c *Coordinator) CreateOrder(ctx context.Context, order *Order) (*SwapSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := common.Guard(c.pauses, moduleName); err != nil {
		return nil, err
	}
	sanitized, err := SanitizeOrder(order)
	if err != nil {
		return nil, err
	}
	now := c.now()
	if err := ValidateOrderTiming(sanitized, time.Unix(now, 0)); err != nil {
		return nil, err
	}
	orderHash, err := ComputeOrderHash(sanitized)
	if err != nil {
		return nil, err
	}
	if existing, ok, err := c.state.SessionGet(orderHash); err != nil {
		return nil, err
	} else if ok {
		if !existing.Order.Equal(sanitized) {
			return nil, fmt.Errorf("%w: order hash collision with different definition", ErrInvalidInput)
		}
		return existing.Clone(), nil
	}
	used, err := c.state.NonceUsed(sanitized.Maker, sanitized.Nonce)
	if err != nil {
		return nil, err
	}
	if used {
		return nil, fmt.Errorf("%w: maker %s nonce %d", ErrNonceUsed, sanitized.Maker, sanitized.Nonce)
	}

	makerID, takerID := DeriveEscrowAddresses(orderHash, sanitized.Salt)
	makerEscrow := &Escrow{
		ID:        makerID,
		OrderHash: orderHash,
		Side:      SideMaker,
		Chain:     sanitized.MakerChain,
		Asset:     sanitized.MakerAsset,
		Amount:    sanitized.MakerAmount,
		Depositor: sanitized.Maker,
		HashLock:  sanitized.HashLock,
		Timelock:  sanitized.Timelock,
		Status:    EscrowInit,
	}
	takerEscrow := &Escrow{
		ID:        takerID,
		OrderHash: orderHash,
		Side:      SideTaker,
		Chain:     sanitized.TakerChain,
		Asset:     sanitized.TakerAsset,
		Amount:    sanitized.TakerAmount,
		// Depositor is unknown until a taker fills the order. The maker is the
		// beneficiary of the taker leg: revealing the secret there is what
		// hands it to the taker for the other chain.
		Beneficiary: sanitized.Maker,
		HashLock:    sanitized.HashLock,
		Timelock:    TakerEscrowTimelock(sanitized.Timelock),
		Status:      EscrowInit,
	}
	if _, err := c.engine.CreateEscrow(ctx, makerEscrow); err != nil {
		return nil, err
	}
	if _, err := c.engine.CreateEscrow(ctx, takerEscrow); err != nil {
		return nil, err
	}
	if err := c.state.NonceConsume(sanitized.Maker, sanitized.Nonce); err != nil {
		return nil, err
	}
	session := &SwapSession{
		OrderHash:   orderHash,
		Order:       sanitized,
		MakerEscrow: makerID,
		TakerEscrow: takerID,
		Status:      SessionCreated,
		CreatedAt:   now,
	}
	if err := c.storeSession(session); err != nil {
		return nil, err
	}
	c.emit(NewOrderCreatedEvent(session))
	return session.Clone(), nil
}

// FillOrder records the taker's agreement to the terms. It moves no funds:
// funding stays an explicit, per-side deposit so the two legs can land on
// different ledgers with different confirmation latencies.
func (c *Coordinator) FillOrder(ctx context.Context, orderHash [32]byte, taker crypto.Address) (*SwapSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := common.Guard(c.pauses, moduleName); err != nil {
		return nil, err
	}
	session, err := c.loadSession(orderHash)
	if err != nil {
		return nil, err
	}
	if taker.IsZero() {
		return nil, fmt.Errorf("%w: taker address required", ErrInvalidInput)
	}
	if session.Status.Terminal() {
		return nil, fmt.Errorf("%w: session is %s", ErrAlreadyFinalized, session.Status)
	}
	if !session.Taker.IsZero() {
		if session.Taker.Equal(taker) {
			return session.Clone(), nil
		}
		return nil, fmt.Errorf("%w: order already filled by %s", ErrInvalidInput, session.Taker)
	}
	if taker.Equal(session.Order.Maker) {
		return nil, fmt.Errorf("%w: maker cannot fill own order", ErrInvalidInput)
	}
	makerEscrow, err := c.engine.loadEscrow(session.MakerEscrow)
	if err != nil {
		return nil, err
	}
	takerEscrow, err := c.engine.loadEscrow(session.TakerEscrow)
	if err != nil {
		return nil, err
	}
	makerEscrow.Beneficiary = taker
	takerEscrow.Depositor = taker
	if err := c.engine.storeEscrow(makerEscrow); err != nil {
		return nil, err
	}
	if err := c.engine.storeEscrow(takerEscrow); err != nil {
		return nil, err
	}
	session.Taker = taker
	if session.Status == SessionCreated {
		session.Status = SessionFilled
	}
	if err := c.storeSession(session); err != nil {
		return nil, err
	}
	c.emit(NewOrderFilledEvent(session))
	return session.Clone(), nil
}

// FundEscrow applies an explicit deposit to one side of the swap and refreshes
// the session's funding status.
func (c *Coordinator) FundEscrow(ctx context.Context, orderHash [32]byte, side EscrowSide, depositor crypto.Address, amount *big.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := common.Guard(c.pauses, moduleName); err != nil {
		return err
	}
	session, err := c.loadSession(orderHash)
	if err != nil {
		return err
	}
	if session.Status.Terminal() {
		return fmt.Errorf("%w: session is %s", ErrAlreadyFinalized, session.Status)
	}
	escrowID := session.MakerEscrow
	if side == SideTaker {
		escrowID = session.TakerEscrow
	}
	if err := c.engine.Fund(ctx, escrowID, depositor, amount); err != nil {
		return err
	}
	return c.onFundingProgress(session)
}

// OnFundingProgress recomputes the session status from the observed escrow
// flags. The resolver's watcher invokes it on a poll loop so funding detected
// out-of-band (direct ledger deposits) still advances the session.
func (c *Coordinator) OnFundingProgress(orderHash [32]byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	session, err := c.loadSession(orderHash)
	if err != nil {
		return err
	}
	return c.onFundingProgress(session)
}

func (c *Coordinator) onFundingProgress(session *SwapSession) error {
	if session.Status.Terminal() || session.Status == SessionCompleting {
		return nil
	}
	funding, err := c.fundingState(session)
	if err != nil {
		return err
	}
	newStatus := session.Status
	switch funding {
	case BothFunded:
		newStatus = SessionFunded
	case OnlyMakerFunded, OnlyTakerFunded:
		newStatus = SessionPartialFunded
	}
	if newStatus == session.Status {
		return nil
	}
	session.Status = newStatus
	if err := c.storeSession(session); err != nil {
		return err
	}
	switch newStatus {
	case SessionPartialFunded:
		c.emit(NewPartialFundedEvent(session))
	case SessionFunded:
		c.emit(NewBothFundedEvent(session))
	}
	return nil
}

// CompleteSwap releases both escrows against the revealed secret. Callable by
// anyone, including a disinterested relayer, because access control is the
// secret itself. Gated on both sides being funded: each escrow only checks
// its own flag, so this protocol-level gate is what prevents draining one side
// while the other is empty. Idempotent.
func (c *Coordinator) CompleteSwap(ctx context.Context, orderHash [32]byte, secret []byte) (*SwapSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := common.Guard(c.pauses, moduleName); err != nil {
		return nil, err
	}
	session, err := c.loadSession(orderHash)
	if err != nil {
		return nil, err
	}
	if session.Status == SessionCompleted {
		return session.Clone(), nil
	}
	if session.Status.Terminal() {
		return nil, fmt.Errorf("%w: session is %s", ErrAlreadyFinalized, session.Status)
	}
	if len(secret) != SecretLength {
		return nil, fmt.Errorf("%w: secret must be %d bytes", ErrInvalidSecret, SecretLength)
	}
	if !Verify(secret, session.Order.HashLock) {
		return nil, fmt.Errorf("%w: preimage does not match order hashlock", ErrInvalidSecret)
	}
	if session.Status != SessionCompleting {
		funding, err := c.fundingState(session)
		if err != nil {
			return nil, err
		}
		if funding != BothFunded {
			return nil, fmt.Errorf("%w: funding state %s, both escrows must be funded", ErrTooEarly, funding)
		}
		session.Status = SessionCompleting
		if err := c.storeSession(session); err != nil {
			return nil, err
		}
	}
	// Taker leg first: releasing it pays the maker and publishes the secret,
	// which is exactly what the taker needs to claim the maker leg. Finishing
	// in this order keeps the revealed-secret window inside the asymmetric
	// timelocks.
	if err := c.engine.Release(ctx, session.TakerEscrow, secret); err != nil {
		return nil, err
	}
	if err := c.engine.Release(ctx, session.MakerEscrow, secret); err != nil {
		return nil, err
	}
	session.Secret = append([]byte(nil), secret...)
	session.Status = SessionCompleted
	if err := c.storeSession(session); err != nil {
		return nil, err
	}
	c.emit(NewSwapCompletedEvent(session, secret))
	return session.Clone(), nil
}

// Cancel drives the timeout path: funded escrows past their timelock are
// refunded, never-funded escrows past their timelock expire. Permissionless.
// Returns ErrTooEarly when no leg is actionable yet.
func (c *Coordinator) Cancel(ctx context.Context, orderHash [32]byte) (*SwapSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := common.Guard(c.pauses, moduleName); err != nil {
		return nil, err
	}
	session, err := c.loadSession(orderHash)
	if err != nil {
		return nil, err
	}
	if session.Status == SessionCancelled || session.Status == SessionExpired {
		return session.Clone(), nil
	}
	if session.Status == SessionCompleted {
		return nil, fmt.Errorf("%w: swap already completed", ErrAlreadyFinalized)
	}
	now := c.now()
	progressed := false
	anyRefunded := false
	for _, id := range [][32]byte{session.MakerEscrow, session.TakerEscrow} {
		esc, err := c.engine.loadEscrow(id)
		if err != nil {
			return nil, err
		}
		if esc.Status.Terminal() || now < esc.Timelock {
			continue
		}
		switch esc.Status {
		case EscrowFunded:
			if err := c.engine.Refund(ctx, id); err != nil {
				return nil, err
			}
			anyRefunded = true
		case EscrowInit:
			if err := c.engine.Expire(id); err != nil {
				return nil, err
			}
		}
		progressed = true
	}
	makerEscrow, err := c.engine.loadEscrow(session.MakerEscrow)
	if err != nil {
		return nil, err
	}
	takerEscrow, err := c.engine.loadEscrow(session.TakerEscrow)
	if err != nil {
		return nil, err
	}
	if makerEscrow.Status.Terminal() && takerEscrow.Status.Terminal() {
		if anyRefunded || makerEscrow.Status == EscrowRefunded || takerEscrow.Status == EscrowRefunded {
			session.Status = SessionCancelled
		} else {
			session.Status = SessionExpired
		}
		if err := c.storeSession(session); err != nil {
			return nil, err
		}
		c.emit(NewSwapCancelledEvent(session))
		return session.Clone(), nil
	}
	if !progressed {
		return nil, fmt.Errorf("%w: no escrow past its timelock", ErrTooEarly)
	}
	if err := c.storeSession(session); err != nil {
		return nil, err
	}
	return session.Clone(), nil
}

// OrderStatus returns the read-only aggregate projection for an order hash.
// Unknown orders report Exists=false rather than an error.
func (c *Coordinator) OrderStatus(orderHash [32]byte) (*OrderStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	session, ok, err := c.state.SessionGet(orderHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &OrderStatus{OrderHash: orderHash}, nil
	}
	makerEscrow, err := c.engine.loadEscrow(session.MakerEscrow)
	if err != nil {
		return nil, err
	}
	takerEscrow, err := c.engine.loadEscrow(session.TakerEscrow)
	if err != nil {
		return nil, err
	}
	funding, err := c.fundingState(session)
	if err != nil {
		return nil, err
	}
	return &OrderStatus{
		OrderHash:   orderHash,
		Exists:      true,
		Status:      session.Status,
		Completed:   session.Status == SessionCompleted,
		Cancelled:   session.Status == SessionCancelled || session.Status == SessionExpired,
		Funding:     funding,
		MakerEscrow: makerEscrow,
		TakerEscrow: takerEscrow,
	}, nil
}

// Sessions lists every known order hash, used by the watcher sweeps.
func (c *Coordinator) Sessions() ([][32]byte, error) {
	if c == nil || c.state == nil {
		return nil, fmt.Errorf("%w: coordinator state not configured", ErrInvalidInput)
	}
	return c.state.SessionList()
}
