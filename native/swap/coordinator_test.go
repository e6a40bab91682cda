package swap

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"crosslock/native/common"
)

// fillAndFund drives an order through create/fill and funds both sides.
func fillAndFund(t *testing.T, env *testEnv) (*SwapSession, []byte) {
	t.Helper()
	ctx := context.Background()
	maker := addr(t, 0x11)
	taker := addr(t, 0x22)
	order, secret := env.newOrder(maker, 1)

	session, err := env.coord.CreateOrder(ctx, order)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if _, err := env.coord.FillOrder(ctx, session.OrderHash, taker); err != nil {
		t.Fatalf("fill order: %v", err)
	}
	env.evm.Mint(maker, "WETH", big.NewInt(100))
	env.hash.Mint(taker, "HTS-USD", big.NewInt(50))
	if err := env.coord.FundEscrow(ctx, session.OrderHash, SideMaker, maker, big.NewInt(100)); err != nil {
		t.Fatalf("fund maker escrow: %v", err)
	}
	if err := env.coord.FundEscrow(ctx, session.OrderHash, SideTaker, taker, big.NewInt(50)); err != nil {
		t.Fatalf("fund taker escrow: %v", err)
	}
	return session, secret
}

func TestCreateOrderDerivesEscrows(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	maker := addr(t, 0x11)
	order, _ := env.newOrder(maker, 1)

	session, err := env.coord.CreateOrder(ctx, order)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	wantMaker, wantTaker := DeriveEscrowAddresses(session.OrderHash, order.Salt)
	if session.MakerEscrow != wantMaker || session.TakerEscrow != wantTaker {
		t.Fatalf("session escrow ids do not match derivation")
	}
	makerEscrow := env.mustEscrow(session.MakerEscrow)
	takerEscrow := env.mustEscrow(session.TakerEscrow)
	if makerEscrow.Timelock <= takerEscrow.Timelock {
		t.Fatalf("taker timelock %d must expire before maker timelock %d", takerEscrow.Timelock, makerEscrow.Timelock)
	}
	if !takerEscrow.Beneficiary.Equal(order.Maker) {
		t.Fatalf("taker escrow must pay the maker")
	}

	// Identical resubmission is idempotent.
	again, err := env.coord.CreateOrder(ctx, order)
	if err != nil {
		t.Fatalf("resubmit order: %v", err)
	}
	if again.OrderHash != session.OrderHash {
		t.Fatalf("resubmission produced a different session")
	}

	// Same nonce, different terms: replay guard trips.
	replay, _ := env.newOrder(maker, 1)
	replay.TakerAmount = big.NewInt(51)
	if _, err := env.coord.CreateOrder(ctx, replay); !errors.Is(err, ErrNonceUsed) {
		t.Fatalf("expected ErrNonceUsed, got %v", err)
	}
}

func TestHappyPathSwap(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session, secret := fillAndFund(t, env)
	maker := session.Order.Maker
	status, err := env.coord.OrderStatus(session.OrderHash)
	if err != nil {
		t.Fatalf("order status: %v", err)
	}
	if status.Funding != BothFunded {
		t.Fatalf("funding = %s, want both_funded", status.Funding)
	}

	completed, err := env.coord.CompleteSwap(ctx, session.OrderHash, secret)
	if err != nil {
		t.Fatalf("complete swap: %v", err)
	}
	if completed.Status != SessionCompleted {
		t.Fatalf("session status = %s, want completed", completed.Status)
	}
	taker := completed.Taker

	// Maker paid 100 WETH, received 50 HTS-USD; taker the mirror image.
	if bal := env.balance(env.evm, maker, "WETH"); bal.Sign() != 0 {
		t.Fatalf("maker WETH = %s, want 0", bal)
	}
	if bal := env.balance(env.hash, maker, "HTS-USD"); bal.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("maker HTS-USD = %s, want 50", bal)
	}
	if bal := env.balance(env.hash, taker, "HTS-USD"); bal.Sign() != 0 {
		t.Fatalf("taker HTS-USD = %s, want 0", bal)
	}
	if bal := env.balance(env.evm, taker, "WETH"); bal.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("taker WETH = %s, want 100", bal)
	}

	status, err = env.coord.OrderStatus(session.OrderHash)
	if err != nil {
		t.Fatalf("order status: %v", err)
	}
	if !status.Completed || status.Cancelled {
		t.Fatalf("status projection completed=%t cancelled=%t", status.Completed, status.Cancelled)
	}
}

func TestCompleteSwapIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session, secret := fillAndFund(t, env)

	first, err := env.coord.CompleteSwap(ctx, session.OrderHash, secret)
	if err != nil {
		t.Fatalf("complete swap: %v", err)
	}
	taker := first.Taker
	second, err := env.coord.CompleteSwap(ctx, session.OrderHash, secret)
	if err != nil {
		t.Fatalf("second complete swap: %v", err)
	}
	if second.Status != SessionCompleted {
		t.Fatalf("second call status = %s", second.Status)
	}
	// No double transfer.
	if bal := env.balance(env.evm, taker, "WETH"); bal.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("taker WETH after double completion = %s, want 100", bal)
	}
}

func TestCompleteSwapRejectsWrongSecret(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session, _ := fillAndFund(t, env)

	wrong := bytes.Repeat([]byte{0xEE}, SecretLength)
	if _, err := env.coord.CompleteSwap(ctx, session.OrderHash, wrong); !errors.Is(err, ErrInvalidSecret) {
		t.Fatalf("expected ErrInvalidSecret, got %v", err)
	}
	if got := env.mustEscrow(session.MakerEscrow).Status; got != EscrowFunded {
		t.Fatalf("maker escrow status = %s after failed completion", got)
	}
	if got := env.mustEscrow(session.TakerEscrow).Status; got != EscrowFunded {
		t.Fatalf("taker escrow status = %s after failed completion", got)
	}
}

func TestCompleteSwapGatedOnBothFunded(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	maker := addr(t, 0x11)
	taker := addr(t, 0x22)
	order, secret := env.newOrder(maker, 1)
	session, err := env.coord.CreateOrder(ctx, order)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if _, err := env.coord.FillOrder(ctx, session.OrderHash, taker); err != nil {
		t.Fatalf("fill order: %v", err)
	}
	env.evm.Mint(maker, "WETH", big.NewInt(100))
	if err := env.coord.FundEscrow(ctx, session.OrderHash, SideMaker, maker, big.NewInt(100)); err != nil {
		t.Fatalf("fund maker escrow: %v", err)
	}

	// Only the maker side is funded: the secret must not unlock anything yet,
	// even though the maker-side escrow alone would accept the release.
	if _, err := env.coord.CompleteSwap(ctx, session.OrderHash, secret); !errors.Is(err, ErrTooEarly) {
		t.Fatalf("expected ErrTooEarly with one-sided funding, got %v", err)
	}
	funding, err := env.coord.CheckFunding(session.OrderHash)
	if err != nil {
		t.Fatalf("check funding: %v", err)
	}
	if funding != OnlyMakerFunded {
		t.Fatalf("funding = %s, want only_maker_funded", funding)
	}
}

func TestRelayerCanComplete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session, secret := fillAndFund(t, env)

	// The completing caller's identity never enters the protocol: any party
	// holding the revealed secret can finish the swap. Nothing in CompleteSwap
	// takes a caller, which is the point; this exercises the public path a
	// relayer would use.
	completed, err := env.coord.CompleteSwap(ctx, session.OrderHash, secret)
	if err != nil {
		t.Fatalf("relayer completion: %v", err)
	}
	if completed.Status != SessionCompleted {
		t.Fatalf("session status = %s", completed.Status)
	}
	if bal := env.balance(env.evm, completed.Taker, "WETH"); bal.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("taker WETH = %s, want 100", bal)
	}
}

func TestTimeoutRefund(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	maker := addr(t, 0x11)
	order, _ := env.newOrder(maker, 1)
	session, err := env.coord.CreateOrder(ctx, order)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	env.evm.Mint(maker, "WETH", big.NewInt(100))
	if err := env.coord.FundEscrow(ctx, session.OrderHash, SideMaker, maker, big.NewInt(100)); err != nil {
		t.Fatalf("fund maker escrow: %v", err)
	}

	if _, err := env.coord.Cancel(ctx, session.OrderHash); !errors.Is(err, ErrTooEarly) {
		t.Fatalf("premature cancel: expected ErrTooEarly, got %v", err)
	}

	env.advance(2 * time.Hour)
	cancelled, err := env.coord.Cancel(ctx, session.OrderHash)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != SessionCancelled {
		t.Fatalf("session status = %s, want cancelled", cancelled.Status)
	}
	if bal := env.balance(env.evm, maker, "WETH"); bal.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("maker refund balance = %s, want 100", bal)
	}
	if got := env.mustEscrow(session.TakerEscrow).Status; got != EscrowExpired {
		t.Fatalf("unfunded taker escrow status = %s, want expired", got)
	}
	// Cancelling again is a no-op.
	if _, err := env.coord.Cancel(ctx, session.OrderHash); err != nil {
		t.Fatalf("repeat cancel: %v", err)
	}
}

func TestCancelRespectsAsymmetricTimelocks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session, _ := fillAndFund(t, env)

	// Step past the taker window but not the maker window: only the taker leg
	// becomes refundable.
	takerEscrow := env.mustEscrow(session.TakerEscrow)
	env.clock = takerEscrow.Timelock + 1
	partial, err := env.coord.Cancel(ctx, session.OrderHash)
	if err != nil {
		t.Fatalf("cancel after taker expiry: %v", err)
	}
	if partial.Status.Terminal() {
		t.Fatalf("session terminal with maker leg still locked")
	}
	if got := env.mustEscrow(session.TakerEscrow).Status; got != EscrowRefunded {
		t.Fatalf("taker escrow status = %s, want refunded", got)
	}
	if got := env.mustEscrow(session.MakerEscrow).Status; got != EscrowFunded {
		t.Fatalf("maker escrow status = %s, want still funded", got)
	}

	env.clock = session.Order.Timelock + 1
	final, err := env.coord.Cancel(ctx, session.OrderHash)
	if err != nil {
		t.Fatalf("cancel after maker expiry: %v", err)
	}
	if final.Status != SessionCancelled {
		t.Fatalf("session status = %s, want cancelled", final.Status)
	}
}

func TestCancelAfterCompletionFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session, secret := fillAndFund(t, env)
	if _, err := env.coord.CompleteSwap(ctx, session.OrderHash, secret); err != nil {
		t.Fatalf("complete swap: %v", err)
	}
	env.advance(2 * time.Hour)
	if _, err := env.coord.Cancel(ctx, session.OrderHash); !errors.Is(err, ErrAlreadyFinalized) {
		t.Fatalf("expected ErrAlreadyFinalized, got %v", err)
	}
}

func TestPauseGuardBlocksMutations(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	pauses := common.NewPauseSwitch()
	env.coord.SetPauses(pauses)
	maker := addr(t, 0x11)
	order, _ := env.newOrder(maker, 1)

	pauses.Pause("swap")
	if _, err := env.coord.CreateOrder(ctx, order); !errors.Is(err, common.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	pauses.Resume("swap")
	if _, err := env.coord.CreateOrder(ctx, order); err != nil {
		t.Fatalf("create order after resume: %v", err)
	}
}

func TestOrderStatusUnknownOrder(t *testing.T) {
	env := newTestEnv(t)
	var unknown [32]byte
	unknown[0] = 0xFD
	status, err := env.coord.OrderStatus(unknown)
	if err != nil {
		t.Fatalf("order status: %v", err)
	}
	if status.Exists {
		t.Fatalf("unknown order reported as existing")
	}
	if _, err := env.coord.CheckFunding(unknown); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestEventsEmittedAcrossLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session, secret := fillAndFund(t, env)
	if _, err := env.coord.CompleteSwap(ctx, session.OrderHash, secret); err != nil {
		t.Fatalf("complete swap: %v", err)
	}

	types := make(map[string]int)
	for _, evt := range env.recorder.After(0, 0) {
		types[evt.Type]++
	}
	for _, want := range []string{
		EventTypeOrderCreated,
		EventTypeOrderFilled,
		EventTypeEscrowFunded,
		EventTypePartialFunded,
		EventTypeBothFunded,
		EventTypeEscrowRelease,
		EventTypeSwapCompleted,
	} {
		if types[want] == 0 {
			t.Fatalf("missing event %s (saw %v)", want, types)
		}
	}
	if types[EventTypeEscrowFunded] != 2 || types[EventTypeEscrowRelease] != 2 {
		t.Fatalf("expected two funded and two released escrow events, saw %v", types)
	}
}
