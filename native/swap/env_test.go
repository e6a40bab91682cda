package swap

import (
	"bytes"
	"context"
	"math/big"
	"testing"
	"time"

	"crosslock/adapters/memledger"
	"crosslock/core/events"
	"crosslock/crypto"
	"crosslock/storage"
)

// testEnv wires a coordinator against in-memory ledgers and state, with a
// deterministic clock.
type testEnv struct {
	t        *testing.T
	store    *Store
	engine   *Engine
	coord    *Coordinator
	recorder *events.Recorder
	evm      *memledger.Ledger
	hash     *memledger.Ledger
	clock    int64
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		t:        t,
		store:    NewStore(storage.NewMemDB()),
		recorder: events.NewRecorder(0),
		evm:      memledger.New("evmnet", false),
		hash:     memledger.New("hashnet", true),
		clock:    1_700_000_000,
	}
	ledgers := LedgerSet{"evmnet": env.evm, "hashnet": env.hash}
	env.engine = NewEngine(env.store, ledgers)
	env.coord = NewCoordinator(env.store, env.engine)
	env.coord.SetEmitter(env.recorder)
	env.coord.SetNowFunc(func() int64 { return env.clock })
	return env
}

func (env *testEnv) now() time.Time {
	return time.Unix(env.clock, 0)
}

func (env *testEnv) advance(d time.Duration) {
	env.clock += int64(d / time.Second)
}

// newOrder builds a valid order: 100 WETH on evmnet against 50 HTS-USD on
// hashnet, expiring in just over an hour.
func (env *testEnv) newOrder(maker crypto.Address, nonce uint64) (*Order, []byte) {
	secret := bytes.Repeat([]byte{0xC3}, SecretLength)
	order := &Order{
		Maker:       maker,
		MakerChain:  "evmnet",
		MakerAsset:  "WETH",
		MakerAmount: big.NewInt(100),
		TakerChain:  "hashnet",
		TakerAsset:  "HTS-USD",
		TakerAmount: big.NewInt(50),
		HashLock:    Commit(secret),
		Timelock:    env.clock + 3700,
		Nonce:       nonce,
	}
	order.Salt[0] = byte(nonce)
	return order, secret
}

func (env *testEnv) balance(l *memledger.Ledger, account crypto.Address, asset string) *big.Int {
	env.t.Helper()
	bal, err := l.BalanceOf(context.Background(), account, asset)
	if err != nil {
		env.t.Fatalf("balance of %s: %v", account, err)
	}
	return bal
}

func (env *testEnv) mustEscrow(id [32]byte) *Escrow {
	env.t.Helper()
	esc, ok, err := env.store.EscrowGet(id)
	if err != nil {
		env.t.Fatalf("escrow get: %v", err)
	}
	if !ok {
		env.t.Fatalf("escrow %x not found", id)
	}
	return esc
}

func addr(t *testing.T, fill byte) crypto.Address {
	t.Helper()
	addr, err := crypto.NewAddress(crypto.AccountPrefix, bytes.Repeat([]byte{fill}, crypto.AddressLength))
	if err != nil {
		t.Fatalf("new address: %v", err)
	}
	return addr
}
