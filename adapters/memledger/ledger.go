// Package memledger provides an in-memory LedgerAdapter used by tests and by
// the resolver's dev mode. It mimics the custody semantics of a real chain:
// balances per (account, asset), optional explicit asset association, and
// atomic transfers.
package memledger

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"crosslock/crypto"
)

// Ledger is an in-memory, association-aware token ledger for a single chain.
type Ledger struct {
	mu           sync.RWMutex
	chain        string
	requireAssoc bool
	balances     map[string]map[string]*big.Int
	associated   map[string]map[string]bool
}

// New constructs a ledger. When requireAssociation is true, accounts must be
// associated with an asset before they can receive it, mirroring ledgers with
// explicit token-association semantics.
func New(chain string, requireAssociation bool) *Ledger {
	return &Ledger{
		chain:        chain,
		requireAssoc: requireAssociation,
		balances:     make(map[string]map[string]*big.Int),
		associated:   make(map[string]map[string]bool),
	}
}

// Chain returns the chain identifier this ledger simulates.
func (l *Ledger) Chain() string { return l.chain }

// Mint credits an account out of thin air. Test and dev-mode helper only.
func (l *Ledger) Mint(account crypto.Address, asset string, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.associateLocked(account, asset)
	l.creditLocked(account, asset, amount)
}

// Transfer moves amount of asset between two accounts atomically.
func (l *Ledger) Transfer(_ context.Context, from, to crypto.Address, asset string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%s: transfer amount must be positive", l.chain)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.requireAssoc && !l.associated[to.String()][asset] {
		return fmt.Errorf("%s: account %s not associated with %s", l.chain, to, asset)
	}
	balance := l.balanceLocked(from, asset)
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%s: insufficient balance: have %s, need %s", l.chain, balance, amount)
	}
	l.debitLocked(from, asset, amount)
	l.creditLocked(to, asset, amount)
	return nil
}

// BalanceOf reads the current balance of an account.
func (l *Ledger) BalanceOf(_ context.Context, account crypto.Address, asset string) (*big.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balanceLocked(account, asset), nil
}

// Associate prepares an account to hold the asset. A no-op on ledgers without
// association semantics.
func (l *Ledger) Associate(_ context.Context, account crypto.Address, asset string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.associateLocked(account, asset)
	return nil
}

func (l *Ledger) associateLocked(account crypto.Address, asset string) {
	key := account.String()
	if l.associated[key] == nil {
		l.associated[key] = make(map[string]bool)
	}
	l.associated[key][asset] = true
}

func (l *Ledger) balanceLocked(account crypto.Address, asset string) *big.Int {
	assets := l.balances[account.String()]
	if assets == nil || assets[asset] == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(assets[asset])
}

func (l *Ledger) creditLocked(account crypto.Address, asset string, amount *big.Int) {
	key := account.String()
	if l.balances[key] == nil {
		l.balances[key] = make(map[string]*big.Int)
	}
	if l.balances[key][asset] == nil {
		l.balances[key][asset] = big.NewInt(0)
	}
	l.balances[key][asset] = new(big.Int).Add(l.balances[key][asset], amount)
}

func (l *Ledger) debitLocked(account crypto.Address, asset string, amount *big.Int) {
	key := account.String()
	if l.balances[key] == nil || l.balances[key][asset] == nil {
		return
	}
	l.balances[key][asset] = new(big.Int).Sub(l.balances[key][asset], amount)
}
