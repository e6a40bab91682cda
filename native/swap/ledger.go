package swap

import (
	"context"
	"fmt"
	"math/big"

	"crosslock/crypto"
)

// LedgerAdapter abstracts the per-chain custody operations the escrow engine
// depends on. Implementations wrap a chain's RPC/submission layer; the engine
// never assumes any specific transaction format. Every call may block on
// remote confirmation, hence the contexts.
type LedgerAdapter interface {
	// Transfer moves amount of asset between two accounts on this ledger.
	Transfer(ctx context.Context, from, to crypto.Address, asset string, amount *big.Int) error
	// BalanceOf reads the current balance of an account for the given asset.
	BalanceOf(ctx context.Context, account crypto.Address, asset string) (*big.Int, error)
	// Associate prepares an account to hold the given asset. Ledgers without
	// an explicit association step return nil.
	Associate(ctx context.Context, account crypto.Address, asset string) error
}

// LedgerSet maps normalized chain identifiers to their adapters.
type LedgerSet map[string]LedgerAdapter

// Adapter resolves the adapter for a chain.
func (l LedgerSet) Adapter(chain string) (LedgerAdapter, error) {
	normalized, err := NormalizeChain(chain)
	if err != nil {
		return nil, err
	}
	adapter, ok := l[normalized]
	if !ok {
		return nil, fmt.Errorf("%w: no ledger adapter for chain %q", ErrInvalidInput, normalized)
	}
	return adapter, nil
}
