package swap

import (
	"fmt"
	"math/big"
	"strings"

	"crosslock/crypto"
)

// EscrowStatus represents the lifecycle states of a single escrow leg.
type EscrowStatus uint8

const (
	EscrowInit EscrowStatus = iota
	EscrowFunded
	EscrowReleased
	EscrowRefunded
	EscrowExpired
)

// Valid reports whether the status value is within the supported range.
func (s EscrowStatus) Valid() bool {
	switch s {
	case EscrowInit, EscrowFunded, EscrowReleased, EscrowRefunded, EscrowExpired:
		return true
	default:
		return false
	}
}

// Terminal reports whether the escrow can no longer transition.
func (s EscrowStatus) Terminal() bool {
	switch s {
	case EscrowReleased, EscrowRefunded, EscrowExpired:
		return true
	default:
		return false
	}
}

// String renders the status for event payloads and API projections.
func (s EscrowStatus) String() string {
	switch s {
	case EscrowInit:
		return "created"
	case EscrowFunded:
		return "funded"
	case EscrowReleased:
		return "released"
	case EscrowRefunded:
		return "refunded"
	case EscrowExpired:
		return "expired"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// EscrowSide identifies which leg of the swap an escrow secures.
type EscrowSide uint8

const (
	SideMaker EscrowSide = iota
	SideTaker
)

// String returns the canonical side tag used in address derivation.
func (s EscrowSide) String() string {
	if s == SideTaker {
		return "taker"
	}
	return "maker"
}

// Order is a swap intent: the maker offers MakerAmount of MakerAsset on
// MakerChain against TakerAmount of TakerAsset on TakerChain, locked under a
// shared hashlock and an absolute expiry.
type Order struct {
	Maker       crypto.Address
	MakerChain  string
	MakerAsset  string
	MakerAmount *big.Int
	TakerChain  string
	TakerAsset  string
	TakerAmount *big.Int
	HashLock    [32]byte
	Timelock    int64
	Nonce       uint64
	Salt        [32]byte
}

// Clone returns a deep copy so callers can safely mutate the copy without
// affecting stored instances.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	if o.MakerAmount != nil {
		clone.MakerAmount = new(big.Int).Set(o.MakerAmount)
	} else {
		clone.MakerAmount = big.NewInt(0)
	}
	if o.TakerAmount != nil {
		clone.TakerAmount = new(big.Int).Set(o.TakerAmount)
	} else {
		clone.TakerAmount = big.NewInt(0)
	}
	return &clone
}

// NormalizeAsset canonicalises an asset symbol: trimmed, uppercase, non-empty.
func NormalizeAsset(symbol string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(symbol))
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty asset symbol", ErrInvalidInput)
	}
	return trimmed, nil
}

// NormalizeChain canonicalises a chain identifier: trimmed, lowercase,
// non-empty.
func NormalizeChain(id string) (string, error) {
	trimmed := strings.ToLower(strings.TrimSpace(id))
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty chain id", ErrInvalidInput)
	}
	return trimmed, nil
}

// SanitizeOrder validates and normalises an order, returning a cloned instance
// with canonical chain/asset casing and non-nil amounts. The original value is
// not mutated.
func SanitizeOrder(o *Order) (*Order, error) {
	if o == nil {
		return nil, fmt.Errorf("%w: nil order", ErrInvalidInput)
	}
	clone := o.Clone()
	var err error
	if clone.MakerChain, err = NormalizeChain(clone.MakerChain); err != nil {
		return nil, err
	}
	if clone.TakerChain, err = NormalizeChain(clone.TakerChain); err != nil {
		return nil, err
	}
	if clone.MakerAsset, err = NormalizeAsset(clone.MakerAsset); err != nil {
		return nil, err
	}
	if clone.TakerAsset, err = NormalizeAsset(clone.TakerAsset); err != nil {
		return nil, err
	}
	if clone.Maker.IsZero() {
		return nil, fmt.Errorf("%w: maker address required", ErrInvalidInput)
	}
	if clone.MakerAmount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: maker amount must be positive", ErrInvalidInput)
	}
	if clone.TakerAmount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: taker amount must be positive", ErrInvalidInput)
	}
	if clone.HashLock == ([32]byte{}) {
		return nil, fmt.Errorf("%w: hashlock required", ErrInvalidInput)
	}
	return clone, nil
}

// Equal reports whether two orders describe the same intent.
func (o *Order) Equal(other *Order) bool {
	if o == nil || other == nil {
		return o == other
	}
	return o.Maker.Equal(other.Maker) &&
		o.MakerChain == other.MakerChain &&
		o.MakerAsset == other.MakerAsset &&
		o.MakerAmount.Cmp(other.MakerAmount) == 0 &&
		o.TakerChain == other.TakerChain &&
		o.TakerAsset == other.TakerAsset &&
		o.TakerAmount.Cmp(other.TakerAmount) == 0 &&
		o.HashLock == other.HashLock &&
		o.Timelock == other.Timelock &&
		o.Nonce == other.Nonce &&
		o.Salt == other.Salt
}

// Escrow captures one leg of a swap: a deterministic holding account that
// accepts a single deposit and either releases it to the beneficiary on a
// valid secret or returns it to the depositor after the timelock.
type Escrow struct {
	ID          [32]byte
	OrderHash   [32]byte
	Side        EscrowSide
	Chain       string
	Asset       string
	Amount      *big.Int
	Depositor   crypto.Address
	Beneficiary crypto.Address
	HashLock    [32]byte
	Timelock    int64
	CreatedAt   int64
	Status      EscrowStatus
}

// Clone returns a deep copy of the escrow object.
func (e *Escrow) Clone() *Escrow {
	if e == nil {
		return nil
	}
	clone := *e
	if e.Amount != nil {
		clone.Amount = new(big.Int).Set(e.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	return &clone
}

// Address renders the escrow's deterministic deposit address: the first 20
// bytes of its identifier under the escrow bech32 prefix.
func (e *Escrow) Address() crypto.Address {
	if e == nil {
		return crypto.Address{}
	}
	return crypto.MustNewAddress(crypto.EscrowPrefix, e.ID[:crypto.AddressLength])
}

// SanitizeEscrow validates the supplied escrow definition and returns a cloned
// instance with a non-nil amount.
func SanitizeEscrow(e *Escrow) (*Escrow, error) {
	if e == nil {
		return nil, fmt.Errorf("%w: nil escrow", ErrInvalidInput)
	}
	clone := e.Clone()
	if clone.Amount.Sign() < 0 {
		return nil, fmt.Errorf("%w: escrow amount must be non-negative", ErrInvalidInput)
	}
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("%w: invalid escrow status %d", ErrInvalidInput, clone.Status)
	}
	var err error
	if clone.Chain, err = NormalizeChain(clone.Chain); err != nil {
		return nil, err
	}
	if clone.Asset, err = NormalizeAsset(clone.Asset); err != nil {
		return nil, err
	}
	return clone, nil
}
