package swap

import (
	"encoding/binary"
	"fmt"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// amountWidth is the fixed big-endian width used when encoding amounts into
// the order preimage. Amounts wider than 32 bytes are rejected up front.
const amountWidth = 32

// ComputeOrderHash derives the canonical cross-chain identifier of an order.
// Field order is fixed and every field is encoded at a fixed width (strings
// are hashed first), so independently written implementations agree on the
// digest.
func ComputeOrderHash(o *Order) ([32]byte, error) {
	sanitized, err := SanitizeOrder(o)
	if err != nil {
		return [32]byte{}, err
	}
	makerAmt := make([]byte, amountWidth)
	if sanitized.MakerAmount.BitLen() > amountWidth*8 {
		return [32]byte{}, fmt.Errorf("%w: maker amount exceeds 256 bits", ErrInvalidInput)
	}
	sanitized.MakerAmount.FillBytes(makerAmt)
	takerAmt := make([]byte, amountWidth)
	if sanitized.TakerAmount.BitLen() > amountWidth*8 {
		return [32]byte{}, fmt.Errorf("%w: taker amount exceeds 256 bits", ErrInvalidInput)
	}
	sanitized.TakerAmount.FillBytes(takerAmt)

	timelock := make([]byte, 8)
	binary.BigEndian.PutUint64(timelock, uint64(sanitized.Timelock))
	nonce := make([]byte, 8)
	binary.BigEndian.PutUint64(nonce, sanitized.Nonce)

	makerChain := ethcrypto.Keccak256([]byte(sanitized.MakerChain))
	makerAsset := ethcrypto.Keccak256([]byte(sanitized.MakerAsset))
	takerChain := ethcrypto.Keccak256([]byte(sanitized.TakerChain))
	takerAsset := ethcrypto.Keccak256([]byte(sanitized.TakerAsset))

	return ethcrypto.Keccak256Hash(
		sanitized.Maker.Bytes(),
		makerChain,
		makerAsset,
		makerAmt,
		takerChain,
		takerAsset,
		takerAmt,
		sanitized.HashLock[:],
		timelock,
		nonce,
		sanitized.Salt[:],
	), nil
}

// DeriveEscrowAddresses computes the deterministic escrow identifiers for both
// sides of an order. The derivation is a pure function of (orderHash, salt,
// side tag), so maker and taker can compute deposit targets independently
// before any transaction confirms.
func DeriveEscrowAddresses(orderHash [32]byte, salt [32]byte) (makerID, takerID [32]byte) {
	makerID = ethcrypto.Keccak256Hash(orderHash[:], salt[:], []byte(SideMaker.String()))
	takerID = ethcrypto.Keccak256Hash(orderHash[:], salt[:], []byte(SideTaker.String()))
	return makerID, takerID
}

// ValidateOrderTiming checks the expiry terms of a sanitized order against the
// supplied clock: the order must leave at least MinTimelock of runway, and the
// taker-side window (timelock minus TakerTimelockBuffer) must itself lie in
// the future. Equal maker/taker expiries are a protocol hazard, never allowed.
func ValidateOrderTiming(o *Order, now time.Time) error {
	if o == nil {
		return fmt.Errorf("%w: nil order", ErrInvalidInput)
	}
	earliest := now.Add(MinTimelock).Unix()
	if o.Timelock < earliest {
		return fmt.Errorf("%w: timelock %d below minimum expiry %d", ErrInvalidInput, o.Timelock, earliest)
	}
	takerExpiry := TakerEscrowTimelock(o.Timelock)
	if takerExpiry <= now.Unix() {
		return fmt.Errorf("%w: taker-side window already closed", ErrInvalidInput)
	}
	if takerExpiry >= o.Timelock {
		return fmt.Errorf("%w: taker timelock must precede maker timelock", ErrInvalidInput)
	}
	return nil
}

// TakerEscrowTimelock returns the taker-side escrow expiry for a given order
// timelock. The taker leg always closes TakerTimelockBuffer ahead of the maker
// leg.
func TakerEscrowTimelock(orderTimelock int64) int64 {
	return orderTimelock - int64(TakerTimelockBuffer/time.Second)
}
