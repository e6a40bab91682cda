package swap

import "errors"

var (
	// ErrInvalidInput marks malformed or inconsistent caller input.
	ErrInvalidInput = errors.New("swap: invalid input")
	// ErrTooEarly is returned when an operation's time or funding
	// precondition has not been met yet. The call may succeed later.
	ErrTooEarly = errors.New("swap: too early")
	// ErrInvalidSecret is returned when a presented preimage does not match
	// the hashlock. The escrow state is left untouched.
	ErrInvalidSecret = errors.New("swap: invalid secret")
	// ErrAlreadyFinalized marks attempts to transition an escrow or session
	// that already reached a conflicting terminal state.
	ErrAlreadyFinalized = errors.New("swap: already finalized")
	// ErrOrderNotFound is returned for unknown order hashes.
	ErrOrderNotFound = errors.New("swap: order not found")
	// ErrEscrowNotFound is returned for unknown escrow identifiers.
	ErrEscrowNotFound = errors.New("swap: escrow not found")
	// ErrExternalCall wraps failures from the underlying ledger adapters.
	ErrExternalCall = errors.New("swap: external call failed")
	// ErrNonceUsed guards against order replay per maker.
	ErrNonceUsed = errors.New("swap: nonce already used")
)
