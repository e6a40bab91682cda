package swap

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"crosslock/crypto"
	"crosslock/storage"
)

// Store persists sessions, escrows and consumed nonces in a key-value
// database. It satisfies the coordinator and engine state interfaces.
type Store struct {
	db storage.Database
}

// NewStore wraps the supplied database.
func NewStore(db storage.Database) *Store {
	return &Store{db: db}
}

// storedEscrow is the JSON wire form of an Escrow. Amounts travel as decimal
// strings, hashes as hex, addresses as bech32.
type storedEscrow struct {
	ID          string `json:"id"`
	OrderHash   string `json:"orderHash"`
	Side        uint8  `json:"side"`
	Chain       string `json:"chain"`
	Asset       string `json:"asset"`
	Amount      string `json:"amount"`
	Depositor   string `json:"depositor,omitempty"`
	Beneficiary string `json:"beneficiary,omitempty"`
	HashLock    string `json:"hashLock"`
	Timelock    int64  `json:"timelock"`
	CreatedAt   int64  `json:"createdAt"`
	Status      uint8  `json:"status"`
}

type storedSession struct {
	OrderHash   string       `json:"orderHash"`
	Order       *storedOrder `json:"order"`
	Taker       string       `json:"taker,omitempty"`
	MakerEscrow string       `json:"makerEscrow"`
	TakerEscrow string       `json:"takerEscrow"`
	Secret      string       `json:"secret,omitempty"`
	Status      uint8        `json:"status"`
	CreatedAt   int64        `json:"createdAt"`
	UpdatedAt   int64        `json:"updatedAt"`
}

type storedOrder struct {
	Maker       string `json:"maker"`
	MakerChain  string `json:"makerChain"`
	MakerAsset  string `json:"makerAsset"`
	MakerAmount string `json:"makerAmount"`
	TakerChain  string `json:"takerChain"`
	TakerAsset  string `json:"takerAsset"`
	TakerAmount string `json:"takerAmount"`
	HashLock    string `json:"hashLock"`
	Timelock    int64  `json:"timelock"`
	Nonce       uint64 `json:"nonce"`
	Salt        string `json:"salt"`
}

func encodeAddress(a crypto.Address) string {
	if a.IsZero() {
		return ""
	}
	return a.String()
}

func decodeAddress(s string) (crypto.Address, error) {
	if s == "" {
		return crypto.Address{}, nil
	}
	return crypto.DecodeAddress(s)
}

func decodeHash(s string) ([32]byte, error) {
	var out [32]byte
	raw, err := hex.DecodeString(s)
	if err != nil {
		return out, fmt.Errorf("decode hash: %w", err)
	}
	if len(raw) != 32 {
		return out, fmt.Errorf("decode hash: expected 32 bytes, got %d", len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

func decodeAmount(s string) (*big.Int, error) {
	if s == "" {
		return big.NewInt(0), nil
	}
	amt, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("decode amount %q", s)
	}
	return amt, nil
}

func marshalEscrow(e *Escrow) ([]byte, error) {
	return json.Marshal(&storedEscrow{
		ID:          hex.EncodeToString(e.ID[:]),
		OrderHash:   hex.EncodeToString(e.OrderHash[:]),
		Side:        uint8(e.Side),
		Chain:       e.Chain,
		Asset:       e.Asset,
		Amount:      e.Amount.String(),
		Depositor:   encodeAddress(e.Depositor),
		Beneficiary: encodeAddress(e.Beneficiary),
		HashLock:    hex.EncodeToString(e.HashLock[:]),
		Timelock:    e.Timelock,
		CreatedAt:   e.CreatedAt,
		Status:      uint8(e.Status),
	})
}

func unmarshalEscrow(raw []byte) (*Escrow, error) {
	var stored storedEscrow
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, err
	}
	esc := &Escrow{
		Side:     EscrowSide(stored.Side),
		Chain:    stored.Chain,
		Asset:    stored.Asset,
		Timelock: stored.Timelock,

		CreatedAt: stored.CreatedAt,
		Status:    EscrowStatus(stored.Status),
	}
	var err error
	if esc.ID, err = decodeHash(stored.ID); err != nil {
		return nil, err
	}
	if esc.OrderHash, err = decodeHash(stored.OrderHash); err != nil {
		return nil, err
	}
	if esc.HashLock, err = decodeHash(stored.HashLock); err != nil {
		return nil, err
	}
	if esc.Amount, err = decodeAmount(stored.Amount); err != nil {
		return nil, err
	}
	if esc.Depositor, err = decodeAddress(stored.Depositor); err != nil {
		return nil, err
	}
	if esc.Beneficiary, err = decodeAddress(stored.Beneficiary); err != nil {
		return nil, err
	}
	return esc, nil
}

// EscrowPut persists a sanitized escrow.
func (s *Store) EscrowPut(e *Escrow) error {
	sanitized, err := SanitizeEscrow(e)
	if err != nil {
		return err
	}
	raw, err := marshalEscrow(sanitized)
	if err != nil {
		return err
	}
	return s.db.Put(escrowKey(sanitized.ID), raw)
}

// EscrowGet loads an escrow by identifier.
func (s *Store) EscrowGet(id [32]byte) (*Escrow, bool, error) {
	raw, err := s.db.Get(escrowKey(id))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	esc, err := unmarshalEscrow(raw)
	if err != nil {
		return nil, false, err
	}
	return esc, true, nil
}

// SessionPut persists a swap session.
func (s *Store) SessionPut(session *SwapSession) error {
	if session == nil || session.Order == nil {
		return fmt.Errorf("%w: nil session", ErrInvalidInput)
	}
	stored := &storedSession{
		OrderHash:   hex.EncodeToString(session.OrderHash[:]),
		Taker:       encodeAddress(session.Taker),
		MakerEscrow: hex.EncodeToString(session.MakerEscrow[:]),
		TakerEscrow: hex.EncodeToString(session.TakerEscrow[:]),
		Status:      uint8(session.Status),
		CreatedAt:   session.CreatedAt,
		UpdatedAt:   session.UpdatedAt,
		Order: &storedOrder{
			Maker:       encodeAddress(session.Order.Maker),
			MakerChain:  session.Order.MakerChain,
			MakerAsset:  session.Order.MakerAsset,
			MakerAmount: session.Order.MakerAmount.String(),
			TakerChain:  session.Order.TakerChain,
			TakerAsset:  session.Order.TakerAsset,
			TakerAmount: session.Order.TakerAmount.String(),
			HashLock:    hex.EncodeToString(session.Order.HashLock[:]),
			Timelock:    session.Order.Timelock,
			Nonce:       session.Order.Nonce,
			Salt:        hex.EncodeToString(session.Order.Salt[:]),
		},
	}
	if len(session.Secret) > 0 {
		stored.Secret = hex.EncodeToString(session.Secret)
	}
	raw, err := json.Marshal(stored)
	if err != nil {
		return err
	}
	return s.db.Put(sessionKey(session.OrderHash), raw)
}

// SessionGet loads a session by order hash.
func (s *Store) SessionGet(orderHash [32]byte) (*SwapSession, bool, error) {
	raw, err := s.db.Get(sessionKey(orderHash))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	session, err := unmarshalSession(raw)
	if err != nil {
		return nil, false, err
	}
	return session, true, nil
}

func unmarshalSession(raw []byte) (*SwapSession, error) {
	var stored storedSession
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, err
	}
	if stored.Order == nil {
		return nil, fmt.Errorf("session record missing order")
	}
	session := &SwapSession{
		Status:    SessionStatus(stored.Status),
		CreatedAt: stored.CreatedAt,
		UpdatedAt: stored.UpdatedAt,
	}
	var err error
	if session.OrderHash, err = decodeHash(stored.OrderHash); err != nil {
		return nil, err
	}
	if session.MakerEscrow, err = decodeHash(stored.MakerEscrow); err != nil {
		return nil, err
	}
	if session.TakerEscrow, err = decodeHash(stored.TakerEscrow); err != nil {
		return nil, err
	}
	if session.Taker, err = decodeAddress(stored.Taker); err != nil {
		return nil, err
	}
	if stored.Secret != "" {
		if session.Secret, err = hex.DecodeString(stored.Secret); err != nil {
			return nil, err
		}
	}
	order := &Order{
		MakerChain: stored.Order.MakerChain,
		MakerAsset: stored.Order.MakerAsset,
		TakerChain: stored.Order.TakerChain,
		TakerAsset: stored.Order.TakerAsset,
		Timelock:   stored.Order.Timelock,
		Nonce:      stored.Order.Nonce,
	}
	if order.Maker, err = decodeAddress(stored.Order.Maker); err != nil {
		return nil, err
	}
	if order.MakerAmount, err = decodeAmount(stored.Order.MakerAmount); err != nil {
		return nil, err
	}
	if order.TakerAmount, err = decodeAmount(stored.Order.TakerAmount); err != nil {
		return nil, err
	}
	if order.HashLock, err = decodeHash(stored.Order.HashLock); err != nil {
		return nil, err
	}
	if order.Salt, err = decodeHash(stored.Order.Salt); err != nil {
		return nil, err
	}
	session.Order = order
	return session, nil
}

// SessionList returns every stored order hash.
func (s *Store) SessionList() ([][32]byte, error) {
	hashes := make([][32]byte, 0)
	var iterErr error
	err := s.db.IteratePrefix(sessionPrefix, func(key, _ []byte) bool {
		encoded := string(key[len(sessionPrefix):])
		hash, err := decodeHash(encoded)
		if err != nil {
			iterErr = err
			return false
		}
		hashes = append(hashes, hash)
		return true
	})
	if err != nil {
		return nil, err
	}
	if iterErr != nil {
		return nil, iterErr
	}
	return hashes, nil
}

// NonceUsed reports whether the maker has already consumed the nonce.
func (s *Store) NonceUsed(maker crypto.Address, nonce uint64) (bool, error) {
	return s.db.Has(nonceKey(maker, nonce))
}

// NonceConsume marks the nonce as spent for the maker.
func (s *Store) NonceConsume(maker crypto.Address, nonce uint64) error {
	used, err := s.NonceUsed(maker, nonce)
	if err != nil {
		return err
	}
	if used {
		return fmt.Errorf("%w: maker %s nonce %d", ErrNonceUsed, maker, nonce)
	}
	return s.db.Put(nonceKey(maker, nonce), []byte{1})
}
