package server

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"crosslock/crypto"
	"crosslock/native/common"
	"crosslock/native/swap"
	"crosslock/observability"
)

type orderRequest struct {
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

type fillRequest struct {
	Taker string `json:"taker"`
}

type fundRequest struct {
	Depositor string `json:"depositor"`
	Amount    string `json:"amount"`
}

type completeRequest struct {
	Secret string `json:"secret"`
}

type escrowView struct {
	ID          string `json:"id"`
	Side        string `json:"side"`
	Chain       string `json:"chain"`
	Asset       string `json:"asset"`
	Amount      string `json:"amount"`
	Address     string `json:"address"`
	Depositor   string `json:"depositor,omitempty"`
	Beneficiary string `json:"beneficiary,omitempty"`
	Timelock    int64  `json:"timelock"`
	Status      string `json:"status"`
}

type sessionView struct {
	OrderHash   string `json:"orderHash"`
	Status      string `json:"status"`
	Taker       string `json:"taker,omitempty"`
	MakerEscrow string `json:"makerEscrow"`
	TakerEscrow string `json:"takerEscrow"`
}

type orderStatusView struct {
	OrderHash   string      `json:"orderHash"`
	Status      string      `json:"status"`
	Completed   bool        `json:"completed"`
	Cancelled   bool        `json:"cancelled"`
	Funding     string      `json:"funding"`
	MakerEscrow *escrowView `json:"makerEscrow,omitempty"`
	TakerEscrow *escrowView `json:"takerEscrow,omitempty"`
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	order, err := decodeOrder(req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	session, err := s.coord.CreateOrder(r.Context(), order)
	if err != nil {
		s.writeError(w, err)
		return
	}
	observability.Resolver().RecordOrderCreated()
	writeJSON(w, http.StatusCreated, newSessionView(session))
}

func (s *Server) handleFillOrder(w http.ResponseWriter, r *http.Request) {
	orderHash, err := hashParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req fillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	taker, err := decodeAddressField(req.Taker, "taker")
	if err != nil {
		s.writeError(w, err)
		return
	}
	session, err := s.coord.FillOrder(r.Context(), orderHash, taker)
	if err != nil {
		s.writeError(w, err)
		return
	}
	observability.Resolver().RecordOrderFilled()
	writeJSON(w, http.StatusOK, newSessionView(session))
}

func (s *Server) handleFundEscrow(w http.ResponseWriter, r *http.Request) {
	orderHash, err := hashParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	side, err := sideParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req fundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	depositor, err := decodeAddressField(req.Depositor, "depositor")
	if err != nil {
		s.writeError(w, err)
		return
	}
	amount, err := decodeAmountField(req.Amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.coord.FundEscrow(r.Context(), orderHash, side, depositor, amount); err != nil {
		s.writeError(w, err)
		return
	}
	status, err := s.coord.OrderStatus(orderHash)
	if err != nil {
		s.writeError(w, err)
		return
	}
	chain := ""
	if side == swap.SideMaker && status.MakerEscrow != nil {
		chain = status.MakerEscrow.Chain
	} else if status.TakerEscrow != nil {
		chain = status.TakerEscrow.Chain
	}
	observability.Resolver().RecordDeposit(chain, side.String())
	writeJSON(w, http.StatusOK, newOrderStatusView(status))
}

func (s *Server) handleCompleteSwap(w http.ResponseWriter, r *http.Request) {
	if !s.completeLimit.Allow() {
		observability.API().RecordThrottle("/v1/orders/{hash}/complete")
		http.Error(w, "too many completion attempts", http.StatusTooManyRequests)
		return
	}
	orderHash, err := hashParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	secret, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(req.Secret), "0x"))
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: secret must be hex", swap.ErrInvalidSecret))
		return
	}
	session, err := s.coord.CompleteSwap(r.Context(), orderHash, secret)
	if err != nil {
		s.writeError(w, err)
		return
	}
	observability.Resolver().RecordCompleted(sessionDuration(session))
	writeJSON(w, http.StatusOK, newSessionView(session))
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	orderHash, err := hashParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	session, err := s.coord.Cancel(r.Context(), orderHash)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if session.Status.Terminal() {
		observability.Resolver().RecordCancelled(session.Status.String())
	}
	writeJSON(w, http.StatusOK, newSessionView(session))
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	orderHash, err := hashParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	status, err := s.coord.OrderStatus(orderHash)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !status.Exists {
		http.Error(w, "order not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, newOrderStatusView(status))
}

func (s *Server) handleGetFunding(w http.ResponseWriter, r *http.Request) {
	orderHash, err := hashParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	funding, err := s.coord.CheckFunding(orderHash)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"orderHash": hex.EncodeToString(orderHash[:]),
		"funding":   funding.String(),
	})
}

func (s *Server) handleOrderEvents(w http.ResponseWriter, r *http.Request) {
	orderHash, err := hashParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	journal, err := s.journal.EventsForOrder(r.Context(), hex.EncodeToString(orderHash[:]))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, journal)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	var (
		cursor int64
		limit  int
	)
	if raw := r.URL.Query().Get("after"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			http.Error(w, "invalid after cursor", http.StatusBadRequest)
			return
		}
		cursor = parsed
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	listed, err := s.journal.ListEvents(r.Context(), cursor, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listed)
}

// writeError maps coordinator sentinels onto HTTP status codes. 425 Too Early
// covers both timelock waits and incomplete funding.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, swap.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, swap.ErrOrderNotFound), errors.Is(err, swap.ErrEscrowNotFound):
		status = http.StatusNotFound
	case errors.Is(err, swap.ErrTooEarly):
		status = http.StatusTooEarly
	case errors.Is(err, swap.ErrInvalidSecret):
		status = http.StatusForbidden
	case errors.Is(err, swap.ErrAlreadyFinalized), errors.Is(err, swap.ErrNonceUsed):
		status = http.StatusConflict
	case errors.Is(err, common.ErrModulePaused):
		status = http.StatusServiceUnavailable
	case errors.Is(err, swap.ErrExternalCall):
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func hashParam(r *http.Request) ([32]byte, error) {
	var out [32]byte
	raw := strings.TrimPrefix(strings.TrimSpace(chi.URLParam(r, "hash")), "0x")
	decoded, err := hex.DecodeString(raw)
	if err != nil || len(decoded) != 32 {
		return out, fmt.Errorf("%w: order hash must be 32 hex bytes", swap.ErrInvalidInput)
	}
	copy(out[:], decoded)
	return out, nil
}

func sideParam(r *http.Request) (swap.EscrowSide, error) {
	switch strings.ToLower(strings.TrimSpace(chi.URLParam(r, "side"))) {
	case "maker":
		return swap.SideMaker, nil
	case "taker":
		return swap.SideTaker, nil
	default:
		return swap.SideMaker, fmt.Errorf("%w: side must be maker or taker", swap.ErrInvalidInput)
	}
}

func decodeOrder(req orderRequest) (*swap.Order, error) {
	maker, err := decodeAddressField(req.Maker, "maker")
	if err != nil {
		return nil, err
	}
	makerAmount, err := decodeAmountField(req.MakerAmount)
	if err != nil {
		return nil, err
	}
	takerAmount, err := decodeAmountField(req.TakerAmount)
	if err != nil {
		return nil, err
	}
	hashLock, err := decodeHashField(req.HashLock, "hashLock")
	if err != nil {
		return nil, err
	}
	salt, err := decodeHashField(req.Salt, "salt")
	if err != nil {
		return nil, err
	}
	return &swap.Order{
		Maker:       maker,
		MakerChain:  req.MakerChain,
		MakerAsset:  req.MakerAsset,
		MakerAmount: makerAmount,
		TakerChain:  req.TakerChain,
		TakerAsset:  req.TakerAsset,
		TakerAmount: takerAmount,
		HashLock:    hashLock,
		Timelock:    req.Timelock,
		Nonce:       req.Nonce,
		Salt:        salt,
	}, nil
}

func decodeAddressField(raw, field string) (crypto.Address, error) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(raw))
	if err != nil {
		return crypto.Address{}, fmt.Errorf("%w: %s: %v", swap.ErrInvalidInput, field, err)
	}
	return addr, nil
}

func decodeAmountField(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("%w: amount must be a decimal string", swap.ErrInvalidInput)
	}
	return amount, nil
}

func decodeHashField(raw, field string) ([32]byte, error) {
	var out [32]byte
	decoded, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(raw), "0x"))
	if err != nil || len(decoded) != 32 {
		return out, fmt.Errorf("%w: %s must be 32 hex bytes", swap.ErrInvalidInput, field)
	}
	copy(out[:], decoded)
	return out, nil
}

func newSessionView(s *swap.SwapSession) sessionView {
	view := sessionView{
		OrderHash:   hex.EncodeToString(s.OrderHash[:]),
		Status:      s.Status.String(),
		MakerEscrow: hex.EncodeToString(s.MakerEscrow[:]),
		TakerEscrow: hex.EncodeToString(s.TakerEscrow[:]),
	}
	if !s.Taker.IsZero() {
		view.Taker = s.Taker.String()
	}
	return view
}

func newEscrowView(e *swap.Escrow) *escrowView {
	if e == nil {
		return nil
	}
	view := &escrowView{
		ID:       hex.EncodeToString(e.ID[:]),
		Side:     e.Side.String(),
		Chain:    e.Chain,
		Asset:    e.Asset,
		Amount:   e.Amount.String(),
		Address:  e.Address().String(),
		Timelock: e.Timelock,
		Status:   e.Status.String(),
	}
	if !e.Depositor.IsZero() {
		view.Depositor = e.Depositor.String()
	}
	if !e.Beneficiary.IsZero() {
		view.Beneficiary = e.Beneficiary.String()
	}
	return view
}

func newOrderStatusView(status *swap.OrderStatus) orderStatusView {
	return orderStatusView{
		OrderHash:   hex.EncodeToString(status.OrderHash[:]),
		Status:      status.Status.String(),
		Completed:   status.Completed,
		Cancelled:   status.Cancelled,
		Funding:     status.Funding.String(),
		MakerEscrow: newEscrowView(status.MakerEscrow),
		TakerEscrow: newEscrowView(status.TakerEscrow),
	}
}

func sessionDuration(s *swap.SwapSession) time.Duration {
	if s.UpdatedAt > s.CreatedAt {
		return time.Duration(s.UpdatedAt-s.CreatedAt) * time.Second
	}
	return 0
}
