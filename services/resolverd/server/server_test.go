package server

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"crosslock/adapters/memledger"
	"crosslock/core/events"
	"crosslock/crypto"
	"crosslock/native/common"
	"crosslock/native/swap"
	"crosslock/services/resolverd/storage"
	kvstore "crosslock/storage"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type testHarness struct {
	server *Server
	http   *httptest.Server
	coord  *swap.Coordinator
	pauses *common.PauseSwitch
	evm    *memledger.Ledger
	hash   *memledger.Ledger
	clock  int64
	maker  crypto.Address
	taker  crypto.Address
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	h := &testHarness{
		evm:   memledger.New("evmnet", false),
		hash:  memledger.New("hashnet", false),
		clock: 1_700_000_000,
	}
	state := swap.NewStore(kvstore.NewMemDB())
	engine := swap.NewEngine(state, swap.LedgerSet{"evmnet": h.evm, "hashnet": h.hash})
	h.coord = swap.NewCoordinator(state, engine)
	h.coord.SetEmitter(events.NewRecorder(0))
	h.coord.SetNowFunc(func() int64 { return h.clock })
	h.pauses = common.NewPauseSwitch()
	h.coord.SetPauses(h.pauses)

	journal, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { journal.Close() })

	auth, err := NewAuthenticator(testSecret, "resolverd")
	require.NoError(t, err)

	srv, err := New(Config{ListenAddress: ":0", CompletePerSecond: 100, CompleteBurst: 100}, h.coord, journal, h.pauses, auth, nil)
	require.NoError(t, err)
	h.server = srv
	h.http = httptest.NewServer(srv.Handler())
	t.Cleanup(h.http.Close)

	h.maker = testAddr(t, 0x11)
	h.taker = testAddr(t, 0x22)
	return h
}

func testAddr(t *testing.T, fill byte) crypto.Address {
	t.Helper()
	addr, err := crypto.NewAddress(crypto.AccountPrefix, bytes.Repeat([]byte{fill}, crypto.AddressLength))
	require.NoError(t, err)
	return addr
}

func (h *testHarness) post(t *testing.T, path string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	resp, err := http.Post(h.http.URL+path, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	return resp
}

func (h *testHarness) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(h.http.URL + path)
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (h *testHarness) orderPayload(nonce uint64) (orderRequest, []byte) {
	secret := bytes.Repeat([]byte{0xC3}, swap.SecretLength)
	hashLock := swap.Commit(secret)
	var salt [32]byte
	salt[0] = byte(nonce)
	return orderRequest{
		Maker:       h.maker.String(),
		MakerChain:  "evmnet",
		MakerAsset:  "WETH",
		MakerAmount: "100",
		TakerChain:  "hashnet",
		TakerAsset:  "HTS-USD",
		TakerAmount: "50",
		HashLock:    hex.EncodeToString(hashLock[:]),
		Timelock:    h.clock + 7200,
		Nonce:       nonce,
		Salt:        hex.EncodeToString(salt[:]),
	}, secret
}

// createFundedSwap drives an order through create/fill/fund over HTTP and
// returns its hash and secret.
func (h *testHarness) createFundedSwap(t *testing.T) (string, []byte) {
	t.Helper()
	payload, secret := h.orderPayload(1)
	resp := h.post(t, "/v1/orders", payload)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	session := decodeBody[sessionView](t, resp)

	resp = h.post(t, "/v1/orders/"+session.OrderHash+"/fill", fillRequest{Taker: h.taker.String()})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	h.evm.Mint(h.maker, "WETH", big.NewInt(100))
	h.hash.Mint(h.taker, "HTS-USD", big.NewInt(50))

	resp = h.post(t, "/v1/escrows/"+session.OrderHash+"/maker/fund", fundRequest{Depositor: h.maker.String(), Amount: "100"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	resp = h.post(t, "/v1/escrows/"+session.OrderHash+"/taker/fund", fundRequest{Depositor: h.taker.String(), Amount: "50"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	return session.OrderHash, secret
}

func TestSwapLifecycleOverHTTP(t *testing.T) {
	h := newHarness(t)
	orderHash, secret := h.createFundedSwap(t)

	resp := h.get(t, "/v1/orders/"+orderHash+"/funding")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	funding := decodeBody[map[string]string](t, resp)
	require.Equal(t, "both_funded", funding["funding"])

	resp = h.post(t, "/v1/orders/"+orderHash+"/complete", completeRequest{Secret: hex.EncodeToString(secret)})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	completed := decodeBody[sessionView](t, resp)
	require.Equal(t, "completed", completed.Status)

	resp = h.get(t, "/v1/orders/"+orderHash)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status := decodeBody[orderStatusView](t, resp)
	require.True(t, status.Completed)
	require.False(t, status.Cancelled)
	require.Equal(t, "released", status.MakerEscrow.Status)
	require.Equal(t, "released", status.TakerEscrow.Status)
}

func TestCompleteRejectsWrongSecret(t *testing.T) {
	h := newHarness(t)
	orderHash, _ := h.createFundedSwap(t)

	wrong := hex.EncodeToString(bytes.Repeat([]byte{0xEE}, swap.SecretLength))
	resp := h.post(t, "/v1/orders/"+orderHash+"/complete", completeRequest{Secret: wrong})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
}

func TestCompleteBeforeFundedIsTooEarly(t *testing.T) {
	h := newHarness(t)
	payload, secret := h.orderPayload(1)
	resp := h.post(t, "/v1/orders", payload)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	session := decodeBody[sessionView](t, resp)

	resp = h.post(t, "/v1/orders/"+session.OrderHash+"/complete", completeRequest{Secret: hex.EncodeToString(secret)})
	require.Equal(t, http.StatusTooEarly, resp.StatusCode)
	resp.Body.Close()
}

func TestCancelAfterTimeout(t *testing.T) {
	h := newHarness(t)
	payload, _ := h.orderPayload(1)
	resp := h.post(t, "/v1/orders", payload)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	session := decodeBody[sessionView](t, resp)

	resp = h.post(t, "/v1/orders/"+session.OrderHash+"/cancel", nil)
	require.Equal(t, http.StatusTooEarly, resp.StatusCode)
	resp.Body.Close()

	h.clock += 8000
	resp = h.post(t, "/v1/orders/"+session.OrderHash+"/cancel", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cancelled := decodeBody[sessionView](t, resp)
	require.Equal(t, "expired", cancelled.Status)
}

func TestUnknownOrderIs404(t *testing.T) {
	h := newHarness(t)
	missing := strings.Repeat("ab", 32)
	resp := h.get(t, "/v1/orders/"+missing)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp = h.get(t, "/v1/orders/"+missing+"/funding")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestMalformedHashIs400(t *testing.T) {
	h := newHarness(t)
	resp := h.get(t, "/v1/orders/nothex")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestNonceReplayIsConflict(t *testing.T) {
	h := newHarness(t)
	payload, _ := h.orderPayload(1)
	resp := h.post(t, "/v1/orders", payload)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	// Same nonce, different terms.
	payload.TakerAmount = "51"
	resp = h.post(t, "/v1/orders", payload)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func adminToken(t *testing.T, role string, expires time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":  "ops",
		"role": role,
		"iss":  "resolverd",
		"aud":  adminAudience,
		"exp":  expires.Unix(),
		"iat":  time.Now().Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func (h *testHarness) adminPost(t *testing.T, path, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, h.http.URL+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestAdminPauseRequiresToken(t *testing.T) {
	h := newHarness(t)

	resp := h.adminPost(t, "/admin/pause", "")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	resp = h.adminPost(t, "/admin/pause", adminToken(t, "viewer", time.Now().Add(time.Hour)))
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	resp = h.adminPost(t, "/admin/pause", adminToken(t, "admin", time.Now().Add(time.Hour)))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Mutations are rejected while paused.
	payload, _ := h.orderPayload(9)
	resp = h.post(t, "/v1/orders", payload)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	resp.Body.Close()

	resp = h.adminPost(t, "/admin/resume", adminToken(t, "admin", time.Now().Add(time.Hour)))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = h.post(t, "/v1/orders", payload)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()
}

func TestExpiredAdminTokenRejected(t *testing.T) {
	h := newHarness(t)
	resp := h.adminPost(t, "/admin/pause", adminToken(t, "admin", time.Now().Add(-time.Hour)))
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestEventsEndpoint(t *testing.T) {
	h := newHarness(t)
	journal := h.server.journal.(*storage.Storage)
	for seq := int64(1); seq <= 3; seq++ {
		err := journal.InsertEvent(context.Background(), events.Event{
			Sequence:   seq,
			Type:       "escrow.funded",
			Attributes: map[string]string{"orderHash": "aa"},
		})
		require.NoError(t, err)
	}

	resp := h.get(t, "/v1/events?after=1&limit=10")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	listed := decodeBody[[]events.Event](t, resp)
	require.Len(t, listed, 2)
	require.Equal(t, int64(2), listed[0].Sequence)

	resp = h.get(t, "/v1/events?after=bogus")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestHealthz(t *testing.T) {
	h := newHarness(t)
	resp := h.get(t, "/healthz")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[map[string]string](t, resp)
	require.Equal(t, "ok", body["status"])
}
