package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"battleship-zk/internal/auth"
	"battleship-zk/internal/events"
	"battleship-zk/internal/match"
	"battleship-zk/internal/oracle"
	"battleship-zk/internal/registry"
	"battleship-zk/internal/store"
)

type fixture struct {
	srv    *httptest.Server
	tokens *auth.Tokens
	reg    *registry.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tokens, err := auth.NewTokens("test-secret", "battleship-zk", time.Hour)
	require.NoError(t, err)
	bus := events.NewBus()
	reg := &registry.Recorder{}
	eng := match.NewEngine(store.NewMemory(), reg, oracle.Placeholder{}, match.Options{Game: "battleship-zk", Events: bus})
	s := New(eng, tokens, bus, zerolog.Nop())
	srv := httptest.NewServer(s.Handler("*"))
	t.Cleanup(func() {
		bus.Close()
		srv.Close()
	})
	return &fixture{srv: srv, tokens: tokens, reg: reg}
}

func (f *fixture) do(t *testing.T, as, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, rdr)
	require.NoError(t, err)
	if as != "" {
		tok, err := f.tokens.Mint(as)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	res, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	out := map[string]any{}
	if res.StatusCode != http.StatusNoContent {
		_ = json.NewDecoder(res.Body).Decode(&out)
	}
	return res.StatusCode, out
}

func proofHex() string { return "0x01" }

func digestHex(b byte) string {
	var d oracle.Digest
	d[31] = b
	return d.String()
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	code, _ := f.do(t, "alice", "POST", "/v1/matches", map[string]any{"hub": "hub", "session": 7, "playerA": "alice", "playerB": "bob"})
	require.Equal(t, http.StatusCreated, code)
	code, _ = f.do(t, "alice", "POST", "/v1/matches/7/commit", map[string]any{"commitment": digestHex(1)})
	require.Equal(t, http.StatusOK, code)
	code, body := f.do(t, "bob", "POST", "/v1/matches/7/commit", map[string]any{"commitment": digestHex(2)})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "Player1Turn", body["phase"])
}

func TestMatchFlowOverHTTP(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	code, body := f.do(t, "alice", "POST", "/v1/matches/7/fire", map[string]any{"x": 3, "y": 4})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "WaitingForProof", body["phase"])
	assert.Equal(t, map[string]any{"attacker": "alice", "defender": "bob", "x": 3.0, "y": 4.0}, body["pending"])

	code, body = f.do(t, "bob", "POST", "/v1/matches/7/respond", map[string]any{"response": 1, "proof": proofHex()})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["hit"])
	assert.Equal(t, "Player2Turn", body["match"].(map[string]any)["phase"])

	code, body = f.do(t, "", "GET", "/v1/matches/7/players/bob", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1.0, body["hitsReceived"])
	assert.Equal(t, true, body["committed"])
	assert.Equal(t, digestHex(2), body["commitment"])

	code, _ = f.do(t, "alice", "POST", "/v1/matches/7/extend", nil)
	assert.Equal(t, http.StatusNoContent, code)

	require.Len(t, f.reg.Starts(), 1)
	assert.Equal(t, "hub", f.reg.Starts()[0].Hub)
}

func TestErrorStatuses(t *testing.T) {
	f := newFixture(t)

	code, _ := f.do(t, "", "POST", "/v1/matches/7/fire", map[string]any{"x": 0, "y": 0})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, body := f.do(t, "", "GET", "/v1/matches/7", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "NotInitialized", body["code"])

	code, _ = f.do(t, "mallory", "POST", "/v1/matches", map[string]any{"hub": "hub", "session": 7, "playerA": "alice", "playerB": "bob"})
	assert.Equal(t, http.StatusForbidden, code)

	f.start(t)

	code, body = f.do(t, "bob", "POST", "/v1/matches/7/fire", map[string]any{"x": 0, "y": 0})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "NotYourTurn", body["code"])

	code, body = f.do(t, "alice", "POST", "/v1/matches/7/fire", map[string]any{"x": 10, "y": 0})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "OutOfBounds", body["code"])

	code, _ = f.do(t, "alice", "POST", "/v1/matches/7/fire", map[string]any{"x": 1})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(t, "alice", "POST", "/v1/matches/7/fire", map[string]any{"x": 1, "y": 1})
	require.Equal(t, http.StatusOK, code)

	code, body = f.do(t, "bob", "POST", "/v1/matches/7/respond", map[string]any{"response": 0, "proof": "0x"})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "ProofInvalid", body["code"])

	code, body = f.do(t, "bob", "POST", "/v1/matches/7/respond", map[string]any{"response": 2, "proof": proofHex()})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "InvalidResponse", body["code"])

	code, _ = f.do(t, "bob", "POST", "/v1/matches/7/commit", map[string]any{"commitment": "0x12"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(t, "", "GET", "/v1/matches/nope", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestInitializeNeedsHub(t *testing.T) {
	f := newFixture(t)
	code, _ := f.do(t, "alice", "POST", "/v1/matches", map[string]any{"hub": "", "session": 7, "playerA": "alice", "playerB": "bob"})
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = f.do(t, "alice", "POST", "/v1/matches", map[string]any{"session": 7, "playerA": "alice", "playerB": "bob"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Empty(t, f.reg.Starts())

	code, _ = f.do(t, "", "GET", "/v1/matches/7", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestExtendIsForPlayersOnly(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, "mallory", "POST", "/v1/matches/7/extend", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "NotInitialized", body["code"])

	f.start(t)

	code, body = f.do(t, "mallory", "POST", "/v1/matches/7/extend", nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "NotAPlayer", body["code"])

	code, _ = f.do(t, "bob", "POST", "/v1/matches/7/extend", nil)
	assert.Equal(t, http.StatusNoContent, code)
}

func TestBadTokenIsRejected(t *testing.T) {
	f := newFixture(t)
	other, err := auth.NewTokens("other-secret", "battleship-zk", time.Hour)
	require.NoError(t, err)
	tok, err := other.Mint("alice")
	require.NoError(t, err)

	req, err := http.NewRequest("POST", f.srv.URL+"/v1/matches/7/claim", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+tok)
	res, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestHubFailureOnInitialize(t *testing.T) {
	f := newFixture(t)
	f.reg.SetFailures(assert.AnError, nil)
	code, body := f.do(t, "alice", "POST", "/v1/matches", map[string]any{"hub": "hub", "session": 7, "playerA": "alice", "playerB": "bob"})
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Equal(t, "NotInitialized", body["code"])
}

func TestEventStream(t *testing.T) {
	f := newFixture(t)
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/v1/events?session=7"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	f.start(t)
	code, _ := f.do(t, "alice", "POST", "/v1/matches", map[string]any{"hub": "hub", "session": 8, "playerA": "alice", "playerB": "bob"})
	require.Equal(t, http.StatusCreated, code)
	code, _ = f.do(t, "alice", "POST", "/v1/matches/7/fire", map[string]any{"x": 2, "y": 2})
	require.Equal(t, http.StatusOK, code)

	var types []string
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for len(types) < 4 {
		var ev events.Event
		require.NoError(t, conn.ReadJSON(&ev))
		assert.Equal(t, uint32(7), ev.Session)
		types = append(types, ev.Type)
	}
	assert.Equal(t, []string{events.TypeInit, events.TypeCommit, events.TypeCommit, events.TypeFire}, types)
}

func TestServesObserverPage(t *testing.T) {
	f := newFixture(t)
	res, err := f.srv.Client().Get(f.srv.URL + "/")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, res.Header.Get("Content-Type"), "text/html")
}
