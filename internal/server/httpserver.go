package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"battleship-zk/internal/auth"
	"battleship-zk/internal/events"
	"battleship-zk/internal/match"
	"battleship-zk/internal/oracle"
	"battleship-zk/web"
)

type Server struct {
	engine *match.Engine
	tokens *auth.Tokens
	bus    *events.Bus
	log    zerolog.Logger

	upgrader websocket.Upgrader
}

func New(engine *match.Engine, tokens *auth.Tokens, bus *events.Bus, log zerolog.Logger) *Server {
	return &Server{
		engine: engine,
		tokens: tokens,
		bus:    bus,
		log:    log.With().Str("component", "http").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

func (s *Server) Routes(mux *http.ServeMux) {
	mux.Handle("POST /v1/matches", s.authed(s.handleInit))
	mux.Handle("POST /v1/matches/{session}/commit", s.authed(s.handleCommit))
	mux.Handle("POST /v1/matches/{session}/fire", s.authed(s.handleFire))
	mux.Handle("POST /v1/matches/{session}/respond", s.authed(s.handleRespond))
	mux.Handle("POST /v1/matches/{session}/claim", s.authed(s.handleClaim))
	mux.Handle("POST /v1/matches/{session}/extend", s.authed(s.handleExtend))

	mux.HandleFunc("GET /v1/matches/{session}", s.handleSnapshot)
	mux.HandleFunc("GET /v1/matches/{session}/players/{player}", s.handlePlayer)
	mux.HandleFunc("GET /v1/events", s.handleEvents)

	// Serve embedded observer page at /
	mux.Handle("GET /", http.FileServer(web.FS()))
}

// Handler is the full router behind CORS for origin.
func (s *Server) Handler(origin string) http.Handler {
	mux := http.NewServeMux()
	s.Routes(mux)
	if origin != "" && origin != "*" {
		s.upgrader.CheckOrigin = func(r *http.Request) bool {
			return r.Header.Get("Origin") == "" || r.Header.Get("Origin") == origin
		}
	} else {
		s.upgrader.CheckOrigin = func(*http.Request) bool { return true }
	}
	return WithCORS(origin, mux)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps engine errors onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	body := map[string]any{"error": err.Error()}

	if code, ok := match.CodeOf(err); ok {
		body["code"] = code.String()
		switch code {
		case match.CodeNotInitialized:
			status = http.StatusNotFound
		case match.CodeNotAPlayer:
			status = http.StatusForbidden
		case match.CodeOutOfBounds, match.CodeInvalidResponse:
			status = http.StatusBadRequest
		case match.CodeProofInvalid:
			status = http.StatusUnprocessableEntity
		default:
			status = http.StatusConflict
		}
		// Initialize reports a hub failure as NotInitialized.
		if code == match.CodeNotInitialized && r.Method == http.MethodPost && r.URL.Path == "/v1/matches" {
			status = http.StatusBadGateway
		}
	} else if errors.Is(err, auth.ErrUnauthenticated) {
		status = http.StatusUnauthorized
	}

	if status >= http.StatusInternalServerError {
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeJSON(w, status, body)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}

// authed resolves the bearer token into the caller carried on the request
// context. The engine checks the caller against the acting player.
func (s *Server) authed(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing bearer token"})
			return
		}
		caller, err := s.tokens.Parse(raw)
		if err != nil {
			s.log.Debug().Err(err).Msg("rejected token")
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": auth.ErrUnauthenticated.Error()})
			return
		}
		next(w, r.WithContext(auth.WithCaller(r.Context(), caller)))
	})
}

func callerOf(r *http.Request) match.Address {
	c, _ := auth.CallerFrom(r.Context())
	return match.Address(c)
}

func sessionOf(r *http.Request) (uint32, bool) {
	n, err := strconv.ParseUint(r.PathValue("session"), 10, 32)
	if err != nil || n == 0 {
		return 0, false
	}
	return uint32(n), true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		badRequest(w, "bad json")
		return false
	}
	return true
}

// === Mutations ===

type initReq struct {
	Hub     string `json:"hub"`
	Session uint32 `json:"session"`
	PlayerA string `json:"playerA"`
	PlayerB string `json:"playerB"`
}

// handleInit opens a match. Only one of its two players may ask for it.
func (s *Server) handleInit(w http.ResponseWriter, r *http.Request) {
	var req initReq
	if !decode(w, r, &req) {
		return
	}
	if req.Session == 0 {
		badRequest(w, "session is required")
		return
	}
	if req.Hub == "" {
		badRequest(w, "hub is required")
		return
	}
	caller := callerOf(r)
	if caller != match.Address(req.PlayerA) && caller != match.Address(req.PlayerB) {
		s.writeError(w, r, match.ErrNotAPlayer)
		return
	}
	err := s.engine.Initialize(r.Context(), match.InitParams{
		Hub:     match.Address(req.Hub),
		Session: req.Session,
		PlayerA: match.Address(req.PlayerA),
		PlayerB: match.Address(req.PlayerB),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSnapshot(w, r, req.Session, http.StatusCreated)
}

type commitReq struct {
	Commitment string `json:"commitment"`
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionOf(r)
	if !ok {
		badRequest(w, "bad session id")
		return
	}
	var req commitReq
	if !decode(w, r, &req) {
		return
	}
	digest, err := oracle.ParseDigest(req.Commitment)
	if err != nil {
		badRequest(w, "commitment: "+err.Error())
		return
	}
	if err := s.engine.CommitFleet(r.Context(), session, callerOf(r), digest); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSnapshot(w, r, session, http.StatusOK)
}

type fireReq struct {
	X *int `json:"x"`
	Y *int `json:"y"`
}

func (s *Server) handleFire(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionOf(r)
	if !ok {
		badRequest(w, "bad session id")
		return
	}
	var req fireReq
	if !decode(w, r, &req) {
		return
	}
	if req.X == nil || req.Y == nil {
		badRequest(w, "x and y are required")
		return
	}
	if err := s.engine.FireShot(r.Context(), session, callerOf(r), *req.X, *req.Y); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSnapshot(w, r, session, http.StatusOK)
}

type respondReq struct {
	Response *uint32 `json:"response"`
	Proof    string  `json:"proof"`
}

func (s *Server) handleRespond(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionOf(r)
	if !ok {
		badRequest(w, "bad session id")
		return
	}
	var req respondReq
	if !decode(w, r, &req) {
		return
	}
	if req.Response == nil {
		badRequest(w, "response is required")
		return
	}
	proof, err := oracle.ParseProof(req.Proof)
	if err != nil {
		badRequest(w, "proof: "+err.Error())
		return
	}
	hit, err := s.engine.SubmitResponse(r.Context(), session, callerOf(r), *req.Response, proof)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	snap, err := s.engine.Snapshot(r.Context(), session)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"hit": hit, "match": snap})
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionOf(r)
	if !ok {
		badRequest(w, "bad session id")
		return
	}
	if err := s.engine.ClaimVictory(r.Context(), session, callerOf(r)); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSnapshot(w, r, session, http.StatusOK)
}

// handleExtend is open to the match's players only.
func (s *Server) handleExtend(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionOf(r)
	if !ok {
		badRequest(w, "bad session id")
		return
	}
	a, b, err := s.engine.Players(r.Context(), session)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if caller := callerOf(r); caller != a && caller != b {
		s.writeError(w, r, match.ErrNotAPlayer)
		return
	}
	if err := s.engine.ExtendLifetime(r.Context(), session); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// === Reads ===

func (s *Server) writeSnapshot(w http.ResponseWriter, r *http.Request, session uint32, status int) {
	snap, err := s.engine.Snapshot(r.Context(), session)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, status, snap)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionOf(r)
	if !ok {
		badRequest(w, "bad session id")
		return
	}
	s.writeSnapshot(w, r, session, http.StatusOK)
}

func (s *Server) handlePlayer(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionOf(r)
	if !ok {
		badRequest(w, "bad session id")
		return
	}
	snap, err := s.engine.Snapshot(r.Context(), session)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	player := match.Address(r.PathValue("player"))
	for _, p := range snap.Players {
		if p.Address == player {
			writeJSON(w, http.StatusOK, p)
			return
		}
	}
	s.writeError(w, r, match.ErrNotAPlayer)
}

// WithCORS allows origin ("*" for any) to call the API from a browser.
func WithCORS(origin string, next http.Handler) http.Handler {
	if origin == "" {
		origin = "*"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
