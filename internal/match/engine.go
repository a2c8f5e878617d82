package match

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/rs/zerolog"

	"battleship-zk/internal/events"
	"battleship-zk/internal/oracle"
	"battleship-zk/internal/registry"
	"battleship-zk/internal/store"
)

const (
	DefaultTTL           = 30 * 24 * time.Hour
	DefaultVerifyTimeout = 30 * time.Second
)

// Publisher receives one event per successful state change.
type Publisher interface {
	Publish(events.Event)
}

type Options struct {
	// Game is the identity this coordinator registers matches under at the hub.
	Game string
	// TTL is the lifetime window applied to every record on write.
	TTL time.Duration
	// VerifyTimeout bounds each oracle call. Zero uses DefaultVerifyTimeout.
	VerifyTimeout time.Duration
	Events        Publisher
	Logger        *zerolog.Logger
}

// Engine runs the match state machine on top of a Store. Every exported
// operation either applies all of its effects or none of them; operations on
// the same session are serialised, different sessions run concurrently.
type Engine struct {
	store    store.Store
	registry registry.Registry
	verifier oracle.Verifier
	events   Publisher
	log      zerolog.Logger
	game     string
	ttl      time.Duration

	mu    sync.Mutex
	locks map[uint32]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func NewEngine(st store.Store, reg registry.Registry, v oracle.Verifier, opts Options) *Engine {
	if opts.TTL == 0 {
		opts.TTL = DefaultTTL
	}
	if opts.VerifyTimeout == 0 {
		opts.VerifyTimeout = DefaultVerifyTimeout
	}
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}
	return &Engine{
		store:    st,
		registry: reg,
		verifier: oracle.WithTimeout(v, opts.VerifyTimeout),
		events:   opts.Events,
		log:      log.With().Str("component", "match").Logger(),
		game:     opts.Game,
		ttl:      opts.TTL,
		locks:    make(map[uint32]*sessionLock),
	}
}

// lock serialises work on one session and returns the matching unlock.
func (e *Engine) lock(session uint32) func() {
	e.mu.Lock()
	l, ok := e.locks[session]
	if !ok {
		l = &sessionLock{}
		e.locks[session] = l
	}
	l.refs++
	e.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		e.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(e.locks, session)
		}
		e.mu.Unlock()
	}
}

func matchKey(session uint32) string {
	return "match/" + strconv.FormatUint(uint64(session), 10)
}

func playerKey(session uint32, player Address) string {
	return matchKey(session) + "/player/" + string(player)
}

func (e *Engine) loadMatch(ctx context.Context, session uint32) (*Match, error) {
	raw, err := e.store.Get(ctx, matchKey(session))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotInitialized
	}
	if err != nil {
		return nil, err
	}
	var m Match
	if err := cbor.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (e *Engine) loadPlayer(ctx context.Context, session uint32, player Address) (*PlayerRecord, error) {
	raw, err := e.store.Get(ctx, playerKey(session, player))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotInitialized
	}
	if err != nil {
		return nil, err
	}
	r := NewPlayerRecord()
	if err := r.UnmarshalCBOR(raw); err != nil {
		return nil, err
	}
	return r, nil
}

// txn stages writes so an operation can bail out at any point, including
// after an external call fails, without leaving partial state behind.
// Committing renews the lifetime of every record of the match, written or
// not, so the records of a live match expire together.
type txn struct {
	e    *Engine
	keys []string
	ops  []store.Op
}

func (e *Engine) begin(m *Match) *txn {
	return &txn{e: e, keys: sessionKeys(m)}
}

func sessionKeys(m *Match) []string {
	return []string{matchKey(m.Session), playerKey(m.Session, m.PlayerA), playerKey(m.Session, m.PlayerB)}
}

func (t *txn) putMatch(m *Match) error {
	raw, err := cbor.Marshal(m)
	if err != nil {
		return err
	}
	t.ops = append(t.ops, store.Op{Key: matchKey(m.Session), Value: raw, TTL: t.e.ttl})
	return nil
}

func (t *txn) putPlayer(session uint32, player Address, r *PlayerRecord) error {
	raw, err := r.MarshalCBOR()
	if err != nil {
		return err
	}
	t.ops = append(t.ops, store.Op{Key: playerKey(session, player), Value: raw, TTL: t.e.ttl})
	return nil
}

func (t *txn) commit(ctx context.Context) error {
	ops := t.ops
	for _, key := range t.keys {
		if !t.writes(key) {
			ops = append(ops, store.Op{Key: key, TTL: t.e.ttl, Extend: true})
		}
	}
	return store.Apply(ctx, t.e.store, ops)
}

func (t *txn) writes(key string) bool {
	for _, op := range t.ops {
		if op.Key == key {
			return true
		}
	}
	return false
}

func (e *Engine) publish(ev events.Event) {
	if e.events != nil {
		e.events.Publish(ev)
	}
}
