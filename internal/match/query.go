package match

import (
	"context"

	"battleship-zk/internal/oracle"
)

func (e *Engine) Phase(ctx context.Context, session uint32) (Phase, error) {
	m, err := e.loadMatch(ctx, session)
	if err != nil {
		return 0, err
	}
	return m.Phase, nil
}

// Players returns player A and player B, in that order.
func (e *Engine) Players(ctx context.Context, session uint32) (Address, Address, error) {
	m, err := e.loadMatch(ctx, session)
	if err != nil {
		return "", "", err
	}
	return m.PlayerA, m.PlayerB, nil
}

func (e *Engine) CommitmentStatus(ctx context.Context, session uint32, player Address) (bool, error) {
	r, err := e.loadPlayer(ctx, session, player)
	if err != nil {
		return false, err
	}
	return r.Committed(), nil
}

func (e *Engine) HitsReceived(ctx context.Context, session uint32, player Address) (uint32, error) {
	r, err := e.loadPlayer(ctx, session, player)
	if err != nil {
		return 0, err
	}
	return r.HitsReceived(), nil
}

// ShotHistory lists the shots player has received, oldest first.
func (e *Engine) ShotHistory(ctx context.Context, session uint32, player Address) ([]ShotRecord, error) {
	r, err := e.loadPlayer(ctx, session, player)
	if err != nil {
		return nil, err
	}
	return r.History(), nil
}

// PendingShot returns nil when no shot is awaiting a response.
func (e *Engine) PendingShot(ctx context.Context, session uint32) (*PendingShot, error) {
	m, err := e.loadMatch(ctx, session)
	if err != nil {
		return nil, err
	}
	return m.Pending, nil
}

// Winner returns nil until the match is finished.
func (e *Engine) Winner(ctx context.Context, session uint32) (*Address, error) {
	m, err := e.loadMatch(ctx, session)
	if err != nil {
		return nil, err
	}
	return m.Winner, nil
}

// PlayerView is the public part of a player record.
type PlayerView struct {
	Address      Address       `json:"address"`
	Committed    bool          `json:"committed"`
	Commitment   oracle.Digest `json:"commitment"`
	HitsReceived uint32        `json:"hitsReceived"`
	History      []ShotRecord  `json:"history"`
}

// Snapshot is a consistent view of a whole match.
type Snapshot struct {
	Match
	Players [2]PlayerView `json:"players"`
}

// Snapshot reads the match and both records under the session lock so the
// parts agree with each other.
func (e *Engine) Snapshot(ctx context.Context, session uint32) (*Snapshot, error) {
	unlock := e.lock(session)
	defer unlock()

	m, err := e.loadMatch(ctx, session)
	if err != nil {
		return nil, err
	}
	s := &Snapshot{Match: *m}
	for i, addr := range []Address{m.PlayerA, m.PlayerB} {
		r, err := e.loadPlayer(ctx, session, addr)
		if err != nil {
			return nil, err
		}
		s.Players[i] = PlayerView{
			Address:      addr,
			Committed:    r.Committed(),
			Commitment:   r.Commitment(),
			HitsReceived: r.HitsReceived(),
			History:      r.History(),
		}
	}
	return s, nil
}
