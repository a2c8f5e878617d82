package match

import (
	"context"
	"errors"
	"fmt"

	"battleship-zk/internal/auth"
	"battleship-zk/internal/events"
	"battleship-zk/internal/game"
	"battleship-zk/internal/oracle"
	"battleship-zk/internal/registry"
)

// Role is what a caller must be for an operation to be authorised.
type Role uint8

const (
	// RolePlayer: either participant.
	RolePlayer Role = iota
	// RoleAttacker: the participant whose turn it is.
	RoleAttacker
	// RoleDefender: the participant the pending shot targets.
	RoleDefender
)

// authorized checks that caller may act in role on m. Authentication has
// already happened; this is purely about the match's rules.
func authorized(caller Address, role Role, m *Match) error {
	switch role {
	case RolePlayer:
		if !m.IsPlayer(caller) {
			return ErrNotAPlayer
		}
	case RoleAttacker:
		onTurn, ok := m.OnTurn()
		if !ok {
			return ErrInvalidPhase
		}
		if caller != onTurn {
			return ErrNotYourTurn
		}
	case RoleDefender:
		if m.Pending == nil || caller != m.Pending.Defender {
			return ErrNotYourTurn
		}
	}
	return nil
}

// InitParams describe a new match.
type InitParams struct {
	Hub     Address
	Session uint32
	PlayerA Address
	PlayerB Address
}

// Initialize creates the match and its two empty player records and
// registers the session at the hub. Nothing is persisted unless the hub
// accepted the registration.
func (e *Engine) Initialize(ctx context.Context, p InitParams) error {
	unlock := e.lock(p.Session)
	defer unlock()

	if _, err := e.loadMatch(ctx, p.Session); err == nil {
		return ErrInvalidPhase
	} else if !errors.Is(err, ErrNotInitialized) {
		return err
	}
	if p.PlayerA == "" || p.PlayerB == "" || p.PlayerA == p.PlayerB {
		return ErrNotAPlayer
	}

	m := &Match{
		Session: p.Session,
		Hub:     p.Hub,
		Game:    e.game,
		Phase:   WaitingForCommits,
		PlayerA: p.PlayerA,
		PlayerB: p.PlayerB,
	}
	tx := e.begin(m)
	if err := tx.putMatch(m); err != nil {
		return err
	}
	for _, player := range []Address{p.PlayerA, p.PlayerB} {
		if err := tx.putPlayer(p.Session, player, NewPlayerRecord()); err != nil {
			return err
		}
	}

	err := e.registry.StartGame(ctx, registry.Start{
		Hub:     string(p.Hub),
		Game:    e.game,
		Session: p.Session,
		PlayerA: string(p.PlayerA),
		PlayerB: string(p.PlayerB),
	})
	if err != nil {
		return fmt.Errorf("%w: register session %d: %w", ErrNotInitialized, p.Session, err)
	}

	if err := tx.commit(ctx); err != nil {
		e.log.Error().Err(err).Uint32("session", p.Session).Msg("session registered but match state not persisted")
		return err
	}

	e.log.Info().Uint32("session", p.Session).Str("playerA", string(p.PlayerA)).Str("playerB", string(p.PlayerB)).Msg("game initialized")
	e.publish(events.New(events.TypeInit, p.Session, map[string]string{
		"playerA": string(p.PlayerA),
		"playerB": string(p.PlayerB),
	}))
	return nil
}

// CommitFleet records caller's fleet commitment. Once both players have
// committed, player A gets the first turn.
func (e *Engine) CommitFleet(ctx context.Context, session uint32, caller Address, digest oracle.Digest) error {
	if err := auth.Require(ctx, string(caller)); err != nil {
		return err
	}
	unlock := e.lock(session)
	defer unlock()

	m, err := e.loadMatch(ctx, session)
	if err != nil {
		return err
	}
	if m.Phase != WaitingForCommits {
		return ErrInvalidPhase
	}
	if err := authorized(caller, RolePlayer, m); err != nil {
		return err
	}
	rec, err := e.loadPlayer(ctx, session, caller)
	if err != nil {
		return err
	}
	if err := rec.Commit(digest); err != nil {
		return err
	}
	other, err := e.loadPlayer(ctx, session, m.Opponent(caller))
	if err != nil {
		return err
	}

	tx := e.begin(m)
	if err := tx.putPlayer(session, caller, rec); err != nil {
		return err
	}
	started := other.Committed()
	if started {
		m.Phase = Player1Turn
		if err := tx.putMatch(m); err != nil {
			return err
		}
	}
	if err := tx.commit(ctx); err != nil {
		return err
	}

	e.log.Info().Uint32("session", session).Str("player", string(caller)).Bool("started", started).Msg("fleet committed")
	e.publish(events.New(events.TypeCommit, session, map[string]string{
		"player":  string(caller),
		"started": events.Bool(started),
	}))
	return nil
}

// FireShot targets (x, y) on the opponent's board. Nothing is scored here;
// the outcome is only recorded once the defender proves it.
func (e *Engine) FireShot(ctx context.Context, session uint32, attacker Address, x, y int) error {
	if err := auth.Require(ctx, string(attacker)); err != nil {
		return err
	}
	unlock := e.lock(session)
	defer unlock()

	m, err := e.loadMatch(ctx, session)
	if err != nil {
		return err
	}
	if err := authorized(attacker, RoleAttacker, m); err != nil {
		return err
	}
	if !game.ValidCoordinate(x, y) {
		return ErrOutOfBounds
	}
	defender := m.Opponent(attacker)
	rec, err := e.loadPlayer(ctx, session, defender)
	if err != nil {
		return err
	}
	if rec.Targeted(x, y) {
		return ErrAlreadyShot
	}

	m.Pending = &PendingShot{Attacker: attacker, Defender: defender, X: x, Y: y}
	m.Phase = WaitingForProof
	tx := e.begin(m)
	if err := tx.putMatch(m); err != nil {
		return err
	}
	if err := tx.commit(ctx); err != nil {
		return err
	}

	e.log.Info().Uint32("session", session).Str("attacker", string(attacker)).Int("x", x).Int("y", y).Msg("shot fired")
	e.publish(events.New(events.TypeFire, session, map[string]string{
		"attacker": string(attacker),
		"x":        events.Int(x),
		"y":        events.Int(y),
	}))
	return nil
}

// SubmitResponse resolves the pending shot with the defender's proven answer
// and reports whether it was a hit. A proof the oracle does not accept leaves
// everything untouched, so the defender can try again.
func (e *Engine) SubmitResponse(ctx context.Context, session uint32, defender Address, response uint32, proof oracle.Proof) (bool, error) {
	if err := auth.Require(ctx, string(defender)); err != nil {
		return false, err
	}
	unlock := e.lock(session)
	defer unlock()

	m, err := e.loadMatch(ctx, session)
	if err != nil {
		return false, err
	}
	if m.Phase != WaitingForProof {
		return false, ErrInvalidPhase
	}
	if m.Pending == nil {
		return false, ErrNotInitialized
	}
	if err := authorized(defender, RoleDefender, m); err != nil {
		return false, err
	}
	if response > 1 {
		return false, ErrInvalidResponse
	}
	rec, err := e.loadPlayer(ctx, session, defender)
	if err != nil {
		return false, err
	}

	shot := *m.Pending
	ok, err := e.verifier.Verify(ctx, oracle.Request{
		Proof:      proof,
		Commitment: rec.Commitment(),
		X:          shot.X,
		Y:          shot.Y,
		Response:   uint8(response),
	})
	if err != nil {
		e.log.Warn().Err(err).Uint32("session", session).Str("defender", string(defender)).Msg("proof verification did not complete")
	}
	if !ok {
		return false, ErrProofInvalid
	}

	isHit := response == 1
	if err := rec.RecordShot(shot.X, shot.Y, isHit); err != nil {
		return false, err
	}
	m.Pending = nil

	var winner *Address
	if rec.HitsReceived() >= game.TotalShipCells {
		if err := e.declareWinner(ctx, m, shot.Attacker); err != nil {
			return false, err
		}
		winner = m.Winner
	} else {
		m.Phase = m.TurnOf(defender)
	}

	tx := e.begin(m)
	if err := tx.putPlayer(session, defender, rec); err != nil {
		return false, err
	}
	if err := tx.putMatch(m); err != nil {
		return false, err
	}
	if err := tx.commit(ctx); err != nil {
		return false, err
	}

	e.log.Info().Uint32("session", session).Str("defender", string(defender)).Int("x", shot.X).Int("y", shot.Y).Bool("hit", isHit).Msg("response accepted")
	attrs := map[string]string{
		"defender": string(defender),
		"x":        events.Int(shot.X),
		"y":        events.Int(shot.Y),
		"hit":      events.Bool(isHit),
	}
	if winner != nil {
		attrs["winner"] = string(*winner)
		e.log.Info().Uint32("session", session).Str("winner", string(*winner)).Msg("game over")
	}
	e.publish(events.New(events.TypeRespond, session, attrs))
	return isHit, nil
}

// ClaimVictory lets a player finish a match whose opponent has already
// taken every ship hit. Under the shot protocol the last response finishes
// the match by itself, so this only matters if that transition was missed.
func (e *Engine) ClaimVictory(ctx context.Context, session uint32, player Address) error {
	if err := auth.Require(ctx, string(player)); err != nil {
		return err
	}
	unlock := e.lock(session)
	defer unlock()

	m, err := e.loadMatch(ctx, session)
	if err != nil {
		return err
	}
	if err := authorized(player, RolePlayer, m); err != nil {
		return err
	}
	if m.Phase == Finished {
		return ErrGameOver
	}
	opp, err := e.loadPlayer(ctx, session, m.Opponent(player))
	if err != nil {
		return err
	}
	if opp.HitsReceived() < game.TotalShipCells {
		return ErrInvalidPhase
	}
	if err := e.declareWinner(ctx, m, player); err != nil {
		return err
	}

	tx := e.begin(m)
	if err := tx.putMatch(m); err != nil {
		return err
	}
	if err := tx.commit(ctx); err != nil {
		return err
	}

	e.log.Info().Uint32("session", session).Str("winner", string(player)).Msg("victory claimed")
	e.publish(events.New(events.TypeWinner, session, map[string]string{
		"winner": string(player),
	}))
	return nil
}

// declareWinner finishes m in memory and reports the result to the hub. The
// caller persists m only if this succeeds.
func (e *Engine) declareWinner(ctx context.Context, m *Match, winner Address) error {
	err := e.registry.EndGame(ctx, registry.End{
		Hub:        string(m.Hub),
		Session:    m.Session,
		PlayerAWon: winner == m.PlayerA,
	})
	if err != nil {
		return fmt.Errorf("close session %d: %w", m.Session, err)
	}
	m.Phase = Finished
	m.Pending = nil
	w := winner
	m.Winner = &w
	return nil
}

// ExtendLifetime pushes back the expiry of every record of the match.
func (e *Engine) ExtendLifetime(ctx context.Context, session uint32) error {
	unlock := e.lock(session)
	defer unlock()

	m, err := e.loadMatch(ctx, session)
	if err != nil {
		return err
	}
	if err := e.begin(m).commit(ctx); err != nil {
		return fmt.Errorf("extend session %d: %w", session, err)
	}

	e.log.Debug().Uint32("session", session).Dur("ttl", e.ttl).Msg("lifetime extended")
	e.publish(events.New(events.TypeExtend, session, map[string]string{
		"ttl": e.ttl.String(),
	}))
	return nil
}
