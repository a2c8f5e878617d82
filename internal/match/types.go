package match

import (
	"fmt"
	"strings"
)

// Address identifies a player or an external hub.
type Address string

// Phase is where a match stands in its lifecycle.
type Phase uint8

const (
	// WaitingForCommits: both players still have to publish a fleet commitment.
	WaitingForCommits Phase = iota
	// Player1Turn: player A fires next.
	Player1Turn
	// Player2Turn: player B fires next.
	Player2Turn
	// WaitingForProof: a shot is pending and the defender owes a proven answer.
	WaitingForProof
	// Finished: a winner has been declared.
	Finished
)

var phaseNames = [...]string{"WaitingForCommits", "Player1Turn", "Player2Turn", "WaitingForProof", "Finished"}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("Phase(%d)", uint8(p))
}

func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Phase) UnmarshalText(b []byte) error {
	for i, name := range phaseNames {
		if strings.EqualFold(name, string(b)) {
			*p = Phase(i)
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", b)
}

// IsTurn reports whether a shot may be fired in this phase.
func (p Phase) IsTurn() bool { return p == Player1Turn || p == Player2Turn }

// PendingShot is the single in-flight shot awaiting a proven answer.
type PendingShot struct {
	Attacker Address `json:"attacker" cbor:"1,keyasint"`
	Defender Address `json:"defender" cbor:"2,keyasint"`
	X        int     `json:"x" cbor:"3,keyasint"`
	Y        int     `json:"y" cbor:"4,keyasint"`
}

// ShotRecord is one resolved shot against a player.
type ShotRecord struct {
	X     int  `json:"x" cbor:"1,keyasint"`
	Y     int  `json:"y" cbor:"2,keyasint"`
	IsHit bool `json:"isHit" cbor:"3,keyasint"`
}

// Match is the persisted header of a game. The pending shot lives in the same
// record as the phase so that both always change together.
type Match struct {
	Session uint32       `json:"session" cbor:"1,keyasint"`
	Hub     Address      `json:"hub" cbor:"2,keyasint"`
	Game    string       `json:"game" cbor:"3,keyasint"`
	Phase   Phase        `json:"phase" cbor:"4,keyasint"`
	PlayerA Address      `json:"playerA" cbor:"5,keyasint"`
	PlayerB Address      `json:"playerB" cbor:"6,keyasint"`
	Pending *PendingShot `json:"pending,omitempty" cbor:"7,keyasint,omitempty"`
	Winner  *Address     `json:"winner,omitempty" cbor:"8,keyasint,omitempty"`
}

func (m *Match) IsPlayer(a Address) bool { return a == m.PlayerA || a == m.PlayerB }

// Opponent returns the other player. a must be a player.
func (m *Match) Opponent(a Address) Address {
	if a == m.PlayerA {
		return m.PlayerB
	}
	return m.PlayerA
}

// TurnOf is the phase in which a may fire.
func (m *Match) TurnOf(a Address) Phase {
	if a == m.PlayerA {
		return Player1Turn
	}
	return Player2Turn
}

// OnTurn is the player allowed to fire, if the match is in a turn phase.
func (m *Match) OnTurn() (Address, bool) {
	switch m.Phase {
	case Player1Turn:
		return m.PlayerA, true
	case Player2Turn:
		return m.PlayerB, true
	}
	return "", false
}
