package match

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"
	"github.com/fxamacker/cbor/v2"

	"battleship-zk/internal/game"
	"battleship-zk/internal/oracle"
)

// PlayerRecord is one player's hidden-state bookkeeping: the fleet
// commitment and everything the opponent has learned about it so far.
// The shot mask and history describe shots received, not shots fired.
type PlayerRecord struct {
	commitment oracle.Digest
	committed  bool
	hits       uint32
	mask       *bitset.BitSet
	history    []ShotRecord
}

func NewPlayerRecord() *PlayerRecord {
	return &PlayerRecord{mask: bitset.New(game.Cells)}
}

func (r *PlayerRecord) Commitment() oracle.Digest { return r.commitment }
func (r *PlayerRecord) Committed() bool            { return r.committed }
func (r *PlayerRecord) HitsReceived() uint32       { return r.hits }

// Targeted reports whether (x, y) of this player's board was already shot at.
func (r *PlayerRecord) Targeted(x, y int) bool {
	return r.mask.Test(uint(game.CellIndex(x, y)))
}

// History returns a copy of the resolved shots in resolution order.
func (r *PlayerRecord) History() []ShotRecord {
	return append([]ShotRecord(nil), r.history...)
}

func (r *PlayerRecord) Commit(d oracle.Digest) error {
	if r.committed {
		return ErrAlreadyCommitted
	}
	r.commitment = d
	r.committed = true
	return nil
}

// RecordShot marks (x, y) as targeted and appends the outcome. The mask is
// checked before anything changes so a duplicate leaves the record intact.
func (r *PlayerRecord) RecordShot(x, y int, isHit bool) error {
	if !game.ValidCoordinate(x, y) {
		return ErrOutOfBounds
	}
	idx := uint(game.CellIndex(x, y))
	if r.mask.Test(idx) {
		return ErrAlreadyShot
	}
	r.mask.Set(idx)
	r.history = append(r.history, ShotRecord{X: x, Y: y, IsHit: isHit})
	if isHit {
		r.hits++
	}
	return nil
}

type playerWire struct {
	Commitment []byte       `cbor:"1,keyasint"`
	Committed  bool         `cbor:"2,keyasint"`
	Hits       uint32       `cbor:"3,keyasint"`
	Mask       []byte       `cbor:"4,keyasint"`
	History    []ShotRecord `cbor:"5,keyasint"`
}

func (r *PlayerRecord) MarshalCBOR() ([]byte, error) {
	mask, err := r.mask.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return cbor.Marshal(playerWire{
		Commitment: r.commitment[:],
		Committed:  r.committed,
		Hits:       r.hits,
		Mask:       mask,
		History:    r.history,
	})
}

func (r *PlayerRecord) UnmarshalCBOR(data []byte) error {
	var w playerWire
	if err := cbor.Unmarshal(data, &w); err != nil {
		return err
	}
	if len(w.Commitment) != oracle.DigestSize {
		return fmt.Errorf("player record: commitment is %d bytes", len(w.Commitment))
	}
	mask := bitset.New(game.Cells)
	if err := mask.UnmarshalBinary(w.Mask); err != nil {
		return fmt.Errorf("player record: shot mask: %w", err)
	}
	copy(r.commitment[:], w.Commitment)
	r.committed = w.Committed
	r.hits = w.Hits
	r.mask = mask
	r.history = w.History
	return nil
}
