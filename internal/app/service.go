package app

import (
	"context"
	"fmt"
	"math/rand"

	"battleship-zk/internal/codec"
	"battleship-zk/internal/game"
	"battleship-zk/internal/merkle"
	"battleship-zk/internal/oracle"
	"battleship-zk/internal/zk"
)

// InitBoard places a random fleet. A nil rng uses a time-seeded source.
func InitBoard(rng *rand.Rand) (game.Board, error) {
	return game.GenerateRandomBoard(rng)
}

// Commit builds the board's tree and a fresh salted commitment. The
// returned secret must stay with the defender; only Commitment is public.
func Commit(b game.Board) (*codec.Secret, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	t, err := merkle.Build(b.Flatten())
	if err != nil {
		return nil, err
	}
	// this is to make the commitment unique for same boards
	salt, err := merkle.NewSalt()
	if err != nil {
		return nil, err
	}
	return &codec.Secret{
		Board:      b,
		Tree:       t,
		SaltHex:    fmt.Sprintf("0x%x", salt),
		Commitment: merkle.Commit(salt, t.Root()),
	}, nil
}

// Prove answers a shot at (x, y) against sec's board.
func Prove(keys *zk.Keys, sec *codec.Secret, session uint32, x, y int) (*codec.ShotProof, error) {
	if !game.ValidCoordinate(x, y) {
		return nil, fmt.Errorf("coordinate (%d, %d) out of range", x, y)
	}
	if sec.Tree == nil {
		return nil, fmt.Errorf("secret has no tree")
	}
	salt, err := sec.Salt()
	if err != nil {
		return nil, err
	}
	idx := game.CellIndex(x, y)
	path, err := sec.Tree.Path(idx)
	if err != nil {
		return nil, err
	}
	bit := sec.Board.At(x, y)

	proof, err := keys.Prove(zk.Witness{
		Bit:        bit,
		Index:      idx,
		Path:       path,
		Salt:       salt,
		Commitment: sec.Commitment,
	})
	if err != nil {
		return nil, err
	}
	return &codec.ShotProof{
		Session:    session,
		X:          x,
		Y:          y,
		Response:   bit,
		Commitment: sec.Commitment,
		Proof:      proof,
	}, nil
}

// Verify checks a proof file with v. When x and y are not negative the file
// must also be for that cell.
func Verify(ctx context.Context, v oracle.Verifier, p *codec.ShotProof, x, y int) (bool, error) {
	if x >= 0 && y >= 0 && (p.X != x || p.Y != y) {
		return false, fmt.Errorf("proof is for (%d, %d) but expected (%d, %d)", p.X, p.Y, x, y)
	}
	return v.Verify(ctx, p.Request())
}
