package zk

import (
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash/mimc"

	"battleship-zk/internal/game"
	"battleship-zk/internal/merkle"
)

// ShotCircuit proves that the cell at Index of the board committed to by
// Commitment holds Hit, without revealing any other cell or the salt.
//
// Commitment = MiMC(Salt, root), root being the MiMC Merkle root of the
// row-major board. The Merkle path directions are the bits of Index, so a
// proof made for one cell cannot be replayed for another.
type ShotCircuit struct {
	Bit  frontend.Variable               `gnark:",secret"`
	Salt frontend.Variable               `gnark:",secret"`
	Path [merkle.Depth]frontend.Variable `gnark:",secret"`

	Commitment frontend.Variable `gnark:",public"`
	Index      frontend.Variable `gnark:",public"`
	Hit        frontend.Variable `gnark:",public"`
}

func (c *ShotCircuit) Define(api frontend.API) error {
	api.AssertIsBoolean(c.Bit)
	api.AssertIsEqual(c.Hit, c.Bit)
	api.AssertIsLessOrEqual(c.Index, game.Cells-1)

	dir := api.ToBinary(c.Index, merkle.Depth)

	h, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}
	h.Reset()
	h.Write(c.Bit)
	curr := h.Sum()

	for i := 0; i < merkle.Depth; i++ {
		h.Reset()
		left := api.Select(dir[i], c.Path[i], curr)
		right := api.Select(dir[i], curr, c.Path[i])
		h.Write(left, right)
		curr = h.Sum()
	}

	h.Reset()
	h.Write(c.Salt, curr)
	api.AssertIsEqual(h.Sum(), c.Commitment)
	return nil
}
