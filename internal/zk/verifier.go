package zk

import (
	"bytes"
	"context"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/frontend"

	"battleship-zk/internal/game"
	"battleship-zk/internal/merkle"
	"battleship-zk/internal/oracle"
)

// Groth16Verifier checks shot proofs against a fixed verifying key.
type Groth16Verifier struct {
	vk groth16.VerifyingKey
}

var _ oracle.Verifier = (*Groth16Verifier)(nil)

func NewGroth16Verifier(vk groth16.VerifyingKey) *Groth16Verifier {
	return &Groth16Verifier{vk: vk}
}

// Verify returns (false, nil) for a well-formed request whose proof does not
// hold, and an error when the request cannot even be checked.
func (v *Groth16Verifier) Verify(ctx context.Context, req oracle.Request) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if !game.ValidCoordinate(req.X, req.Y) {
		return false, fmt.Errorf("zk: coordinate (%d, %d) off board", req.X, req.Y)
	}
	if req.Response > 1 {
		return false, fmt.Errorf("zk: response %d is not a bit", req.Response)
	}
	commitment, err := merkle.DigestElement(req.Commitment)
	if err != nil {
		return false, err
	}

	var pub ShotCircuit
	pub.Commitment = commitment
	pub.Index = game.CellIndex(req.X, req.Y)
	pub.Hit = req.Response

	pubWit, err := frontend.NewWitness(&pub, ecc.BN254.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return false, err
	}

	proof := groth16.NewProof(ecc.BN254)
	if _, err := proof.ReadFrom(bytes.NewReader(req.Proof[:])); err != nil {
		// Undecodable bytes are simply not a proof of anything.
		return false, nil
	}
	if err := groth16.Verify(proof, v.vk, pubWit); err != nil {
		return false, nil
	}
	return true, nil
}
