package zk

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"path/filepath"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"

	"battleship-zk/internal/merkle"
	"battleship-zk/internal/oracle"
)

const (
	VerifyingKeyFile = "shot.vk"
	ProvingKeyFile   = "shot.pk"
)

var (
	ErrPathLength = errors.New("zk: bad merkle path length")
	ErrProofSize  = errors.New("zk: encoded proof does not fit the proof slot")
)

// Keys bundles the compiled circuit with its Groth16 key pair.
type Keys struct {
	CS constraint.ConstraintSystem
	PK groth16.ProvingKey
	VK groth16.VerifyingKey
}

func compile() (constraint.ConstraintSystem, error) {
	var circuit ShotCircuit
	return frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, &circuit)
}

// Setup compiles the circuit and runs a fresh (single-party, unsafe for
// production) Groth16 setup.
func Setup() (*Keys, error) {
	cs, err := compile()
	if err != nil {
		return nil, err
	}
	pk, vk, err := groth16.Setup(cs)
	if err != nil {
		return nil, err
	}
	return &Keys{CS: cs, PK: pk, VK: vk}, nil
}

// EnsureKeys makes sure dir holds a readable key pair, generating one if not.
func EnsureKeys(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	vkPath := filepath.Join(dir, VerifyingKeyFile)
	pkPath := filepath.Join(dir, ProvingKeyFile)

	if _, err := readVK(vkPath); err == nil {
		if _, err := readPK(pkPath); err == nil {
			return nil
		}
	}

	keys, err := Setup()
	if err != nil {
		return err
	}
	if err := writeKey(vkPath, keys.VK); err != nil {
		return err
	}
	return writeKey(pkPath, keys.PK)
}

// LoadKeys reads the key pair from dir and recompiles the circuit for proving.
func LoadKeys(dir string) (*Keys, error) {
	vk, err := readVK(filepath.Join(dir, VerifyingKeyFile))
	if err != nil {
		return nil, err
	}
	pk, err := readPK(filepath.Join(dir, ProvingKeyFile))
	if err != nil {
		return nil, err
	}
	cs, err := compile()
	if err != nil {
		return nil, err
	}
	return &Keys{CS: cs, PK: pk, VK: vk}, nil
}

// LoadVerifyingKey reads only the verifying key, all a coordinator needs.
func LoadVerifyingKey(path string) (groth16.VerifyingKey, error) {
	return readVK(path)
}

// Witness is the defender's private knowledge for one shot.
type Witness struct {
	Bit        uint8
	Index      int
	Path       []*big.Int
	Salt       *big.Int
	Commitment oracle.Digest
}

// Prove produces a zero-padded proof for w.
func (k *Keys) Prove(w Witness) (oracle.Proof, error) {
	if len(w.Path) != merkle.Depth {
		return oracle.Proof{}, ErrPathLength
	}
	commitment, err := merkle.DigestElement(w.Commitment)
	if err != nil {
		return oracle.Proof{}, err
	}

	var assign ShotCircuit
	assign.Bit = w.Bit
	assign.Salt = w.Salt
	for i := range assign.Path {
		assign.Path[i] = w.Path[i]
	}
	assign.Commitment = commitment
	assign.Index = w.Index
	assign.Hit = w.Bit

	full, err := frontend.NewWitness(&assign, ecc.BN254.ScalarField())
	if err != nil {
		return oracle.Proof{}, err
	}
	proof, err := groth16.Prove(k.CS, k.PK, full)
	if err != nil {
		return oracle.Proof{}, fmt.Errorf("prove: %w", err)
	}
	return EncodeProof(proof)
}

// EncodeProof serialises a Groth16 proof (compressed points) into a proof slot.
func EncodeProof(proof groth16.Proof) (oracle.Proof, error) {
	var buf bytes.Buffer
	if _, err := proof.WriteTo(&buf); err != nil {
		return oracle.Proof{}, err
	}
	var out oracle.Proof
	if buf.Len() > len(out) {
		return oracle.Proof{}, fmt.Errorf("%w: %d bytes", ErrProofSize, buf.Len())
	}
	copy(out[:], buf.Bytes())
	return out, nil
}

// key files are gnark's binary encoding

func writeKey(path string, key io.WriterTo) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = key.WriteTo(f)
	return err
}

func readVK(path string) (groth16.VerifyingKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	vk := groth16.NewVerifyingKey(ecc.BN254)
	_, err = vk.ReadFrom(f)
	return vk, err
}

func readPK(path string) (groth16.ProvingKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	pk := groth16.NewProvingKey(ecc.BN254)
	_, err = pk.ReadFrom(f)
	return pk, err
}
