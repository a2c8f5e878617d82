package merkle

import (
	"errors"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	bnmimc "github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"

	"battleship-zk/internal/oracle"
)

const (
	// Depth of the board tree: 128 leaves, the first 100 are board cells.
	Depth  = 7
	Leaves = 1 << Depth
)

var (
	ErrTooManyLeaves = errors.New("merkle: too many leaves")
	ErrIndex         = errors.New("merkle: index out of range")
	ErrFieldOverflow = errors.New("merkle: value is not a canonical field element")
)

// feBytes encodes a BN254 field element as 32 big-endian bytes.
func feBytes(x *big.Int) []byte {
	out := make([]byte, fr.Bytes)
	x.FillBytes(out)
	return out
}

// HashLeaf is MiMC(bit), matching the in-circuit leaf hash.
func HashLeaf(bit uint8) *big.Int {
	h := bnmimc.NewMiMC()
	h.Write(feBytes(new(big.Int).SetUint64(uint64(bit))))
	return new(big.Int).SetBytes(h.Sum(nil))
}

// HashNode is MiMC(left, right), matching the in-circuit node hash.
func HashNode(left, right *big.Int) *big.Int {
	h := bnmimc.NewMiMC()
	h.Write(feBytes(left))
	h.Write(feBytes(right))
	return new(big.Int).SetBytes(h.Sum(nil))
}

// Tree is a fixed-size binary Merkle tree stored level-by-level.
// Levels[0] are the leaves, Levels[Depth] holds the root.
type Tree struct {
	Depth  int          `json:"depth"`
	Levels [][]*big.Int `json:"levels"`
}

// Build hashes cells into a Depth-deep tree, padding with HashLeaf(0).
func Build(cells []uint8) (*Tree, error) {
	if len(cells) > Leaves {
		return nil, ErrTooManyLeaves
	}
	pad := HashLeaf(0)
	level := make([]*big.Int, Leaves)
	for i := range level {
		if i < len(cells) {
			level[i] = HashLeaf(cells[i])
		} else {
			level[i] = new(big.Int).Set(pad)
		}
	}

	levels := [][]*big.Int{level}
	for len(level) > 1 {
		up := make([]*big.Int, len(level)/2)
		for i := range up {
			up[i] = HashNode(level[2*i], level[2*i+1])
		}
		levels = append(levels, up)
		level = up
	}
	return &Tree{Depth: len(levels) - 1, Levels: levels}, nil
}

func (t *Tree) Root() *big.Int { return new(big.Int).Set(t.Levels[t.Depth][0]) }

// Path returns the sibling hashes from leaf idx up to the root.
// The direction at level i is bit i of idx (1 = current node is a right child).
func (t *Tree) Path(idx int) ([]*big.Int, error) {
	if idx < 0 || idx >= len(t.Levels[0]) {
		return nil, ErrIndex
	}
	path := make([]*big.Int, 0, t.Depth)
	cur := idx
	for level := 0; level < t.Depth; level++ {
		path = append(path, new(big.Int).Set(t.Levels[level][cur^1]))
		cur >>= 1
	}
	return path, nil
}

// NewSalt draws a uniformly random field element.
func NewSalt() (*big.Int, error) {
	var e fr.Element
	if _, err := e.SetRandom(); err != nil {
		return nil, err
	}
	return e.BigInt(new(big.Int)), nil
}

// Commit binds a tree root to a salt: MiMC(salt, root). The salt keeps equal
// boards from producing equal commitments.
func Commit(salt, root *big.Int) oracle.Digest {
	var d oracle.Digest
	HashNode(salt, root).FillBytes(d[:])
	return d
}

// DigestElement converts a commitment into the field element a circuit sees.
// Digests that are not canonical field elements cannot be produced by Commit.
func DigestElement(d oracle.Digest) (*big.Int, error) {
	v := new(big.Int).SetBytes(d[:])
	if v.Cmp(fr.Modulus()) >= 0 {
		return nil, ErrFieldOverflow
	}
	return v, nil
}
