package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"

	"battleship-zk/internal/game"
	"battleship-zk/internal/merkle"
	"battleship-zk/internal/oracle"
)

var ErrBadSalt = errors.New("codec: missing or invalid salt")

// Secret is everything a defender keeps to answer shots against its board.
// Only Commitment may be shared.
type Secret struct {
	Board      game.Board    `json:"board"`
	Tree       *merkle.Tree  `json:"tree"`
	SaltHex    string        `json:"salt_hex"`
	Commitment oracle.Digest `json:"commitment"`
}

// Salt parses SaltHex.
func (s *Secret) Salt() (*big.Int, error) {
	h := strings.TrimPrefix(s.SaltHex, "0x")
	if h == "" || h == s.SaltHex {
		return nil, ErrBadSalt
	}
	salt, ok := new(big.Int).SetString(h, 16)
	if !ok {
		return nil, ErrBadSalt
	}
	return salt, nil
}

// ShotProof is the file a defender hands over to answer one shot.
type ShotProof struct {
	Session    uint32        `json:"session"`
	X          int           `json:"x"`
	Y          int           `json:"y"`
	Response   uint8         `json:"response"`
	Commitment oracle.Digest `json:"-"`
	Proof      oracle.Proof  `json:"-"`
}

type shotProofJSON struct {
	Session    uint32 `json:"session"`
	X          int    `json:"x"`
	Y          int    `json:"y"`
	Response   uint8  `json:"response"`
	Commitment string `json:"commitment"`
	Proof      string `json:"proof"`
}

func (p ShotProof) MarshalJSON() ([]byte, error) {
	return json.Marshal(shotProofJSON{
		Session:    p.Session,
		X:          p.X,
		Y:          p.Y,
		Response:   p.Response,
		Commitment: p.Commitment.String(),
		Proof:      ProofHex(p.Proof),
	})
}

func (p *ShotProof) UnmarshalJSON(b []byte) error {
	var w shotProofJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	d, err := oracle.ParseDigest(w.Commitment)
	if err != nil {
		return fmt.Errorf("commitment: %w", err)
	}
	proof, err := oracle.ParseProof(w.Proof)
	if err != nil {
		return fmt.Errorf("proof: %w", err)
	}
	*p = ShotProof{Session: w.Session, X: w.X, Y: w.Y, Response: w.Response, Commitment: d, Proof: proof}
	return nil
}

// Request turns the file into an oracle request.
func (p *ShotProof) Request() oracle.Request {
	return oracle.Request{Proof: p.Proof, Commitment: p.Commitment, X: p.X, Y: p.Y, Response: p.Response}
}

// ProofHex encodes a proof without its zero padding.
func ProofHex(p oracle.Proof) string {
	end := len(p)
	for end > 0 && p[end-1] == 0 {
		end--
	}
	return fmt.Sprintf("0x%x", p[:end])
}

func SaveJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func LoadJSON(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewDecoder(f).Decode(v)
}
