// Package oracle is the boundary between the match state machine and whatever
// checks shot proofs. The state machine only ever sees a yes/no answer.
package oracle

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

const (
	DigestSize = 32
	ProofSize  = 256
)

// Digest is a fleet commitment. The zero value means "uncommitted".
type Digest [DigestSize]byte

// Proof is a fixed-size, zero-padded proof blob as submitted by a defender.
type Proof [ProofSize]byte

func (d Digest) IsZero() bool { return d == Digest{} }

func (d Digest) String() string { return "0x" + hex.EncodeToString(d[:]) }

func (d Digest) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Digest) UnmarshalText(b []byte) error {
	v, err := ParseDigest(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

func (p Proof) IsZero() bool { return p == Proof{} }

// ParseDigest accepts 64 hex characters with an optional 0x prefix.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	err := decodeFixed(s, d[:])
	return d, err
}

// ParseProof accepts up to 512 hex characters with an optional 0x prefix.
// Shorter input is zero-padded on the right.
func ParseProof(s string) (Proof, error) {
	var p Proof
	err := decodeFixed(s, p[:])
	return p, err
}

func decodeFixed(s string, out []byte) error {
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		s = s[2:]
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("decode hex: %w", err)
	}
	if len(raw) > len(out) {
		return fmt.Errorf("value is %d bytes, want at most %d", len(raw), len(out))
	}
	if len(out) == DigestSize && len(raw) != DigestSize {
		return fmt.Errorf("digest is %d bytes, want %d", len(raw), DigestSize)
	}
	copy(out, raw)
	return nil
}

// Request carries everything a verifier needs to bind a response to a
// committed board: the proof, the defender's commitment, the targeted cell and
// the claimed cell value.
type Request struct {
	Proof      Proof
	Commitment Digest
	X, Y       int
	Response   uint8
}

// Verifier answers whether Request.Proof demonstrates that the board behind
// Request.Commitment holds Request.Response at (X, Y). An error means the
// answer is unknown and must be treated like false.
type Verifier interface {
	Verify(ctx context.Context, req Request) (bool, error)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, req Request) (bool, error)

func (f VerifierFunc) Verify(ctx context.Context, req Request) (bool, error) { return f(ctx, req) }

// Placeholder accepts any proof that is not all zero bytes.
//
// It is NOT a security property. It stands in for a real verifier during local
// play and must never be used where the answer matters.
type Placeholder struct{}

func (Placeholder) Verify(_ context.Context, req Request) (bool, error) {
	return !req.Proof.IsZero(), nil
}

// ErrTimeout is returned by a verifier wrapped with WithTimeout when the
// underlying call did not answer in time.
var ErrTimeout = errors.New("oracle: verification timed out")

type timeoutVerifier struct {
	next    Verifier
	timeout time.Duration
}

// WithTimeout bounds every call to v. A non-positive timeout returns v unchanged.
func WithTimeout(v Verifier, timeout time.Duration) Verifier {
	if timeout <= 0 {
		return v
	}
	return &timeoutVerifier{next: v, timeout: timeout}
}

type result struct {
	ok  bool
	err error
}

func (t *timeoutVerifier) Verify(ctx context.Context, req Request) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	done := make(chan result, 1)
	go func() {
		ok, err := t.next.Verify(ctx, req)
		done <- result{ok, err}
	}()

	select {
	case r := <-done:
		return r.ok, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return false, ErrTimeout
		}
		return false, ctx.Err()
	}
}
