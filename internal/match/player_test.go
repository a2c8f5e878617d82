package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"battleship-zk/internal/oracle"
)

func TestNewPlayerRecordIsEmpty(t *testing.T) {
	r := NewPlayerRecord()
	assert.False(t, r.Committed())
	assert.True(t, r.Commitment().IsZero())
	assert.Zero(t, r.HitsReceived())
	assert.Empty(t, r.History())
	for x := 0; x < 10; x++ {
		for y := 0; y < 10; y++ {
			require.False(t, r.Targeted(x, y))
		}
	}
}

func TestPlayerRecordCommitOnce(t *testing.T) {
	r := NewPlayerRecord()
	d := oracle.Digest{1}
	require.NoError(t, r.Commit(d))
	assert.True(t, r.Committed())
	assert.Equal(t, d, r.Commitment())

	assert.ErrorIs(t, r.Commit(oracle.Digest{2}), ErrAlreadyCommitted)
	assert.Equal(t, d, r.Commitment())
}

func TestPlayerRecordRecordShot(t *testing.T) {
	r := NewPlayerRecord()
	require.NoError(t, r.RecordShot(3, 4, true))
	require.NoError(t, r.RecordShot(4, 3, false))

	assert.True(t, r.Targeted(3, 4))
	assert.True(t, r.Targeted(4, 3))
	assert.False(t, r.Targeted(0, 0))
	assert.Equal(t, uint32(1), r.HitsReceived())

	err := r.RecordShot(3, 4, true)
	assert.ErrorIs(t, err, ErrAlreadyShot)
	assert.Equal(t, uint32(1), r.HitsReceived(), "duplicate must not mutate")
	assert.Equal(t, []ShotRecord{{3, 4, true}, {4, 3, false}}, r.History())

	assert.ErrorIs(t, r.RecordShot(10, 0, true), ErrOutOfBounds)
}

func TestPlayerRecordHistoryIsACopy(t *testing.T) {
	r := NewPlayerRecord()
	require.NoError(t, r.RecordShot(1, 1, true))
	h := r.History()
	h[0].IsHit = false
	assert.True(t, r.History()[0].IsHit)
}

func TestPlayerRecordPersistence(t *testing.T) {
	r := NewPlayerRecord()
	require.NoError(t, r.Commit(oracle.Digest{0xaa, 0xbb}))
	require.NoError(t, r.RecordShot(9, 9, true))
	require.NoError(t, r.RecordShot(0, 5, false))

	raw, err := r.MarshalCBOR()
	require.NoError(t, err)

	got := NewPlayerRecord()
	require.NoError(t, got.UnmarshalCBOR(raw))
	assert.Equal(t, r.Commitment(), got.Commitment())
	assert.True(t, got.Committed())
	assert.Equal(t, uint32(1), got.HitsReceived())
	assert.True(t, got.Targeted(9, 9))
	assert.True(t, got.Targeted(0, 5))
	assert.False(t, got.Targeted(5, 0))
	assert.Equal(t, r.History(), got.History())
	assert.ErrorIs(t, got.RecordShot(9, 9, false), ErrAlreadyShot)
}
