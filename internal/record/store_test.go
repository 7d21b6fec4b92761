package record

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/framelat/internal/core"
)

func newStoreWithSizes(t *testing.T, sizes ...int) *Store {
	t.Helper()
	s := NewStore()
	for i, size := range sizes {
		size := size
		require.NoError(t, s.Create(uint64(i), func(r *FrameRecord) {
			r.EncodedSize.Fill(size)
		}))
	}
	return s
}

func TestStore_CreateAndGet(t *testing.T) {
	s := NewStore()
	now := time.Now()

	err := s.Create(0, func(r *FrameRecord) {
		r.RawSize.Fill(100000)
		r.CaptureTS.Fill(now)
	})
	require.NoError(t, err)

	r, err := s.Get(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), r.Sequence)
	size, ok := r.RawSize.Get()
	assert.True(t, ok)
	assert.Equal(t, 100000, size)
	assert.False(t, r.EncodedTS.IsSet())
	assert.False(t, r.Complete())
}

func TestStore_CreateDuplicate(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Create(3, nil))

	err := s.Create(3, nil)
	assert.ErrorIs(t, err, core.ErrDuplicateSequence)
	assert.True(t, core.IsFatal(err))
	assert.Equal(t, 1, s.Len())
}

func TestStore_GetMissing(t *testing.T) {
	s := NewStore()
	_, err := s.Get(42)
	assert.ErrorIs(t, err, core.ErrRecordNotFound)

	err = s.Update(42, func(r *FrameRecord) error { return nil })
	assert.ErrorIs(t, err, core.ErrRecordNotFound)
}

func TestStore_UpdateFillsOnlyUnset(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Create(0, nil))
	first := time.Now()

	require.NoError(t, s.Update(0, func(r *FrameRecord) error {
		assert.True(t, r.EncodedTS.Fill(first))
		assert.False(t, r.EncodedTS.Fill(first.Add(time.Second)))
		return nil
	}))

	r, err := s.Get(0)
	require.NoError(t, err)
	ts, _ := r.EncodedTS.Get()
	assert.True(t, ts.Equal(first))
}

func TestStore_ScanDescending(t *testing.T) {
	s := newStoreWithSizes(t, 10, 20, 30, 20, 50, 60, 70)

	var hit uint64
	seq, ok := s.ScanDescending(6, 15, func(r *FrameRecord) bool {
		size, _ := r.EncodedSize.Get()
		return size == 20
	}, func(r *FrameRecord) { hit = r.Sequence })

	assert.True(t, ok)
	assert.Equal(t, uint64(3), seq, "newest matching record wins")
	assert.Equal(t, uint64(3), hit)
}

func TestStore_ScanDescendingRespectsDepth(t *testing.T) {
	s := newStoreWithSizes(t, 10, 20, 30, 40, 50, 60)

	_, ok := s.ScanDescending(5, 2, func(r *FrameRecord) bool {
		size, _ := r.EncodedSize.Get()
		return size == 20
	}, func(r *FrameRecord) {})
	assert.False(t, ok, "record 1 lies outside [3,5]")

	seq, ok := s.ScanDescending(5, 4, func(r *FrameRecord) bool {
		size, _ := r.EncodedSize.Get()
		return size == 20
	}, func(r *FrameRecord) {})
	assert.True(t, ok)
	assert.Equal(t, uint64(1), seq)
}

func TestStore_ScanDescendingSkipsMissing(t *testing.T) {
	s := newStoreWithSizes(t, 10, 20)

	seq, ok := s.ScanDescending(9, 15, func(r *FrameRecord) bool {
		size, _ := r.EncodedSize.Get()
		return size == 10
	}, func(r *FrameRecord) {})
	assert.True(t, ok)
	assert.Equal(t, uint64(0), seq)
}

func TestStore_SnapshotKeepsCreationOrder(t *testing.T) {
	s := NewStore()
	for _, seq := range []uint64{2, 0, 1} {
		require.NoError(t, s.Create(seq, nil))
	}

	snap := s.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, uint64(2), snap[0].Sequence)
	assert.Equal(t, uint64(0), snap[1].Sequence)
	assert.Equal(t, uint64(1), snap[2].Sequence)

	// snapshot is a copy
	snap[0].RawSize.Fill(1)
	r, _ := s.Get(2)
	assert.False(t, r.RawSize.IsSet())
}

func TestFrameRecord_Complete(t *testing.T) {
	var r FrameRecord
	assert.False(t, r.Complete())
	r.EncodedTS.Fill(time.Now())
	assert.False(t, r.Complete())
	r.AckTS.Fill(time.Now())
	assert.True(t, r.Complete())
	assert.True(t, r.Acknowledged())
}
