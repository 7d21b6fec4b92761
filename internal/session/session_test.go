package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/framelat/internal/core"
	"firestige.xyz/framelat/internal/record"
)

func TestCounter(t *testing.T) {
	var c Counter
	_, ok := c.Last()
	assert.False(t, ok)

	for want := uint64(0); want < 5; want++ {
		assert.Equal(t, want, c.Next())
	}
	last, ok := c.Last()
	assert.True(t, ok)
	assert.Equal(t, uint64(4), last)
	assert.Equal(t, uint64(5), c.Observed())

	c.Repoint(9)
	assert.Equal(t, uint64(10), c.Next())
}

func TestState_ConcurrentCreates(t *testing.T) {
	s := New(core.EndpointSender)
	assert.NotEqual(t, [16]byte{}, [16]byte(s.ID))

	const n = 200
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Do(func(c *Counters, st *record.Store) error {
				return st.Create(c.Raw.Next(), nil)
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	snap := s.Snapshot()
	require.Len(t, snap, n)
	seen := make(map[uint64]bool, n)
	for _, r := range snap {
		seen[r.Sequence] = true
	}
	for i := uint64(0); i < n; i++ {
		assert.True(t, seen[i], "sequence %d missing", i)
	}
}

func TestState_Get(t *testing.T) {
	s := New(core.EndpointReceiver)
	_, err := s.Get(0)
	assert.ErrorIs(t, err, core.ErrRecordNotFound)

	require.NoError(t, s.Do(func(c *Counters, st *record.Store) error {
		return st.Create(c.Received.Next(), func(r *record.FrameRecord) { r.EncodedSize.Fill(20000) })
	}))
	r, err := s.Get(0)
	require.NoError(t, err)
	size, _ := r.EncodedSize.Get()
	assert.Equal(t, 20000, size)
}
