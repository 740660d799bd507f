package process

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justyntemme/notes/pkg/atom"
	"github.com/justyntemme/notes/pkg/framework/urid"
)

func newTestContext(t *testing.T, capacity int) (*Context, *atom.URIDs) {
	t.Helper()
	u := atom.MapURIDs(urid.NewTable())
	return NewContext(capacity, u), u
}

func intAtom(u *atom.URIDs, v int32) atom.Atom {
	f := atom.NewForge(u)
	f.SetBuffer(make([]byte, 16))
	f.Int(v)
	a, _, _ := atom.Parse(f.Bytes())
	return a
}

func TestContextControlEvents(t *testing.T) {
	ctx, u := newTestContext(t, 256)

	assert.False(t, ctx.HasControlEvents())
	assert.Equal(t, u.Sequence, ctx.Control().Type)

	require.NoError(t, ctx.AddControlEvent(0, intAtom(u, 1)))
	require.NoError(t, ctx.AddControlEvent(10, intAtom(u, 2)))
	assert.True(t, ctx.HasControlEvents())

	var frames []int64
	var values []int32
	err := atom.ForEachEvent(ctx.Control(), func(ts int64, event atom.Atom) bool {
		v, ok := event.Int32()
		require.True(t, ok)
		frames = append(frames, ts)
		values = append(values, v)
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 10}, frames)
	assert.Equal(t, []int32{1, 2}, values)

	ctx.ClearControl()
	assert.False(t, ctx.HasControlEvents())
}

func TestContextControlOverflow(t *testing.T) {
	// Sequence header plus exactly one int event
	ctx, u := newTestContext(t, 16+8+16)

	require.NoError(t, ctx.AddControlEvent(0, intAtom(u, 1)))
	assert.ErrorIs(t, ctx.AddControlEvent(1, intAtom(u, 2)), atom.ErrOverflow)

	count := 0
	require.NoError(t, atom.ForEachEvent(ctx.Control(), func(int64, atom.Atom) bool {
		count++
		return true
	}))
	assert.Equal(t, 1, count)
}

func TestContextNotify(t *testing.T) {
	ctx, u := newTestContext(t, 256)

	count := 0
	require.NoError(t, ctx.ForEachNotify(func(int64, atom.Atom) bool {
		count++
		return true
	}))
	assert.Zero(t, count)

	f := atom.NewForge(u)
	f.SetBuffer(ctx.Notify())
	seq := f.SequenceHead(0)
	f.FrameTime(5)
	f.Int(42)
	f.Pop(seq)
	require.NoError(t, f.Err())

	require.NoError(t, ctx.ForEachNotify(func(frames int64, event atom.Atom) bool {
		v, _ := event.Int32()
		assert.Equal(t, int64(5), frames)
		assert.Equal(t, int32(42), v)
		count++
		return true
	}))
	assert.Equal(t, 1, count)

	ctx.ClearNotify()
	count = 0
	require.NoError(t, ctx.ForEachNotify(func(int64, atom.Atom) bool {
		count++
		return true
	}))
	assert.Zero(t, count)
}

func TestNewContextMinimumCapacity(t *testing.T) {
	ctx, _ := newTestContext(t, 0)
	assert.Len(t, ctx.Notify(), DefaultCapacity)
}
