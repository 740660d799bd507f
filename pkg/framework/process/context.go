// Package process provides the pre-allocated event buffers for one plugin run cycle.
package process

import (
	"fmt"

	"github.com/justyntemme/notes/pkg/atom"
)

// DefaultCapacity is the size of each event buffer in bytes
const DefaultCapacity = 0x20000

// Context holds the control (input) and notify (output) sequences of a plugin
// with zero allocations once created.
type Context struct {
	urids   *atom.URIDs
	control []byte
	notify  []byte

	forge *atom.Forge
	seq   atom.Frame
}

// NewContext creates a new process context with pre-allocated buffers
func NewContext(capacity int, urids *atom.URIDs) *Context {
	if capacity < 2*atom.HeaderSize {
		capacity = DefaultCapacity
	}

	c := &Context{
		urids:   urids,
		control: make([]byte, capacity),
		notify:  make([]byte, capacity),
		forge:   atom.NewForge(urids),
	}
	c.ClearControl()
	c.ClearNotify()
	return c
}

// ClearControl empties the control sequence
func (c *Context) ClearControl() {
	c.forge.SetBuffer(c.control)
	c.seq = c.forge.SequenceHead(0)
	c.forge.Pop(c.seq)
}

// ClearNotify resets the notify buffer to an empty sequence
func (c *Context) ClearNotify() {
	atom.ClearSequence(c.notify, c.urids.Sequence)
}

// AddControlEvent appends an event to the control sequence. Events must be
// added in time order. An event that does not fit is rejected whole.
func (c *Context) AddControlEvent(frames int64, event atom.Atom) error {
	need := 8 + atom.Pad(event.TotalSize())
	if c.forge.Len()+need > len(c.control) {
		return fmt.Errorf("control event of %d bytes: %w", need, atom.ErrOverflow)
	}

	c.forge.FrameTime(frames)
	c.forge.Raw(event.Type, event.Body)
	c.forge.Pop(c.seq)
	return c.forge.Err()
}

// Control returns the control sequence
func (c *Context) Control() atom.Atom {
	a, _, err := atom.Parse(c.forge.Bytes())
	if err != nil {
		return atom.Atom{Type: c.urids.Sequence}
	}
	return a
}

// HasControlEvents returns true if there are pending control events
func (c *Context) HasControlEvents() bool {
	return c.forge.Len() > 2*atom.HeaderSize
}

// Notify returns the notify buffer the plugin writes its output sequence into
func (c *Context) Notify() []byte {
	return c.notify
}

// ForEachNotify calls fn for every event the plugin wrote to the notify buffer
func (c *Context) ForEachNotify(fn func(frames int64, event atom.Atom) bool) error {
	seq, _, err := atom.Parse(c.notify)
	if err != nil {
		return err
	}
	if seq.Type != c.urids.Sequence {
		return fmt.Errorf("notify buffer holds type %d: %w", seq.Type, atom.ErrTruncated)
	}
	return atom.ForEachEvent(seq, fn)
}
