// Package dsp implements the headless side of the notes plugin. It owns the
// authoritative property state, answers patch messages from the UI and pushes
// host-restored state back out on its notify port.
package dsp

import (
	"github.com/justyntemme/notes/pkg/atom"
	"github.com/justyntemme/notes/pkg/framework/plugin"
	"github.com/justyntemme/notes/pkg/framework/process"
	"github.com/justyntemme/notes/pkg/framework/property"
	"github.com/justyntemme/notes/pkg/notes"
)

// Plugin is one DSP instance
type Plugin struct {
	*plugin.Base

	state notes.State
	stash notes.State
	store *property.Store[notes.State]
	forge *atom.Forge
}

// Instantiate creates a DSP instance. The host must provide urid:map; a log
// feature is used when present.
func Instantiate(features plugin.Features) (*Plugin, error) {
	base, err := plugin.NewBase(notes.Info, features)
	if err != nil {
		return nil, err
	}

	p := &Plugin{
		Base:  base,
		forge: atom.NewForge(base.URIDs),
	}
	p.state.FontHeight = notes.DefaultFontHeight

	p.store, err = property.NewStore(base.Map, base.URIDs, &p.state, &p.stash, notes.Definitions)
	if err != nil {
		return nil, err
	}

	return p, nil
}

// Run processes one cycle. Pending restored state is emitted first, then the
// control events are handled in arrival order. If the notify buffer is too
// small the whole output of the cycle is dropped.
func (p *Plugin) Run(ctx *process.Context) {
	notify := ctx.Notify()

	p.forge.SetBuffer(notify)
	seq := p.forge.SequenceHead(0)

	p.store.Idle(p.forge, 0)

	_ = atom.ForEachEvent(ctx.Control(), func(frames int64, event atom.Atom) bool {
		p.store.Advance(p.forge, frames, event)
		return true
	})

	p.forge.Pop(seq)

	if p.forge.Err() != nil {
		atom.ClearSequence(notify, p.URIDs.Sequence)
		p.Log.Trace("forge buffer overflow")
	}
}

// SaveState exports every property. It must not run concurrently with Run.
func (p *Plugin) SaveState(store property.StoreFunc) error {
	return p.store.Save(store)
}

// RestoreState stages the retrieved properties; the next Run commits and
// emits them. It may be called from any thread.
func (p *Plugin) RestoreState(retrieve property.RetrieveFunc) error {
	return p.store.Restore(retrieve)
}

// Value returns the current value of the property with the given URI
func (p *Plugin) Value(uri string) (atom.Atom, bool) {
	key, ok := p.store.Lookup(uri)
	if !ok {
		return atom.Atom{}, false
	}
	return p.store.Value(key)
}

// Cleanup releases the instance
func (p *Plugin) Cleanup() {
	p.forge.SetBuffer(nil)
	p.store = nil
}
