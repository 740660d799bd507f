// Package notestest provides message builders and decoders for tests of the
// notes plugin, its UI and hosts.
package notestest

import (
	"github.com/justyntemme/notes/pkg/atom"
	"github.com/justyntemme/notes/pkg/framework/urid"
)

// Message is a decoded patch event
type Message struct {
	Frames   int64
	Kind     string // "set" or "get"
	Property string
	Value    atom.Atom
}

// Builder forges standalone patch messages
type Builder struct {
	Map   *urid.Table
	URIDs *atom.URIDs
}

// NewBuilder returns a builder over a fresh URID table
func NewBuilder() *Builder {
	table := urid.NewTable()
	return &Builder{Map: table, URIDs: atom.MapURIDs(table)}
}

func (b *Builder) build(write func(f *atom.Forge)) atom.Atom {
	f := atom.NewForge(b.URIDs)
	f.SetBuffer(make([]byte, 0x20000))
	write(f)
	if f.Err() != nil {
		panic(f.Err())
	}
	a, _, err := atom.Parse(f.Bytes())
	if err != nil {
		panic(err)
	}
	return a
}

// SetInt forges a patch:Set with an Int value
func (b *Builder) SetInt(property string, v int32) atom.Atom {
	return b.build(func(f *atom.Forge) {
		frame := f.SetHead(0, b.Map.Map(property))
		f.Int(v)
		f.Pop(frame)
	})
}

// SetBool forges a patch:Set with a Bool value
func (b *Builder) SetBool(property string, v bool) atom.Atom {
	return b.build(func(f *atom.Forge) {
		frame := f.SetHead(0, b.Map.Map(property))
		f.Bool(v)
		f.Pop(frame)
	})
}

// SetString forges a patch:Set with a String value
func (b *Builder) SetString(property, v string) atom.Atom {
	return b.build(func(f *atom.Forge) {
		frame := f.SetHead(0, b.Map.Map(property))
		f.String(v)
		f.Pop(frame)
	})
}

// SetPath forges a patch:Set with a Path value
func (b *Builder) SetPath(property, v string) atom.Atom {
	return b.build(func(f *atom.Forge) {
		frame := f.SetHead(0, b.Map.Map(property))
		f.Path(v)
		f.Pop(frame)
	})
}

// Get forges a patch:Get. An empty property asks for every property.
func (b *Builder) Get(property string) atom.Atom {
	return b.build(func(f *atom.Forge) {
		var key urid.URID
		if property != "" {
			key = b.Map.Map(property)
		}
		f.Get(0, key)
	})
}

// Decode converts a patch atom into a Message
func (b *Builder) Decode(frames int64, a atom.Atom) (Message, bool) {
	p, ok := b.URIDs.ParsePatch(a)
	if !ok {
		return Message{}, false
	}

	m := Message{Frames: frames, Property: b.Map.Unmap(p.Property), Value: p.Value}
	switch p.Kind {
	case b.URIDs.PatchSet:
		m.Kind = "set"
	case b.URIDs.PatchGet:
		m.Kind = "get"
	}
	return m, true
}

// DecodeSequence decodes every patch event of a sequence atom
func (b *Builder) DecodeSequence(seq atom.Atom) ([]Message, error) {
	var msgs []Message
	err := atom.ForEachEvent(seq, func(frames int64, event atom.Atom) bool {
		if m, ok := b.Decode(frames, event); ok {
			msgs = append(msgs, m)
		}
		return true
	})
	return msgs, err
}

// Properties returns the property URIs of msgs in order
func Properties(msgs []Message) []string {
	props := make([]string, len(msgs))
	for i, m := range msgs {
		props[i] = m.Property
	}
	return props
}

// Bytes serializes a as it travels between UI and plugin
func (b *Builder) Bytes(a atom.Atom) []byte {
	f := atom.NewForge(b.URIDs)
	f.SetBuffer(make([]byte, atom.Pad(a.TotalSize())))
	f.Raw(a.Type, a.Body)
	return f.Bytes()
}
