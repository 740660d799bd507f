package property

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/justyntemme/notes/pkg/atom"
	"github.com/justyntemme/notes/pkg/framework/urid"
)

// Store manages the properties of one state record.
//
// Apply, Emit, Request, Advance and Idle run on the owning thread and do not
// allocate. Restore may be called from another thread: restored values are
// staged in the stash and committed by the next Idle.
type Store[S any] struct {
	urids *atom.URIDs
	impls map[urid.URID]*impl[S]
	order []*impl[S] // definition order
	state *S
	stash *S

	mu       sync.Mutex // guards stash and impl.stashed
	restored atomic.Bool
}

// NewStore resolves the definition table against m. stash may be nil.
func NewStore[S any](m urid.Mapper, u *atom.URIDs, state, stash *S, defs []Definition[S]) (*Store[S], error) {
	if stash == nil {
		stash = new(S)
	}

	s := &Store[S]{
		urids: u,
		impls: make(map[urid.URID]*impl[S], len(defs)),
		order: make([]*impl[S], 0, len(defs)),
		state: state,
		stash: stash,
	}

	for i := range defs {
		def := &defs[i]

		im := &impl[S]{
			def:      def,
			property: m.Map(def.Property),
			typ:      m.Map(def.Type),
			maxSize:  def.MaxSize,
		}
		if im.property == 0 || def.Field == nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidDefinition, def.Property)
		}

		field := def.Field(state)
		switch def.Type {
		case atom.IntURI:
			im.kind = kindInt
			if field.Int == nil {
				return nil, fmt.Errorf("%w: %s is not an int field", ErrInvalidDefinition, def.Property)
			}
		case atom.BoolURI:
			im.kind = kindBool
			if field.Bool == nil {
				return nil, fmt.Errorf("%w: %s is not a bool field", ErrInvalidDefinition, def.Property)
			}
		case atom.StringURI, atom.PathURI:
			im.kind = kindChars
			if len(field.Chars) == 0 {
				return nil, fmt.Errorf("%w: %s has no character storage", ErrInvalidDefinition, def.Property)
			}
			if im.maxSize <= 0 || im.maxSize > len(field.Chars) {
				im.maxSize = len(field.Chars)
			}
		default:
			return nil, fmt.Errorf("%w: %s has unsupported type %s", ErrInvalidDefinition, def.Property, def.Type)
		}

		if _, exists := s.impls[im.property]; exists {
			continue // Skip duplicates
		}
		s.impls[im.property] = im
		s.order = append(s.order, im)
	}

	return s, nil
}

// Keys returns the property URIDs in definition order
func (s *Store[S]) Keys() []urid.URID {
	keys := make([]urid.URID, len(s.order))
	for i, im := range s.order {
		keys[i] = im.property
	}
	return keys
}

// Count returns the number of properties
func (s *Store[S]) Count() int {
	return len(s.order)
}

// Has reports whether property is part of the table
func (s *Store[S]) Has(property urid.URID) bool {
	_, ok := s.impls[property]
	return ok
}

// Lookup returns the URID of the property with the given URI
func (s *Store[S]) Lookup(uri string) (urid.URID, bool) {
	for _, im := range s.order {
		if im.def.Property == uri {
			return im.property, true
		}
	}
	return 0, false
}

// Name returns the URI of a property
func (s *Store[S]) Name(property urid.URID) string {
	if im, ok := s.impls[property]; ok {
		return im.def.Property
	}
	return ""
}

// OnChange registers the change callback of the property with the given URI
func (s *Store[S]) OnChange(uri string, fn ChangeFunc) error {
	for _, im := range s.order {
		if im.def.Property == uri {
			im.onChange = fn
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownProperty, uri)
}

// Value returns the current value of property. The body aliases internal storage.
func (s *Store[S]) Value(property urid.URID) (atom.Atom, bool) {
	im, ok := s.impls[property]
	if !ok {
		return atom.Atom{}, false
	}
	return im.value(s.state), true
}

// Apply stores value for property and invokes its change callback. Unknown
// properties, mismatching types and oversized values are ignored. It reports
// whether the stored value changed.
func (s *Store[S]) Apply(frames int64, property urid.URID, value atom.Atom) bool {
	im, ok := s.impls[property]
	if !ok || value.Type != im.typ {
		return false
	}

	changed, ok := im.set(s.state, value)
	if !ok || !changed {
		return false
	}

	if im.onChange != nil {
		im.onChange(frames, im.value(s.state))
	}
	return true
}

// Emit writes a patch:Set event carrying the current value of property.
// A nil forge discards the message.
func (s *Store[S]) Emit(f *atom.Forge, frames int64, property urid.URID) bool {
	im, ok := s.impls[property]
	if !ok || f == nil {
		return false
	}

	s.emit(f, frames, im)
	return f.Err() == nil
}

func (s *Store[S]) emit(f *atom.Forge, frames int64, im *impl[S]) {
	f.FrameTime(frames)
	frame := f.SetHead(0, im.property)
	im.forge(f, s.state)
	f.Pop(frame)
}

// Request writes a patch:Get event asking for property
func (s *Store[S]) Request(f *atom.Forge, frames int64, property urid.URID) bool {
	if _, ok := s.impls[property]; !ok || f == nil {
		return false
	}

	f.FrameTime(frames)
	f.Get(0, property)
	return f.Err() == nil
}

// Advance handles one incoming patch message. A patch:Set is applied; a
// patch:Get is answered on f with the requested property, or with every
// property when none is named. It reports whether the message had an effect.
func (s *Store[S]) Advance(f *atom.Forge, frames int64, msg atom.Atom) bool {
	p, ok := s.urids.ParsePatch(msg)
	if !ok {
		return false
	}

	switch p.Kind {
	case s.urids.PatchSet:
		return s.Apply(frames, p.Property, p.Value)

	case s.urids.PatchGet:
		if f == nil {
			return false
		}
		if p.Property == 0 {
			for _, im := range s.order {
				s.emit(f, frames, im)
			}
			return f.Err() == nil
		}
		return s.Emit(f, frames, p.Property)
	}

	return false
}

// Save hands every property to store in definition order
func (s *Store[S]) Save(store StoreFunc) error {
	for _, im := range s.order {
		v := im.value(s.state)
		body := make([]byte, len(v.Body))
		copy(body, v.Body)

		if err := store(im.property, body, im.typ, FlagPOD|FlagPortable); err != nil {
			return fmt.Errorf("store %s: %w", im.def.Property, err)
		}
	}
	return nil
}

// Restore stages every property retrieve knows about. Values with a wrong
// type or size are skipped. The next Idle commits them.
func (s *Store[S]) Restore(retrieve RetrieveFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, im := range s.order {
		body, typ, _, ok := retrieve(im.property)
		if !ok || typ != im.typ {
			continue
		}
		if _, valid := im.set(s.stash, atom.Atom{Type: typ, Body: body}); !valid {
			continue
		}
		im.stashed = true
	}

	s.restored.Store(true)
	return nil
}

// Idle commits a pending Restore and emits every restored property on f.
// It never blocks: if a Restore is in progress the commit is retried on the
// next call. It reports whether anything was committed.
func (s *Store[S]) Idle(f *atom.Forge, frames int64) bool {
	if !s.restored.Load() {
		return false
	}
	if !s.mu.TryLock() {
		return false
	}
	defer s.mu.Unlock()

	for _, im := range s.order {
		if !im.stashed {
			continue
		}
		im.stashed = false
		im.copyField(s.state, s.stash)

		if im.onChange != nil {
			im.onChange(frames, im.value(s.state))
		}
		if f != nil {
			s.emit(f, frames, im)
		}
	}

	s.restored.Store(false)
	return true
}
