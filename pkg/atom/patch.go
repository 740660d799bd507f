package atom

import (
	"github.com/justyntemme/notes/pkg/framework/urid"
)

// Patch is a decoded patch:Set or patch:Get message
type Patch struct {
	Kind     urid.URID // PatchSet or PatchGet
	Subject  urid.URID
	Property urid.URID
	Value    Atom // only for PatchSet
}

// SetHead opens a patch:Set for property. The caller writes exactly one
// value atom and then closes the frame with Pop.
func (f *Forge) SetHead(subject, property urid.URID) Frame {
	frame := f.ObjectHead(0, f.URIDs.PatchSet)
	if subject != 0 {
		f.Key(f.URIDs.PatchSubject)
		f.URIDValue(subject)
	}
	f.Key(f.URIDs.PatchProperty)
	f.URIDValue(property)
	f.Key(f.URIDs.PatchValue)
	return frame
}

// Get writes a complete patch:Get. A zero property asks for every property.
func (f *Forge) Get(subject, property urid.URID) {
	frame := f.ObjectHead(0, f.URIDs.PatchGet)
	if subject != 0 {
		f.Key(f.URIDs.PatchSubject)
		f.URIDValue(subject)
	}
	if property != 0 {
		f.Key(f.URIDs.PatchProperty)
		f.URIDValue(property)
	}
	f.Pop(frame)
}

// ParsePatch decodes a patch message. A patch:Set without property or value
// is rejected.
func (u *URIDs) ParsePatch(a Atom) (Patch, bool) {
	if a.Type != u.Object {
		return Patch{}, false
	}
	obj, ok := a.Object()
	if !ok || (obj.OType != u.PatchSet && obj.OType != u.PatchGet) {
		return Patch{}, false
	}

	p := Patch{Kind: obj.OType}
	var hasValue bool
	err := obj.ForEach(func(key urid.URID, value Atom) bool {
		switch key {
		case u.PatchSubject:
			p.Subject, _ = value.URIDValue()
		case u.PatchProperty:
			p.Property, _ = value.URIDValue()
		case u.PatchValue:
			p.Value = value
			hasValue = true
		}
		return true
	})
	if err != nil {
		return Patch{}, false
	}

	if p.Kind == u.PatchSet && (p.Property == 0 || !hasValue) {
		return Patch{}, false
	}
	return p, true
}
