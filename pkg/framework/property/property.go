// Package property binds a fixed table of typed properties to fields of a plugin
// state record and translates between that record and patch messages.
package property

import (
	"bytes"
	"encoding/binary"
	"errors"

	"github.com/justyntemme/notes/pkg/atom"
	"github.com/justyntemme/notes/pkg/framework/urid"
)

// Flags passed to a StoreFunc
const (
	FlagPOD      uint32 = 1 << 0
	FlagPortable uint32 = 1 << 1
)

var (
	// ErrUnknownProperty is returned for a property URI not in the table
	ErrUnknownProperty = errors.New("property: unknown property")
	// ErrInvalidDefinition is returned when a definition does not match its field
	ErrInvalidDefinition = errors.New("property: invalid definition")
)

// Field points at the storage of one property inside a state record.
// Exactly one member is set.
type Field struct {
	Int   *int32
	Bool  *bool
	Chars []byte // fixed capacity, NUL-terminated
}

// Definition describes one property
type Definition[S any] struct {
	Property string // property URI
	Type     string // atom type URI
	MaxSize  int    // maximum body size in bytes (including NUL) for strings and paths
	Field    func(s *S) Field
}

// ChangeFunc is invoked after a property value was applied
type ChangeFunc func(frames int64, value atom.Atom)

// StoreFunc receives one property during Save
type StoreFunc func(key urid.URID, value []byte, typ urid.URID, flags uint32) error

// RetrieveFunc looks up one property during Restore
type RetrieveFunc func(key urid.URID) (value []byte, typ urid.URID, flags uint32, ok bool)

type kind int

const (
	kindInt kind = iota
	kindBool
	kindChars
)

type impl[S any] struct {
	def      *Definition[S]
	property urid.URID
	typ      urid.URID
	kind     kind
	maxSize  int
	onChange ChangeFunc
	stashed  bool
	scratch  [4]byte
}

// CString returns the content of a NUL-terminated buffer
func CString(b []byte) []byte {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return b[:i]
	}
	return b
}

// set copies value into s. ok is false when the value is malformed or too large.
func (im *impl[S]) set(s *S, value atom.Atom) (changed, ok bool) {
	field := im.def.Field(s)

	switch im.kind {
	case kindInt:
		v, valid := value.Int32()
		if !valid {
			return false, false
		}
		if *field.Int == v {
			return false, true
		}
		*field.Int = v

	case kindBool:
		v, valid := value.Bool()
		if !valid {
			return false, false
		}
		if *field.Bool == v {
			return false, true
		}
		*field.Bool = v

	case kindChars:
		content := value.Chars()
		if len(content)+1 > im.maxSize {
			return false, false
		}
		if bytes.Equal(CString(field.Chars), content) {
			return false, true
		}
		n := copy(field.Chars, content)
		clear(field.Chars[n:])
	}

	return true, true
}

// value returns the current value of the property in s as an atom. The body
// aliases s or the impl scratch space.
func (im *impl[S]) value(s *S) atom.Atom {
	field := im.def.Field(s)

	switch im.kind {
	case kindInt:
		binary.LittleEndian.PutUint32(im.scratch[:], uint32(*field.Int))
	case kindBool:
		var v uint32
		if *field.Bool {
			v = 1
		}
		binary.LittleEndian.PutUint32(im.scratch[:], v)
	case kindChars:
		n := len(CString(field.Chars))
		if n < len(field.Chars) {
			n++ // include NUL
		}
		return atom.Atom{Type: im.typ, Body: field.Chars[:n]}
	}
	return atom.Atom{Type: im.typ, Body: im.scratch[:]}
}

// forge writes the value of the property in s
func (im *impl[S]) forge(f *atom.Forge, s *S) {
	field := im.def.Field(s)

	switch im.kind {
	case kindInt:
		f.Int(*field.Int)
	case kindBool:
		f.Bool(*field.Bool)
	case kindChars:
		f.Chars(im.typ, CString(field.Chars))
	}
}

// copyField copies the property from src to dst
func (im *impl[S]) copyField(dst, src *S) {
	d, s := im.def.Field(dst), im.def.Field(src)

	switch im.kind {
	case kindInt:
		*d.Int = *s.Int
	case kindBool:
		*d.Bool = *s.Bool
	case kindChars:
		copy(d.Chars, s.Chars)
	}
}
