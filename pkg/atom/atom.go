// Package atom implements the self-describing typed value messages exchanged between a
// plugin, its UI and the host. The layout follows LV2 atoms: a {size, type} header
// followed by the body, every atom padded to 8 bytes, all integers little-endian.
package atom

import (
	"bytes"
	"encoding/binary"
	"errors"

	"github.com/justyntemme/notes/pkg/framework/urid"
)

// Vocabulary URIs
const (
	IntURI           = "http://lv2plug.in/ns/ext/atom#Int"
	BoolURI          = "http://lv2plug.in/ns/ext/atom#Bool"
	StringURI        = "http://lv2plug.in/ns/ext/atom#String"
	PathURI          = "http://lv2plug.in/ns/ext/atom#Path"
	URIDURI          = "http://lv2plug.in/ns/ext/atom#URID"
	ObjectURI        = "http://lv2plug.in/ns/ext/atom#Object"
	SequenceURI      = "http://lv2plug.in/ns/ext/atom#Sequence"
	EventTransferURI = "http://lv2plug.in/ns/ext/atom#eventTransfer"

	PatchSetURI      = "http://lv2plug.in/ns/ext/patch#Set"
	PatchGetURI      = "http://lv2plug.in/ns/ext/patch#Get"
	PatchSubjectURI  = "http://lv2plug.in/ns/ext/patch#subject"
	PatchPropertyURI = "http://lv2plug.in/ns/ext/patch#property"
	PatchValueURI    = "http://lv2plug.in/ns/ext/patch#value"
)

// HeaderSize is the size of an atom header in bytes
const HeaderSize = 8

var (
	// ErrTruncated is returned when a buffer ends inside an atom
	ErrTruncated = errors.New("atom: truncated")
	// ErrOverflow is returned by a Forge whose buffer is exhausted
	ErrOverflow = errors.New("atom: forge buffer overflow")
)

// URIDs holds the mapped vocabulary, resolved once per instance
type URIDs struct {
	Int           urid.URID
	Bool          urid.URID
	String        urid.URID
	Path          urid.URID
	URID          urid.URID
	Object        urid.URID
	Sequence      urid.URID
	EventTransfer urid.URID

	PatchSet      urid.URID
	PatchGet      urid.URID
	PatchSubject  urid.URID
	PatchProperty urid.URID
	PatchValue    urid.URID
}

// MapURIDs resolves the vocabulary through m
func MapURIDs(m urid.Mapper) *URIDs {
	return &URIDs{
		Int:           m.Map(IntURI),
		Bool:          m.Map(BoolURI),
		String:        m.Map(StringURI),
		Path:          m.Map(PathURI),
		URID:          m.Map(URIDURI),
		Object:        m.Map(ObjectURI),
		Sequence:      m.Map(SequenceURI),
		EventTransfer: m.Map(EventTransferURI),
		PatchSet:      m.Map(PatchSetURI),
		PatchGet:      m.Map(PatchGetURI),
		PatchSubject:  m.Map(PatchSubjectURI),
		PatchProperty: m.Map(PatchPropertyURI),
		PatchValue:    m.Map(PatchValueURI),
	}
}

// Pad rounds n up to the next multiple of 8
func Pad(n int) int {
	return (n + 7) &^ 7
}

// Atom is a decoded atom. Body aliases the buffer it was parsed from.
type Atom struct {
	Type urid.URID
	Body []byte
}

// Parse decodes the atom at the start of b. It returns the atom and the
// number of bytes it occupies including padding (clamped to len(b)).
func Parse(b []byte) (Atom, int, error) {
	if len(b) < HeaderSize {
		return Atom{}, 0, ErrTruncated
	}

	size := int(binary.LittleEndian.Uint32(b[0:4]))
	typ := urid.URID(binary.LittleEndian.Uint32(b[4:8]))
	if size > len(b)-HeaderSize {
		return Atom{}, 0, ErrTruncated
	}

	total := Pad(HeaderSize + size)
	if total > len(b) {
		total = len(b)
	}

	return Atom{Type: typ, Body: b[HeaderSize : HeaderSize+size]}, total, nil
}

// TotalSize returns the encoded size of the atom without trailing padding
func (a Atom) TotalSize() int {
	return HeaderSize + len(a.Body)
}

// IsZero reports whether the atom is empty
func (a Atom) IsZero() bool {
	return a.Type == 0 && len(a.Body) == 0
}

// Int32 returns the body as an int32
func (a Atom) Int32() (int32, bool) {
	if len(a.Body) < 4 {
		return 0, false
	}
	return int32(binary.LittleEndian.Uint32(a.Body)), true
}

// Bool returns the body as a boolean
func (a Atom) Bool() (bool, bool) {
	v, ok := a.Int32()
	return v != 0, ok
}

// URIDValue returns the body as a URID
func (a Atom) URIDValue() (urid.URID, bool) {
	v, ok := a.Int32()
	return urid.URID(v), ok
}

// Chars returns a string or path body up to its terminating NUL
func (a Atom) Chars() []byte {
	if i := bytes.IndexByte(a.Body, 0); i >= 0 {
		return a.Body[:i]
	}
	return a.Body
}

// Object is a decoded object atom
type Object struct {
	ID    urid.URID
	OType urid.URID
	props []byte
}

// Object interprets the body as an object. The caller checks a.Type.
func (a Atom) Object() (Object, bool) {
	if len(a.Body) < 8 {
		return Object{}, false
	}
	return Object{
		ID:    urid.URID(binary.LittleEndian.Uint32(a.Body[0:4])),
		OType: urid.URID(binary.LittleEndian.Uint32(a.Body[4:8])),
		props: a.Body[8:],
	}, true
}

// ForEach calls fn for every property of the object until fn returns false
func (o Object) ForEach(fn func(key urid.URID, value Atom) bool) error {
	b := o.props
	for len(b) > 0 {
		if len(b) < 8 {
			return ErrTruncated
		}
		key := urid.URID(binary.LittleEndian.Uint32(b[0:4]))
		value, n, err := Parse(b[8:])
		if err != nil {
			return err
		}
		if !fn(key, value) {
			return nil
		}
		b = b[8+n:]
	}
	return nil
}

// Get returns the first property value stored under key
func (o Object) Get(key urid.URID) (Atom, bool) {
	var found Atom
	var ok bool
	_ = o.ForEach(func(k urid.URID, v Atom) bool {
		if k == key {
			found, ok = v, true
			return false
		}
		return true
	})
	return found, ok
}

// ForEachEvent calls fn for every event of a sequence atom until fn returns false
func ForEachEvent(seq Atom, fn func(frames int64, event Atom) bool) error {
	if len(seq.Body) < 8 {
		return ErrTruncated
	}

	b := seq.Body[8:]
	for len(b) > 0 {
		if len(b) < 8 {
			return ErrTruncated
		}
		frames := int64(binary.LittleEndian.Uint64(b[0:8]))
		event, n, err := Parse(b[8:])
		if err != nil {
			return err
		}
		if !fn(frames, event) {
			return nil
		}
		b = b[8+n:]
	}
	return nil
}
