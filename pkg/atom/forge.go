package atom

import (
	"encoding/binary"

	"github.com/justyntemme/notes/pkg/framework/urid"
)

// Frame marks an open container (object or sequence) in a Forge
type Frame struct {
	offset int
	open   bool
}

// Forge serializes atoms into a caller-owned buffer. It never allocates.
// Once the buffer is exhausted every further write is dropped and Err
// reports ErrOverflow until SetBuffer is called again.
type Forge struct {
	URIDs *URIDs

	buf []byte
	off int
	err error
}

// NewForge creates a forge for the given vocabulary
func NewForge(u *URIDs) *Forge {
	return &Forge{URIDs: u}
}

// SetBuffer points the forge at buf and clears any previous error
func (f *Forge) SetBuffer(buf []byte) {
	f.buf = buf
	f.off = 0
	f.err = nil
}

// Err returns ErrOverflow if any write did not fit
func (f *Forge) Err() error {
	return f.err
}

// Len returns the number of bytes written so far
func (f *Forge) Len() int {
	return f.off
}

// Bytes returns the written part of the buffer
func (f *Forge) Bytes() []byte {
	return f.buf[:f.off]
}

func (f *Forge) reserve(n int) []byte {
	if f.err != nil {
		return nil
	}
	if f.off+n > len(f.buf) {
		f.err = ErrOverflow
		return nil
	}
	p := f.buf[f.off : f.off+n]
	f.off += n
	return p
}

func (f *Forge) uint32(v uint32) {
	if p := f.reserve(4); p != nil {
		binary.LittleEndian.PutUint32(p, v)
	}
}

func (f *Forge) pad() {
	n := Pad(f.off) - f.off
	if p := f.reserve(n); p != nil {
		clear(p)
	}
}

func (f *Forge) header(size int, typ urid.URID) {
	f.uint32(uint32(size))
	f.uint32(uint32(typ))
}

// Raw writes an atom of type typ with the given body
func (f *Forge) Raw(typ urid.URID, body []byte) {
	f.header(len(body), typ)
	if p := f.reserve(len(body)); p != nil {
		copy(p, body)
	}
	f.pad()
}

// Int writes an Int atom
func (f *Forge) Int(v int32) {
	f.header(4, f.URIDs.Int)
	f.uint32(uint32(v))
	f.pad()
}

// Bool writes a Bool atom
func (f *Forge) Bool(v bool) {
	var i uint32
	if v {
		i = 1
	}
	f.header(4, f.URIDs.Bool)
	f.uint32(i)
	f.pad()
}

// URIDValue writes a URID atom
func (f *Forge) URIDValue(v urid.URID) {
	f.header(4, f.URIDs.URID)
	f.uint32(uint32(v))
	f.pad()
}

// Chars writes a NUL-terminated string-like atom of type typ
func (f *Forge) Chars(typ urid.URID, s []byte) {
	f.header(len(s)+1, typ)
	if p := f.reserve(len(s) + 1); p != nil {
		copy(p, s)
		p[len(s)] = 0
	}
	f.pad()
}

// String writes a String atom
func (f *Forge) String(s string) {
	f.header(len(s)+1, f.URIDs.String)
	if p := f.reserve(len(s) + 1); p != nil {
		copy(p, s)
		p[len(s)] = 0
	}
	f.pad()
}

// Path writes a Path atom
func (f *Forge) Path(s string) {
	f.header(len(s)+1, f.URIDs.Path)
	if p := f.reserve(len(s) + 1); p != nil {
		copy(p, s)
		p[len(s)] = 0
	}
	f.pad()
}

// ObjectHead opens an object; close it with Pop
func (f *Forge) ObjectHead(id, otype urid.URID) Frame {
	frame := Frame{offset: f.off, open: f.err == nil}
	f.header(0, f.URIDs.Object)
	f.uint32(uint32(id))
	f.uint32(uint32(otype))
	return frame
}

// Key writes the key of the next object property
func (f *Forge) Key(key urid.URID) {
	f.uint32(uint32(key))
	f.uint32(0)
}

// SequenceHead opens a sequence; close it with Pop
func (f *Forge) SequenceHead(unit urid.URID) Frame {
	frame := Frame{offset: f.off, open: f.err == nil}
	f.header(0, f.URIDs.Sequence)
	f.uint32(uint32(unit))
	f.uint32(0)
	return frame
}

// FrameTime writes the time stamp of the next sequence event
func (f *Forge) FrameTime(frames int64) {
	if p := f.reserve(8); p != nil {
		binary.LittleEndian.PutUint64(p, uint64(frames))
	}
}

// Pop closes a container opened by ObjectHead or SequenceHead
func (f *Forge) Pop(frame Frame) {
	if f.err != nil || !frame.open {
		return
	}
	size := f.off - frame.offset - HeaderSize
	binary.LittleEndian.PutUint32(f.buf[frame.offset:], uint32(size))
}

// ClearSequence overwrites buf with an empty sequence
func ClearSequence(buf []byte, sequence urid.URID) {
	if len(buf) < 2*HeaderSize {
		return
	}
	binary.LittleEndian.PutUint32(buf[0:4], 8)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(sequence))
	clear(buf[8:16])
}
