// Package state persists plugin state as a compressed session blob. Entries
// are stored under their URIs so a blob can be loaded into a process with a
// different URID mapping.
package state

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/pierrec/lz4"

	"github.com/justyntemme/notes/pkg/framework/property"
	"github.com/justyntemme/notes/pkg/framework/urid"
)

const (
	magic = "NOTES\x00"

	// Version is the current blob format version
	Version = 1

	maxEntries = 1024
	maxSize    = 1 << 20
)

// ErrInvalidFormat is returned for blobs that are not session state
var ErrInvalidFormat = errors.New("invalid state format")

// Persistent is implemented by plugins whose state can be saved
type Persistent interface {
	SaveState(store property.StoreFunc) error
	RestoreState(retrieve property.RetrieveFunc) error
}

// URIMap maps in both directions
type URIMap interface {
	urid.Mapper
	urid.Unmapper
}

// Manager handles plugin state saving and loading
type Manager struct {
	version uint32
	uris    URIMap
}

// NewManager creates a new state manager
func NewManager(uris URIMap) *Manager {
	return &Manager{
		version: Version,
		uris:    uris,
	}
}

type entry struct {
	key   string
	typ   string
	flags uint32
	value []byte
}

// Save writes the plugin state to a writer
func (m *Manager) Save(w io.Writer, p Persistent) error {
	var entries []entry
	err := p.SaveState(func(key urid.URID, value []byte, typ urid.URID, flags uint32) error {
		k, t := m.uris.Unmap(key), m.uris.Unmap(typ)
		if k == "" || t == "" {
			return fmt.Errorf("unmapped URID %d/%d", key, typ)
		}
		entries = append(entries, entry{key: k, typ: t, flags: flags, value: value})
		return nil
	})
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}

	// Write magic header
	if _, err := io.WriteString(w, magic); err != nil {
		return err
	}

	// Write version
	if err := binary.Write(w, binary.LittleEndian, m.version); err != nil {
		return err
	}

	zw := lz4.NewWriter(w)
	bw := bufio.NewWriter(zw)

	if err := binary.Write(bw, binary.LittleEndian, uint32(len(entries))); err != nil {
		return err
	}
	for _, e := range entries {
		if err := writeBytes(bw, []byte(e.key)); err != nil {
			return err
		}
		if err := writeBytes(bw, []byte(e.typ)); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, e.flags); err != nil {
			return err
		}
		if err := writeBytes(bw, e.value); err != nil {
			return err
		}
	}

	if err := bw.Flush(); err != nil {
		return err
	}
	return zw.Close()
}

// Load reads the plugin state from a reader and hands it to p. Entries p
// does not know are ignored.
func (m *Manager) Load(r io.Reader, p Persistent) error {
	// Read and verify magic header
	header := make([]byte, len(magic))
	if _, err := io.ReadFull(r, header); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	if string(header) != magic {
		return ErrInvalidFormat
	}

	// Read version
	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}

	// Handle version compatibility
	if version > m.version {
		return fmt.Errorf("state version %d is newer than supported version %d", version, m.version)
	}

	zr := bufio.NewReader(lz4.NewReader(r))

	var count uint32
	if err := binary.Read(zr, binary.LittleEndian, &count); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	if count > maxEntries {
		return fmt.Errorf("%w: %d entries", ErrInvalidFormat, count)
	}

	type value struct {
		body  []byte
		typ   urid.URID
		flags uint32
	}
	values := make(map[urid.URID]value, count)

	for i := uint32(0); i < count; i++ {
		key, err := readBytes(zr)
		if err != nil {
			return err
		}
		typ, err := readBytes(zr)
		if err != nil {
			return err
		}
		var flags uint32
		if err := binary.Read(zr, binary.LittleEndian, &flags); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidFormat, err)
		}
		body, err := readBytes(zr)
		if err != nil {
			return err
		}

		values[m.uris.Map(string(key))] = value{body: body, typ: m.uris.Map(string(typ)), flags: flags}
	}

	return p.RestoreState(func(key urid.URID) ([]byte, urid.URID, uint32, bool) {
		v, ok := values[key]
		return v.body, v.typ, v.flags, ok
	})
}

func writeBytes(w io.Writer, b []byte) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readBytes(r io.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	if n > maxSize {
		return nil, fmt.Errorf("%w: entry of %d bytes", ErrInvalidFormat, n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	return b, nil
}
