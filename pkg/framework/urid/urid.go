// Package urid maps URIs to small integer identifiers shared by a host and its plugins.
package urid

import (
	"sync"
)

// URID is a host-assigned identifier for a URI. Zero is never a valid URID.
type URID uint32

// Feature URIs under which a host passes its mapper and unmapper.
const (
	MapURI   = "http://lv2plug.in/ns/ext/urid#map"
	UnmapURI = "http://lv2plug.in/ns/ext/urid#unmap"
)

// Mapper resolves a URI to its URID
type Mapper interface {
	Map(uri string) URID
}

// Unmapper resolves a URID back to its URI
type Unmapper interface {
	Unmap(id URID) string
}

// Table is an in-memory Mapper and Unmapper
type Table struct {
	ids  map[string]URID
	uris []string // index = URID-1
	mu   sync.RWMutex
}

// NewTable creates an empty URID table
func NewTable() *Table {
	return &Table{
		ids:  make(map[string]URID),
		uris: make([]string, 0, 64),
	}
}

// Map returns the URID for uri, assigning the next free one on first use
func (t *Table) Map(uri string) URID {
	if uri == "" {
		return 0
	}

	t.mu.RLock()
	id, ok := t.ids[uri]
	t.mu.RUnlock()
	if ok {
		return id
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if id, ok := t.ids[uri]; ok {
		return id
	}
	t.uris = append(t.uris, uri)
	id = URID(len(t.uris))
	t.ids[uri] = id

	return id
}

// Unmap returns the URI for id, or "" if id was never mapped
func (t *Table) Unmap(id URID) string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if id == 0 || int(id) > len(t.uris) {
		return ""
	}
	return t.uris[id-1]
}

// Count returns the number of mapped URIs
func (t *Table) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.uris)
}
