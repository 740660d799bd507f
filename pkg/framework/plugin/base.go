// Package plugin provides what a plugin and its UI share at instantiation:
// metadata, host feature resolution and the mapped atom vocabulary.
package plugin

import (
	"fmt"
	"io"
	"os"

	"github.com/justyntemme/notes/pkg/atom"
	"github.com/justyntemme/notes/pkg/framework/debug"
	"github.com/justyntemme/notes/pkg/framework/urid"
)

// Base provides core functionality for plugin and UI instances
type Base struct {
	Info  Info
	Map   urid.Mapper
	Log   *debug.Logger
	URIDs *atom.URIDs
}

// stderr receives instantiation failures, which happen before any host log exists
var stderr io.Writer = os.Stderr

// NewBase resolves the host features every instance needs. urid:map is always
// required; further required feature URIs may be passed. A missing feature is
// reported on stderr and returned as ErrMissingFeature.
func NewBase(info Info, features Features, required ...string) (*Base, error) {
	b := &Base{Info: info}

	for _, uri := range append([]string{urid.MapURI}, required...) {
		if !features.Has(uri) {
			fmt.Fprintf(stderr, "%s: Host does not support %s\n", info.URI, uri)
			return nil, fmt.Errorf("%s: %w: %s", info.URI, ErrMissingFeature, uri)
		}
	}

	data, _ := features.Get(urid.MapURI)
	mapper, ok := data.(urid.Mapper)
	if !ok || mapper == nil {
		fmt.Fprintf(stderr, "%s: Host does not support %s\n", info.URI, urid.MapURI)
		return nil, fmt.Errorf("%s: %w: %s", info.URI, ErrMissingFeature, urid.MapURI)
	}
	b.Map = mapper

	b.Log = debug.Discard()
	if data, ok := features.Get(debug.LogFeatureURI); ok {
		if l, ok := data.(*debug.Logger); ok && l != nil {
			b.Log = l
		}
	}

	b.URIDs = atom.MapURIDs(mapper)

	return b, nil
}
