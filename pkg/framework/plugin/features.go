package plugin

import (
	"errors"

	"github.com/justyntemme/notes/pkg/framework/urid"
)

// OptionsURI is the feature URI for host options
const OptionsURI = "http://lv2plug.in/ns/ext/options#options"

// ErrMissingFeature is returned when a host lacks a required feature
var ErrMissingFeature = errors.New("host does not support required feature")

// Feature is one host capability handed to a plugin at instantiation
type Feature struct {
	URI  string
	Data any
}

// Features is the feature list a host passes to a plugin
type Features []Feature

// Get returns the data of the first feature with the given URI
func (fs Features) Get(uri string) (any, bool) {
	for _, f := range fs {
		if f.URI == uri {
			return f.Data, true
		}
	}
	return nil, false
}

// Has reports whether the feature is present
func (fs Features) Has(uri string) bool {
	_, ok := fs.Get(uri)
	return ok
}

// Option is a single host option, passed in the OptionsURI feature as []Option
type Option struct {
	Key   urid.URID
	Value any
}

// Options returns the host options, if any
func (fs Features) Options() []Option {
	data, ok := fs.Get(OptionsURI)
	if !ok {
		return nil
	}
	opts, _ := data.([]Option)
	return opts
}
