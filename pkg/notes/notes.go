// Package notes defines the property table shared by the notes plugin and its UI.
package notes

import (
	"github.com/justyntemme/notes/pkg/atom"
	"github.com/justyntemme/notes/pkg/framework/plugin"
	"github.com/justyntemme/notes/pkg/framework/property"
)

// Plugin and property URIs
const (
	URI   = "http://open-music-kontrollers.ch/lv2/notes"
	UIURI = URI + "#ui"

	TextURI           = URI + "#text"
	FontHeightURI     = URI + "#fontHeight"
	ImageURI          = URI + "#image"
	ImageMinimizedURI = URI + "#imageMinimized"
	TextMinimizedURI  = URI + "#textMinimized"
)

// Storage limits, including the terminating NUL
const (
	MaxTextSize  = 0x10000
	MaxImageSize = 4096
)

// DefaultFontHeight is the font height a fresh UI starts with
const DefaultFontHeight = 16

// Info describes the plugin
var Info = plugin.Info{
	URI:     URI,
	Name:    "Notes",
	Version: "0.1.0",
	Vendor:  "Open Music Kontrollers",
}

// State is the synchronized property record
type State struct {
	FontHeight     int32
	ImageMinimized bool
	TextMinimized  bool
	Image          [MaxImageSize]byte
	Text           [MaxTextSize]byte
}

// Definitions lists the properties in key order
var Definitions = []property.Definition[State]{
	{
		Property: TextURI,
		Type:     atom.StringURI,
		MaxSize:  MaxTextSize,
		Field:    func(s *State) property.Field { return property.Field{Chars: s.Text[:]} },
	},
	{
		Property: FontHeightURI,
		Type:     atom.IntURI,
		Field:    func(s *State) property.Field { return property.Field{Int: &s.FontHeight} },
	},
	{
		Property: ImageURI,
		Type:     atom.PathURI,
		MaxSize:  MaxImageSize,
		Field:    func(s *State) property.Field { return property.Field{Chars: s.Image[:]} },
	},
	{
		Property: ImageMinimizedURI,
		Type:     atom.BoolURI,
		Field:    func(s *State) property.Field { return property.Field{Bool: &s.ImageMinimized} },
	},
	{
		Property: TextMinimizedURI,
		Type:     atom.BoolURI,
		Field:    func(s *State) property.Field { return property.Field{Bool: &s.TextMinimized} },
	},
}

// TextString returns the text up to its terminating NUL
func (s *State) TextString() string {
	return string(property.CString(s.Text[:]))
}

// ImageString returns the image path up to its terminating NUL
func (s *State) ImageString() string {
	return string(property.CString(s.Image[:]))
}
