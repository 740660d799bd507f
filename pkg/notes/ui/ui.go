// Package ui implements the editor side of the notes plugin. It mirrors the
// plugin state, sends every local edit to the host as a patch:Set and links
// the text property to an external editor through a scratch file.
package ui

import (
	"encoding/binary"
	"fmt"

	"github.com/justyntemme/notes/pkg/atom"
	"github.com/justyntemme/notes/pkg/framework/clipboard"
	"github.com/justyntemme/notes/pkg/framework/plugin"
	"github.com/justyntemme/notes/pkg/framework/property"
	"github.com/justyntemme/notes/pkg/framework/spawn"
	"github.com/justyntemme/notes/pkg/framework/urid"
	"github.com/justyntemme/notes/pkg/notes"
	"github.com/justyntemme/notes/pkg/notes/bridge"
)

// UI extension URIs
const (
	RequestValueURI = "http://lv2plug.in/ns/extensions/ui#requestValue"
	ScaleFactorURI  = "http://lv2plug.in/ns/extensions/ui#scaleFactor"
)

// Port indices of the plugin
const (
	ControlPort uint32 = 0
	NotifyPort  uint32 = 1
)

// WriteFunc sends a message to a plugin port. data is only valid during the call.
type WriteFunc func(port uint32, protocol urid.URID, data []byte)

// RequestStatus is the answer of a host to a value request
type RequestStatus int

// Request statuses
const (
	RequestSuccess RequestStatus = iota
	RequestBusy
	RequestErrUnknown
	RequestErrUnsupported
)

// RequestValue is the host feature that asks the user for a property value,
// typically with a file dialog
type RequestValue interface {
	Request(key, typ urid.URID) RequestStatus
}

// Option configures a UI at instantiation
type Option func(u *UI)

// WithConfig sets the external programs and scratch directory
func WithConfig(cfg Config) Option {
	return func(u *UI) {
		u.cfg = cfg
	}
}

// WithClipboard sets the clipboard backend
func WithClipboard(c clipboard.Clipboard) Option {
	return func(u *UI) {
		u.clip = c
	}
}

// UI is one UI instance
type UI struct {
	*plugin.Base

	cfg   Config
	write WriteFunc
	clip  clipboard.Clipboard

	state notes.State
	stash notes.State
	store *property.Store[notes.State]
	forge *atom.Forge
	buf   []byte

	bridge       *bridge.Bridge
	requestText  RequestValue
	requestImage RequestValue
	opener       *spawn.Process

	text           urid.URID
	fontHeight     urid.URID
	image          urid.URID
	imageMinimized urid.URID
	textMinimized  urid.URID

	scale   float32
	metrics Metrics
	scratch [4]byte
	reinit  bool
	done    bool
}

// Instantiate creates a UI for pluginURI. The host must provide urid:map.
// Every property is requested from the plugin before Instantiate returns.
func Instantiate(pluginURI string, features plugin.Features, write WriteFunc, opts ...Option) (*UI, error) {
	if pluginURI != notes.URI {
		return nil, fmt.Errorf("unsupported plugin %s", pluginURI)
	}
	if write == nil {
		return nil, fmt.Errorf("%s: no write function", notes.UIURI)
	}

	base, err := plugin.NewBase(plugin.Info{URI: notes.UIURI, Name: notes.Info.Name}, features)
	if err != nil {
		return nil, err
	}

	u := &UI{
		Base:  base,
		cfg:   ConfigFromEnv(),
		write: write,
		forge: atom.NewForge(base.URIDs),
		buf:   make([]byte, notes.MaxTextSize+notes.MaxImageSize),
	}
	for _, opt := range opts {
		opt(u)
	}
	if u.clip == nil {
		u.clip = clipboard.New()
	}

	if data, ok := features.Get(RequestValueURI); ok {
		if rv, ok := data.(RequestValue); ok {
			u.requestText = rv
			u.requestImage = rv
		}
	}

	u.scale = 1
	scaleFactor := base.Map.Map(ScaleFactorURI)
	for _, opt := range features.Options() {
		if v, ok := opt.Value.(float32); ok && opt.Key == scaleFactor && v > 0 {
			u.scale = v
		}
	}

	u.store, err = property.NewStore(base.Map, base.URIDs, &u.state, &u.stash, notes.Definitions)
	if err != nil {
		return nil, err
	}

	u.text = base.Map.Map(notes.TextURI)
	u.fontHeight = base.Map.Map(notes.FontHeightURI)
	u.image = base.Map.Map(notes.ImageURI)
	u.imageMinimized = base.Map.Map(notes.ImageMinimizedURI)
	u.textMinimized = base.Map.Map(notes.TextMinimizedURI)

	if err := u.store.OnChange(notes.TextURI, u.onText); err != nil {
		return nil, err
	}
	if err := u.store.OnChange(notes.FontHeightURI, u.onFontHeight); err != nil {
		return nil, err
	}

	u.state.FontHeight = notes.DefaultFontHeight
	u.updateMetrics()

	u.bridge, err = bridge.Create(u.cfg.TempDir, u.Log)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", notes.UIURI, err)
	}
	// The empty scratch file is the baseline for detecting external edits
	u.bridge.Write(nil)
	u.reinit = false

	for _, key := range u.store.Keys() {
		u.sendGet(key)
	}

	return u, nil
}

// PortEvent handles a message from the plugin
func (u *UI) PortEvent(port uint32, protocol urid.URID, data []byte) {
	if protocol != u.URIDs.EventTransfer {
		return
	}

	msg, _, err := atom.Parse(data)
	if err != nil {
		return
	}
	u.store.Advance(nil, 0, msg)
}

// Idle imports external edits of the scratch file and reaps a finished
// opener. It reports whether the UI is done.
func (u *UI) Idle() bool {
	if u.done {
		return true
	}

	if text, changed := u.bridge.Poll(); changed {
		u.updateText(text)
	}

	if u.opener != nil && u.opener.Exited() {
		u.opener = nil
	}

	return u.done
}

// Cleanup stops the opener and removes the scratch file
func (u *UI) Cleanup() {
	if u.opener != nil {
		if err := u.opener.Kill(); err != nil {
			u.Log.Warn("%v", err)
		}
		u.opener = nil
	}

	if err := u.bridge.Close(); err != nil {
		u.Log.Error("close scratch file: %v", err)
	}
}

// ScratchPath returns the path of the scratch file the editor works on
func (u *UI) ScratchPath() string {
	return u.bridge.Path()
}

// EditorArgs returns the command line that edits the scratch file
func (u *UI) EditorArgs() []string {
	return append(u.cfg.editorArgs(), u.bridge.Path())
}

// NeedsReinit reports whether the scratch file was rewritten since the last
// call, in which case an embedded editor should be restarted on it.
func (u *UI) NeedsReinit() bool {
	reinit := u.reinit
	u.reinit = false
	return reinit
}

// Metrics returns the scaled layout sizes
func (u *UI) Metrics() Metrics {
	return u.metrics
}

// FontHeight returns the unscaled font height
func (u *UI) FontHeight() int32 {
	return u.state.FontHeight
}

// Text returns the note text
func (u *UI) Text() string {
	return u.state.TextString()
}

// Image returns the image path
func (u *UI) Image() string {
	return u.state.ImageString()
}

// TextMinimized reports whether the text area is collapsed
func (u *UI) TextMinimized() bool {
	return u.state.TextMinimized
}

// ImageMinimized reports whether the image area is collapsed
func (u *UI) ImageMinimized() bool {
	return u.state.ImageMinimized
}

// Done reports whether Close was called
func (u *UI) Done() bool {
	return u.done
}

func (u *UI) onText(_ int64, value atom.Atom) {
	if u.bridge.Write(value.Chars()) {
		u.reinit = true
	}
}

func (u *UI) onFontHeight(int64, atom.Atom) {
	u.updateMetrics()
}

func (u *UI) updateMetrics() {
	u.metrics = newMetrics(u.scale, u.state.FontHeight)
}

// updateText stores text locally and sends it to the plugin. Text that does
// not fit the property is ignored and the scratch file left as it is.
func (u *UI) updateText(text []byte) {
	if len(text) > notes.MaxTextSize-1 {
		u.Log.Warn("text of %d bytes exceeds %d, ignored", len(text), notes.MaxTextSize-1)
		return
	}
	u.store.Apply(0, u.text, atom.Atom{Type: u.URIDs.String, Body: text})
	u.sendSet(u.text)
}

// updateImage stores path locally and sends it to the plugin
func (u *UI) updateImage(path string) {
	if len(path) > notes.MaxImageSize-1 {
		u.Log.Error("image path too long: %s", path)
		return
	}
	u.store.Apply(0, u.image, atom.Atom{Type: u.URIDs.Path, Body: []byte(path)})
	u.sendSet(u.image)
}

func (u *UI) setInt(key urid.URID, v int32) {
	binary.LittleEndian.PutUint32(u.scratch[:], uint32(v))
	u.store.Apply(0, key, atom.Atom{Type: u.URIDs.Int, Body: u.scratch[:]})
	u.sendSet(key)
}

func (u *UI) setBool(key urid.URID, v bool) {
	var i uint32
	if v {
		i = 1
	}
	binary.LittleEndian.PutUint32(u.scratch[:], i)
	u.store.Apply(0, key, atom.Atom{Type: u.URIDs.Bool, Body: u.scratch[:]})
	u.sendSet(key)
}

func (u *UI) sendSet(key urid.URID) {
	u.forge.SetBuffer(u.buf)
	if !u.store.Emit(u.forge, 0, key) {
		u.Log.Error("failed to forge %s", u.store.Name(key))
		return
	}
	u.send()
}

func (u *UI) sendGet(key urid.URID) {
	u.forge.SetBuffer(u.buf)
	if !u.store.Request(u.forge, 0, key) {
		u.Log.Error("failed to forge request for %s", u.store.Name(key))
		return
	}
	u.send()
}

// send writes the forged event to the control port without its time stamp
func (u *UI) send() {
	u.write(ControlPort, u.URIDs.EventTransfer, u.forge.Bytes()[8:])
}
