// Package host runs a notes plugin and its UI in one process. It provides the
// host features both need, carries messages between them and persists the
// plugin state as a session file.
package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/justyntemme/notes/pkg/atom"
	"github.com/justyntemme/notes/pkg/framework/clipboard"
	"github.com/justyntemme/notes/pkg/framework/debug"
	"github.com/justyntemme/notes/pkg/framework/plugin"
	"github.com/justyntemme/notes/pkg/framework/process"
	"github.com/justyntemme/notes/pkg/framework/state"
	"github.com/justyntemme/notes/pkg/framework/urid"
	"github.com/justyntemme/notes/pkg/notes"
	"github.com/justyntemme/notes/pkg/notes/dsp"
	"github.com/justyntemme/notes/pkg/notes/ui"
)

// DefaultRate is the default period of the processing cycle
const DefaultRate = 20 * time.Millisecond

// Options configures a Host
type Options struct {
	Logger    *debug.Logger
	Capacity  int  // size of each event buffer, process.DefaultCapacity when zero
	NoUI      bool // run the plugin without UI
	UIConfig  ui.Config
	Clipboard clipboard.Clipboard // nil picks the system clipboard
	Scale     float32             // UI scale factor, 0 lets the UI decide

	// Picker answers UI value requests with a file path. Without one the
	// host does not support value requests.
	Picker func(property string) (path string, err error)

	// OnReinit is called from Run whenever the UI rewrote the scratch file
	OnReinit func()
}

// Listener observes the messages the plugin sends. event aliases host
// memory and is only valid during the call.
type Listener func(frames int64, event atom.Atom)

// Host owns one plugin instance and its optional UI
type Host struct {
	log   *debug.Logger
	table *urid.Table
	urids *atom.URIDs
	state *state.Manager

	plugin *dsp.Plugin
	ui     *ui.UI
	ctx    *process.Context
	forge  *atom.Forge
	buf    []byte
	opts   Options

	mu        sync.Mutex // guards queue, tasks and listeners
	queue     [][]byte
	tasks     []func(u *ui.UI)
	listeners map[int]Listener
	nextID    int
}

// New instantiates the plugin and, unless disabled, its UI
func New(opts Options) (*Host, error) {
	if opts.Logger == nil {
		opts.Logger = debug.Discard()
	}

	table := urid.NewTable()
	h := &Host{
		log:       opts.Logger,
		table:     table,
		urids:     atom.MapURIDs(table),
		state:     state.NewManager(table),
		buf:       make([]byte, notes.MaxTextSize+notes.MaxImageSize),
		opts:      opts,
		listeners: make(map[int]Listener),
	}
	h.forge = atom.NewForge(h.urids)
	h.ctx = process.NewContext(opts.Capacity, h.urids)

	features := plugin.Features{
		{URI: urid.MapURI, Data: table},
		{URI: debug.LogFeatureURI, Data: opts.Logger},
	}

	p, err := dsp.Instantiate(features)
	if err != nil {
		return nil, fmt.Errorf("instantiate plugin: %w", err)
	}
	h.plugin = p

	if opts.NoUI {
		return h, nil
	}

	uiFeatures := append(plugin.Features{}, features...)
	if opts.Scale > 0 {
		uiFeatures = append(uiFeatures, plugin.Feature{
			URI:  plugin.OptionsURI,
			Data: []plugin.Option{{Key: table.Map(ui.ScaleFactorURI), Value: opts.Scale}},
		})
	}
	if opts.Picker != nil {
		uiFeatures = append(uiFeatures, plugin.Feature{URI: ui.RequestValueURI, Data: ui.RequestValue(h)})
	}

	uiOpts := []ui.Option{ui.WithConfig(opts.UIConfig)}
	if opts.Clipboard != nil {
		uiOpts = append(uiOpts, ui.WithClipboard(opts.Clipboard))
	}

	u, err := ui.Instantiate(notes.URI, uiFeatures, h.write, uiOpts...)
	if err != nil {
		p.Cleanup()
		return nil, fmt.Errorf("instantiate ui: %w", err)
	}
	h.ui = u

	return h, nil
}

// Map returns the URID table shared by plugin and UI
func (h *Host) Map() *urid.Table {
	return h.table
}

// URIDs returns the mapped atom vocabulary
func (h *Host) URIDs() *atom.URIDs {
	return h.urids
}

// Plugin returns the plugin instance
func (h *Host) Plugin() *dsp.Plugin {
	return h.plugin
}

// UI returns the UI instance, nil when running without UI. Its methods must
// only be called from the goroutine running Cycle and Idle; use Do otherwise.
func (h *Host) UI() *ui.UI {
	return h.ui
}

// Submit queues a serialized atom for the plugin's control port. It is safe
// for concurrent use.
func (h *Host) Submit(msg []byte) error {
	if _, _, err := atom.Parse(msg); err != nil {
		return err
	}

	h.mu.Lock()
	h.queue = append(h.queue, append([]byte(nil), msg...))
	h.mu.Unlock()
	return nil
}

// Subscribe registers a listener for plugin output. It returns a function
// that removes it.
func (h *Host) Subscribe(l Listener) (cancel func()) {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.listeners[id] = l
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		delete(h.listeners, id)
		h.mu.Unlock()
	}
}

// Do schedules fn to run with the UI on the next Idle
func (h *Host) Do(fn func(u *ui.UI)) {
	h.mu.Lock()
	h.tasks = append(h.tasks, fn)
	h.mu.Unlock()
}

func (h *Host) write(port uint32, protocol urid.URID, data []byte) {
	if port != ui.ControlPort || protocol != h.urids.EventTransfer {
		h.log.Warn("ui wrote to port %d with protocol %s", port, h.table.Unmap(protocol))
		return
	}
	if err := h.Submit(data); err != nil {
		h.log.Warn("ui sent malformed message: %v", err)
	}
}

// Cycle runs the plugin once over the queued messages and delivers its
// output to the UI and every listener
func (h *Host) Cycle() {
	h.mu.Lock()
	pending := h.queue
	h.queue = nil
	h.mu.Unlock()

	h.ctx.ClearControl()
	for i, msg := range pending {
		a, _, _ := atom.Parse(msg)
		if err := h.ctx.AddControlEvent(0, a); err != nil {
			if !h.ctx.HasControlEvents() {
				h.log.Warn("dropping control message of %d bytes: %v", len(msg), err)
				continue
			}
			h.log.Debug("control buffer full, %d messages deferred", len(pending)-i)
			h.mu.Lock()
			h.queue = append(pending[i:], h.queue...)
			h.mu.Unlock()
			break
		}
	}

	h.plugin.Run(h.ctx)

	h.mu.Lock()
	listeners := make([]Listener, 0, len(h.listeners))
	for _, l := range h.listeners {
		listeners = append(listeners, l)
	}
	h.mu.Unlock()

	err := h.ctx.ForEachNotify(func(frames int64, event atom.Atom) bool {
		if h.ui != nil {
			h.forge.SetBuffer(h.buf)
			h.forge.Raw(event.Type, event.Body)
			if h.forge.Err() == nil {
				h.ui.PortEvent(ui.NotifyPort, h.urids.EventTransfer, h.forge.Bytes())
			}
		}
		for _, l := range listeners {
			l(frames, event)
		}
		return true
	})
	if err != nil {
		h.log.Error("plugin output: %v", err)
	}
}

// Idle runs scheduled UI tasks and the UI idle callback. It reports whether
// the UI is done; a host without UI is never done.
func (h *Host) Idle() bool {
	if h.ui == nil {
		return false
	}

	h.mu.Lock()
	tasks := h.tasks
	h.tasks = nil
	h.mu.Unlock()

	for _, task := range tasks {
		task(h.ui)
	}

	done := h.ui.Idle()
	if h.ui.NeedsReinit() && h.opts.OnReinit != nil {
		h.opts.OnReinit()
	}
	return done
}

// Run cycles the plugin and idles the UI every rate until ctx is canceled
// or the UI is done
func (h *Host) Run(ctx context.Context, rate time.Duration) error {
	if rate <= 0 {
		rate = DefaultRate
	}

	ticker := time.NewTicker(rate)
	defer ticker.Stop()

	for {
		h.Cycle()
		if h.Idle() {
			h.Cycle()
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Request implements ui.RequestValue through the configured Picker. Text
// properties receive the content of the picked file, paths the path itself.
func (h *Host) Request(key, typ urid.URID) ui.RequestStatus {
	if h.opts.Picker == nil {
		return ui.RequestErrUnsupported
	}

	property := h.table.Unmap(key)
	path, err := h.opts.Picker(property)
	if err != nil {
		h.log.Error("pick value for %s: %v", property, err)
		return ui.RequestErrUnknown
	}

	h.forge.SetBuffer(h.buf)
	frame := h.forge.SetHead(0, key)
	switch typ {
	case h.urids.String:
		text, err := os.ReadFile(path)
		if err != nil {
			h.log.Error("load %s: %v", path, err)
			return ui.RequestErrUnknown
		}
		h.forge.Chars(typ, text)
	case h.urids.Path:
		h.forge.Path(path)
	default:
		return ui.RequestErrUnsupported
	}
	h.forge.Pop(frame)

	if err := h.forge.Err(); err != nil {
		h.log.Error("value for %s too large", property)
		return ui.RequestErrUnknown
	}

	msg := append([]byte(nil), h.forge.Bytes()...)
	if err := h.Submit(msg); err != nil {
		return ui.RequestErrUnknown
	}
	h.Do(func(u *ui.UI) {
		u.PortEvent(ui.NotifyPort, h.urids.EventTransfer, msg)
	})
	return ui.RequestSuccess
}

// SaveSession writes the plugin state. It must not run concurrently with Cycle.
func (h *Host) SaveSession(w io.Writer) error {
	return h.state.Save(w, h.plugin)
}

// LoadSession restores the plugin state; the next Cycle pushes it to the UI
func (h *Host) LoadSession(r io.Reader) error {
	return h.state.Load(r, h.plugin)
}

// SaveSessionFile atomically replaces the session file at path
func (h *Host) SaveSessionFile(path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := h.SaveSession(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// LoadSessionFile restores the session file at path. A missing file is not
// an error.
func (h *Host) LoadSessionFile(path string) error {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	return h.LoadSession(f)
}

// Close releases the UI and the plugin
func (h *Host) Close() {
	if h.ui != nil {
		h.ui.Cleanup()
		h.ui = nil
	}
	h.plugin.Cleanup()
}
