package ui

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justyntemme/notes/pkg/atom"
	"github.com/justyntemme/notes/pkg/framework/clipboard"
	"github.com/justyntemme/notes/pkg/framework/debug"
	"github.com/justyntemme/notes/pkg/framework/plugin"
	"github.com/justyntemme/notes/pkg/framework/urid"
	"github.com/justyntemme/notes/pkg/notes"
	"github.com/justyntemme/notes/pkg/notes/notestest"
)

var keyOrder = []string{
	notes.TextURI,
	notes.FontHeightURI,
	notes.ImageURI,
	notes.ImageMinimizedURI,
	notes.TextMinimizedURI,
}

type fakeRequest struct {
	status RequestStatus
	calls  []urid.URID
}

func (r *fakeRequest) Request(key, _ urid.URID) RequestStatus {
	r.calls = append(r.calls, key)
	return r.status
}

type fixture struct {
	b    *notestest.Builder
	ui   *UI
	clip *clipboard.Memory
	dir  string
	log  bytes.Buffer
	sent []notestest.Message
}

type fixtureOption func(fx *fixture, features *plugin.Features, cfg *Config)

func withScale(scale float32) fixtureOption {
	return func(fx *fixture, features *plugin.Features, _ *Config) {
		*features = append(*features, plugin.Feature{
			URI:  plugin.OptionsURI,
			Data: []plugin.Option{{Key: fx.b.Map.Map(ScaleFactorURI), Value: scale}},
		})
	}
}

func withRequest(rv RequestValue) fixtureOption {
	return func(_ *fixture, features *plugin.Features, _ *Config) {
		*features = append(*features, plugin.Feature{URI: RequestValueURI, Data: rv})
	}
}

func withEditor(editor string) fixtureOption {
	return func(_ *fixture, _ *plugin.Features, cfg *Config) {
		cfg.Editor = editor
	}
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	fx := &fixture{
		b:    notestest.NewBuilder(),
		clip: clipboard.NewMemory(),
		dir:  t.TempDir(),
	}

	logger := debug.New(&fx.log, "ui", debug.FlagLevel)
	features := plugin.Features{
		{URI: urid.MapURI, Data: fx.b.Map},
		{URI: debug.LogFeatureURI, Data: logger},
	}
	cfg := Config{Opener: "true", TempDir: fx.dir}
	for _, opt := range opts {
		opt(fx, &features, &cfg)
	}

	u, err := Instantiate(notes.URI, features, fx.write, WithConfig(cfg), WithClipboard(fx.clip))
	require.NoError(t, err)
	t.Cleanup(u.Cleanup)

	fx.ui = u
	return fx
}

func (fx *fixture) write(port uint32, protocol urid.URID, data []byte) {
	if port != ControlPort || protocol != fx.b.URIDs.EventTransfer {
		panic("message on unexpected port")
	}
	a, _, err := atom.Parse(bytes.Clone(data))
	if err != nil {
		panic(err)
	}
	m, ok := fx.b.Decode(0, a)
	if !ok {
		panic("undecodable message")
	}
	fx.sent = append(fx.sent, m)
}

// take returns and forgets the messages sent so far
func (fx *fixture) take() []notestest.Message {
	sent := fx.sent
	fx.sent = nil
	return sent
}

// deliver hands a message from the plugin to the UI
func (fx *fixture) deliver(a atom.Atom) {
	buf := make([]byte, atom.Pad(a.TotalSize()))
	f := atom.NewForge(fx.b.URIDs)
	f.SetBuffer(buf)
	f.Raw(a.Type, a.Body)
	fx.ui.PortEvent(NotifyPort, fx.b.URIDs.EventTransfer, f.Bytes())
}

// edit simulates an external editor saving the scratch file
func (fx *fixture) edit(t *testing.T, content string) {
	t.Helper()
	path := fx.ui.ScratchPath()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	later := time.Now().Add(10 * time.Second)
	require.NoError(t, os.Chtimes(path, later, later))
}

func TestInstantiatePullsEveryProperty(t *testing.T) {
	fx := newFixture(t)

	sent := fx.take()
	require.Len(t, sent, 5)
	assert.Equal(t, keyOrder, notestest.Properties(sent))
	for _, m := range sent {
		assert.Equal(t, "get", m.Kind)
	}

	assert.Equal(t, int32(notes.DefaultFontHeight), fx.ui.FontHeight())
	assert.Equal(t, fx.dir, filepath.Dir(fx.ui.ScratchPath()))
	assert.False(t, fx.ui.NeedsReinit())
}

func TestInstantiateErrors(t *testing.T) {
	b := notestest.NewBuilder()
	features := plugin.Features{{URI: urid.MapURI, Data: b.Map}}
	write := func(uint32, urid.URID, []byte) {}
	clip := WithClipboard(clipboard.NewMemory())
	cfg := WithConfig(Config{TempDir: t.TempDir()})

	_, err := Instantiate(notes.URI, plugin.Features{}, write, cfg, clip)
	assert.ErrorIs(t, err, plugin.ErrMissingFeature)

	_, err = Instantiate("urn:other", features, write, cfg, clip)
	assert.Error(t, err)

	_, err = Instantiate(notes.URI, features, nil, cfg, clip)
	assert.Error(t, err)

	missing := WithConfig(Config{TempDir: filepath.Join(t.TempDir(), "missing")})
	_, err = Instantiate(notes.URI, features, write, missing, clip)
	assert.Error(t, err)
}

func TestHostStateConverges(t *testing.T) {
	fx := newFixture(t)
	fx.take()

	fx.deliver(fx.b.SetString(notes.TextURI, ""))
	fx.deliver(fx.b.SetInt(notes.FontHeightURI, 16))
	fx.deliver(fx.b.SetPath(notes.ImageURI, ""))
	fx.deliver(fx.b.SetBool(notes.ImageMinimizedURI, false))
	fx.deliver(fx.b.SetBool(notes.TextMinimizedURI, false))

	assert.Empty(t, fx.take(), "values from the plugin are not echoed")
	assert.Equal(t, "", fx.ui.Text())
	assert.Equal(t, int32(16), fx.ui.FontHeight())
	assert.False(t, fx.ui.Idle())
	assert.Empty(t, fx.take())
}

func TestPortEventText(t *testing.T) {
	fx := newFixture(t)
	fx.take()

	fx.deliver(fx.b.SetString(notes.TextURI, "hello"))

	assert.Equal(t, "hello", fx.ui.Text())
	content, err := os.ReadFile(fx.ui.ScratchPath())
	require.NoError(t, err)
	assert.Equal(t, "hello", string(content))
	assert.True(t, fx.ui.NeedsReinit())
	assert.False(t, fx.ui.NeedsReinit())

	fx.ui.Idle()
	assert.Empty(t, fx.take(), "own write is not imported")
}

func TestPortEventIgnoresOtherProtocols(t *testing.T) {
	fx := newFixture(t)

	a := fx.b.SetInt(notes.FontHeightURI, 20)
	buf := make([]byte, atom.Pad(a.TotalSize()))
	f := atom.NewForge(fx.b.URIDs)
	f.SetBuffer(buf)
	f.Raw(a.Type, a.Body)

	fx.ui.PortEvent(NotifyPort, fx.b.URIDs.Int, f.Bytes())
	assert.Equal(t, int32(notes.DefaultFontHeight), fx.ui.FontHeight())

	fx.ui.PortEvent(NotifyPort, fx.b.URIDs.EventTransfer, []byte{1, 2})
	assert.Equal(t, int32(notes.DefaultFontHeight), fx.ui.FontHeight())
}

func TestSetFontHeight(t *testing.T) {
	fx := newFixture(t, withScale(2))
	fx.take()

	fx.ui.SetFontHeight(30)

	sent := fx.take()
	require.Len(t, sent, 1)
	assert.Equal(t, "set", sent[0].Kind)
	assert.Equal(t, notes.FontHeightURI, sent[0].Property)
	v, ok := sent[0].Value.Int32()
	require.True(t, ok)
	assert.Equal(t, int32(30), v)

	m := fx.ui.Metrics()
	assert.Equal(t, int32(30), fx.ui.FontHeight())
	assert.Equal(t, float32(60), m.FontHeight)
	assert.Equal(t, float32(64), m.HeaderHeight)
	assert.Equal(t, float32(64), m.FooterHeight)
	assert.Equal(t, float32(40), m.TipHeight)

	fx.ui.SetFontHeight(0)
	assert.Empty(t, fx.take())
	assert.Equal(t, int32(30), fx.ui.FontHeight())
}

func TestScaleFallback(t *testing.T) {
	fx := newFixture(t, withScale(0))

	m := fx.ui.Metrics()
	assert.Equal(t, float32(1), m.Scale)
	assert.Equal(t, float32(notes.DefaultFontHeight), m.FontHeight)
}

func TestFontHeightFromPluginUpdatesMetrics(t *testing.T) {
	fx := newFixture(t, withScale(1.5))

	fx.deliver(fx.b.SetInt(notes.FontHeightURI, 20))
	assert.Equal(t, float32(30), fx.ui.Metrics().FontHeight)
}

func TestToggles(t *testing.T) {
	fx := newFixture(t)
	fx.take()

	fx.ui.ToggleTextMinimized()
	fx.ui.ToggleImageMinimized()
	fx.ui.ToggleImageMinimized()

	sent := fx.take()
	require.Len(t, sent, 3)
	assert.Equal(t, []string{notes.TextMinimizedURI, notes.ImageMinimizedURI, notes.ImageMinimizedURI},
		notestest.Properties(sent))

	v, _ := sent[1].Value.Bool()
	assert.True(t, v)
	v, _ = sent[2].Value.Bool()
	assert.False(t, v)

	assert.True(t, fx.ui.TextMinimized())
	assert.False(t, fx.ui.ImageMinimized())
}

func TestIdleImportsExternalEdit(t *testing.T) {
	fx := newFixture(t)
	fx.take()

	fx.edit(t, "edited outside")
	assert.False(t, fx.ui.Idle())

	sent := fx.take()
	require.Len(t, sent, 1)
	assert.Equal(t, notes.TextURI, sent[0].Property)
	assert.Equal(t, "edited outside", string(sent[0].Value.Chars()))
	assert.Equal(t, "edited outside", fx.ui.Text())
	assert.False(t, fx.ui.NeedsReinit(), "imported text is not written back")

	fx.ui.Idle()
	assert.Empty(t, fx.take())
}

func TestIdleImportsEmptyFile(t *testing.T) {
	fx := newFixture(t)
	fx.deliver(fx.b.SetString(notes.TextURI, "something"))
	fx.take()

	fx.edit(t, "")
	fx.ui.Idle()

	sent := fx.take()
	require.Len(t, sent, 1)
	assert.Empty(t, sent[0].Value.Chars())
	assert.Equal(t, "", fx.ui.Text())
}

func TestIdleIgnoresOversizedText(t *testing.T) {
	fx := newFixture(t)
	fx.deliver(fx.b.SetString(notes.TextURI, "kept"))
	fx.take()
	require.True(t, fx.ui.NeedsReinit())

	big := "a" + strings.Repeat("€", notes.MaxTextSize/3+10)
	fx.edit(t, big)
	fx.ui.Idle()

	assert.Empty(t, fx.take())
	assert.Equal(t, "kept", fx.ui.Text())
	assert.False(t, fx.ui.NeedsReinit())
	assert.Contains(t, fx.log.String(), "[WARN]")

	content, err := os.ReadFile(fx.ui.ScratchPath())
	require.NoError(t, err)
	assert.Equal(t, big, string(content))
}

func TestTextClipboard(t *testing.T) {
	fx := newFixture(t)
	fx.deliver(fx.b.SetString(notes.TextURI, "copy me"))
	fx.take()

	fx.ui.CopyText()
	data, mime, err := fx.clip.Read(clipboard.MIMEText)
	require.NoError(t, err)
	assert.Equal(t, clipboard.MIMEText, mime)
	assert.Equal(t, "copy me", string(data))

	require.NoError(t, fx.clip.Write(clipboard.MIMEText, []byte("pasted")))
	fx.ui.PasteText()
	assert.Equal(t, "pasted", fx.ui.Text())

	fx.ui.ClearText()
	assert.Equal(t, "", fx.ui.Text())

	sent := fx.take()
	require.Len(t, sent, 2)
	assert.Equal(t, "pasted", string(sent[0].Value.Chars()))
	assert.Empty(t, sent[1].Value.Chars())

	content, err := os.ReadFile(fx.ui.ScratchPath())
	require.NoError(t, err)
	assert.Empty(t, content)
}

func TestPasteTextFromEmptyClipboard(t *testing.T) {
	fx := newFixture(t)
	fx.take()

	fx.ui.PasteText()
	assert.Empty(t, fx.take())
	assert.Contains(t, fx.log.String(), "failed to paste text")
}

func TestImageClipboard(t *testing.T) {
	fx := newFixture(t)
	fx.take()

	png := []byte("\x89PNG\r\n\x1a\nfake")
	require.NoError(t, fx.clip.Write("image/png", png))

	fx.ui.PasteImage()

	path := fx.ui.Image()
	assert.Equal(t, fx.dir, filepath.Dir(path))
	assert.Regexp(t, `^[A-Za-z0-9]{6}\.png$`, filepath.Base(path))
	assert.NotEqual(t, fx.ui.ScratchPath(), path)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, png, content)

	sent := fx.take()
	require.Len(t, sent, 1)
	assert.Equal(t, notes.ImageURI, sent[0].Property)
	assert.Equal(t, fx.b.URIDs.Path, sent[0].Value.Type)
	assert.Equal(t, path, string(sent[0].Value.Chars()))

	require.NoError(t, fx.clip.Write(clipboard.MIMEText, []byte("replaced")))
	fx.ui.CopyImage()
	data, mime, err := fx.clip.Read("image/png")
	require.NoError(t, err)
	assert.Equal(t, "image/png", mime)
	assert.Equal(t, png, data)

	fx.ui.ClearImage()
	assert.Equal(t, "", fx.ui.Image())
	sent = fx.take()
	require.Len(t, sent, 1)
	assert.Empty(t, sent[0].Value.Chars())
}

func TestImageActionsNeedValidImage(t *testing.T) {
	fx := newFixture(t)
	fx.deliver(fx.b.SetPath(notes.ImageURI, "/bundle/notes.ttl"))
	fx.take()

	fx.ui.ClearImage()
	fx.ui.CopyImage()
	fx.ui.OpenImage()

	assert.Empty(t, fx.take())
	assert.Equal(t, "/bundle/notes.ttl", fx.ui.Image())
	_, _, err := fx.clip.Read(ImageMIMETypes...)
	assert.ErrorIs(t, err, clipboard.ErrEmpty)
	assert.Nil(t, fx.ui.opener)
}

func TestCopyImageUnsupportedType(t *testing.T) {
	fx := newFixture(t)
	path := filepath.Join(fx.dir, "picture.webp")
	require.NoError(t, os.WriteFile(path, []byte("webp"), 0o600))
	fx.deliver(fx.b.SetPath(notes.ImageURI, path))

	fx.ui.CopyImage()

	_, _, err := fx.clip.Read("image/webp")
	assert.ErrorIs(t, err, clipboard.ErrEmpty)
	assert.Contains(t, fx.log.String(), "image type not supported")
}

func TestPasteImageWithoutImage(t *testing.T) {
	fx := newFixture(t)
	fx.take()
	require.NoError(t, fx.clip.Write(clipboard.MIMEText, []byte("not an image")))

	fx.ui.PasteImage()

	assert.Empty(t, fx.take())
	assert.Equal(t, "", fx.ui.Image())
	assert.Contains(t, fx.log.String(), "failed to paste image")
}

func TestLoadRequests(t *testing.T) {
	tests := []struct {
		name    string
		status  RequestStatus
		calls   int
		enabled bool
	}{
		{"success", RequestSuccess, 2, true},
		{"busy", RequestBusy, 2, true},
		{"failure", RequestErrUnknown, 2, true},
		{"unsupported", RequestErrUnsupported, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rv := &fakeRequest{status: tt.status}
			fx := newFixture(t, withRequest(rv))
			require.True(t, fx.ui.CanLoadText())

			fx.ui.LoadText()
			fx.ui.LoadText()

			assert.Len(t, rv.calls, tt.calls)
			assert.Equal(t, fx.b.Map.Map(notes.TextURI), rv.calls[0])
			assert.Equal(t, tt.enabled, fx.ui.CanLoadText())
			assert.True(t, fx.ui.CanLoadImage(), "image requests are disabled separately")
		})
	}
}

func TestLoadWithoutFeature(t *testing.T) {
	fx := newFixture(t)

	assert.False(t, fx.ui.CanLoadText())
	assert.False(t, fx.ui.CanLoadImage())
	fx.ui.LoadText()
	fx.ui.LoadImage()
}

func TestOpenText(t *testing.T) {
	fx := newFixture(t)

	fx.ui.OpenText()
	require.NotNil(t, fx.ui.opener)

	opener := fx.ui.opener
	select {
	case <-opener.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("opener did not exit")
	}

	fx.ui.Idle()
	assert.Nil(t, fx.ui.opener)
}

func TestOpenFailureIsLogged(t *testing.T) {
	fx := newFixture(t)
	fx.ui.cfg.Opener = filepath.Join(fx.dir, "no-such-opener")

	fx.ui.OpenText()

	assert.Nil(t, fx.ui.opener)
	assert.Contains(t, fx.log.String(), "failed to spawn")
}

func TestClose(t *testing.T) {
	fx := newFixture(t)

	assert.False(t, fx.ui.Idle())
	fx.ui.Close()
	assert.True(t, fx.ui.Done())
	assert.True(t, fx.ui.Idle())
}

func TestEditorArgs(t *testing.T) {
	fx := newFixture(t, withEditor("nano  -w"))
	assert.Equal(t, []string{"nano", "-w", fx.ui.ScratchPath()}, fx.ui.EditorArgs())

	fx = newFixture(t)
	assert.Equal(t, []string{DefaultEditor, fx.ui.ScratchPath()}, fx.ui.EditorArgs())
}

func TestCleanupRemovesScratchFile(t *testing.T) {
	b := notestest.NewBuilder()
	u, err := Instantiate(notes.URI, plugin.Features{{URI: urid.MapURI, Data: b.Map}},
		func(uint32, urid.URID, []byte) {},
		WithConfig(Config{TempDir: t.TempDir()}), WithClipboard(clipboard.NewMemory()))
	require.NoError(t, err)

	path := u.ScratchPath()
	_, err = os.Stat(path)
	require.NoError(t, err)

	u.Cleanup()
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("EDITOR", "emacs -nw")
	t.Setenv("NOTES_OPENER", "open")
	t.Setenv("TMPDIR", "/var/tmp")

	cfg := ConfigFromEnv()
	assert.Equal(t, Config{Editor: "emacs -nw", Opener: "open", TempDir: "/var/tmp"}, cfg)
	assert.Equal(t, []string{"emacs", "-nw"}, cfg.editorArgs())
	assert.Equal(t, "open", cfg.opener())

	assert.Equal(t, DefaultOpener, Config{}.opener())
}
