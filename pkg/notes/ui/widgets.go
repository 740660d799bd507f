package ui

import (
	"os"

	"github.com/justyntemme/notes/pkg/framework/clipboard"
	"github.com/justyntemme/notes/pkg/framework/spawn"
	"github.com/justyntemme/notes/pkg/framework/urid"
	"github.com/justyntemme/notes/pkg/notes/bridge"
)

// SetFontHeight changes the font height. Non-positive heights are ignored.
func (u *UI) SetFontHeight(height int32) {
	if height <= 0 {
		u.Log.Warn("invalid font height %d", height)
		return
	}
	u.setInt(u.fontHeight, height)
}

// ToggleTextMinimized collapses or expands the text area
func (u *UI) ToggleTextMinimized() {
	u.setBool(u.textMinimized, !u.state.TextMinimized)
}

// ToggleImageMinimized collapses or expands the image area
func (u *UI) ToggleImageMinimized() {
	u.setBool(u.imageMinimized, !u.state.ImageMinimized)
}

// ClearImage removes the image
func (u *UI) ClearImage() {
	if !ImageValid(u.Image()) {
		return
	}
	u.updateImage("")
}

// CopyImage puts the image file on the clipboard
func (u *UI) CopyImage() {
	path := u.Image()
	if !ImageValid(path) {
		return
	}

	mime, ok := MIMEType(path)
	if !ok {
		u.Log.Error("image type not supported: %s", path)
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		u.Log.Error("copy image: %v", err)
		return
	}

	u.Log.Info("copying image as '%s'", mime)
	if err := u.clip.Write(mime, data); err != nil {
		u.Log.Error("copy image as %s: %v", mime, err)
	}
}

// PasteImage saves an image from the clipboard to a new temporary file and
// makes it the image
func (u *UI) PasteImage() {
	data, mime, err := u.clip.Read(ImageMIMETypes...)
	if err != nil || len(data) == 0 {
		u.Log.Error("failed to paste image: %v", err)
		return
	}

	suffix, ok := MIMESuffix(mime)
	if !ok {
		u.Log.Error("failed to paste image: %s", mime)
		return
	}

	f, err := bridge.CreateTemp(u.cfg.TempDir, suffix)
	if err != nil {
		u.Log.Error("paste image: %v", err)
		return
	}

	_, err = f.Write(data)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		u.Log.Error("paste image: %v", err)
		os.Remove(f.Name())
		return
	}

	u.updateImage(f.Name())
	u.Log.Info("paste saved as %s", f.Name())
}

// LoadImage asks the host to pick an image file
func (u *UI) LoadImage() {
	u.requestImage = u.request(u.requestImage, u.image, u.URIDs.Path)
}

// OpenImage opens the image with the desktop default application
func (u *UI) OpenImage() {
	if path := u.Image(); ImageValid(path) {
		u.openExternally(path)
	}
}

// ClearText empties the note
func (u *UI) ClearText() {
	u.updateText(nil)
}

// CopyText puts the note on the clipboard
func (u *UI) CopyText() {
	if err := u.clip.Write(clipboard.MIMEText, []byte(u.Text())); err != nil {
		u.Log.Error("copy text: %v", err)
	}
}

// PasteText replaces the note with the clipboard text
func (u *UI) PasteText() {
	data, _, err := u.clip.Read(clipboard.MIMEText)
	if err != nil || len(data) == 0 {
		u.Log.Error("failed to paste text: %v", err)
		return
	}
	u.updateText(data)
}

// LoadText asks the host to pick a text file
func (u *UI) LoadText() {
	u.requestText = u.request(u.requestText, u.text, u.URIDs.String)
}

// OpenText opens the scratch file with the desktop default application
func (u *UI) OpenText() {
	u.openExternally(u.bridge.Path())
}

// CanLoadImage reports whether the host can pick an image file
func (u *UI) CanLoadImage() bool {
	return u.requestImage != nil
}

// CanLoadText reports whether the host can pick a text file
func (u *UI) CanLoadText() bool {
	return u.requestText != nil
}

// Close ends the UI; the next Idle reports done
func (u *UI) Close() {
	u.done = true
}

// request asks rv for a value and returns nil once the host said it never will
func (u *UI) request(rv RequestValue, key, typ urid.URID) RequestValue {
	if rv == nil {
		return nil
	}

	status := rv.Request(key, typ)
	if status == RequestSuccess || status == RequestBusy {
		return rv
	}

	u.Log.Error("requestValue for %s failed: %d", u.store.Name(key), status)
	if status == RequestErrUnsupported {
		return nil
	}
	return rv
}

// openExternally replaces a running opener with one for path
func (u *UI) openExternally(path string) {
	if u.opener != nil {
		if err := u.opener.Kill(); err != nil {
			u.Log.Warn("%v", err)
		}
		u.opener = nil
	}

	p, err := spawn.Start([]string{u.cfg.opener(), path})
	if err != nil {
		u.Log.Error("failed to spawn %s '%s': %v", u.cfg.opener(), path, err)
		return
	}
	u.opener = p
}
