// Package clipboard gives plugin UIs access to the desktop clipboard by MIME
// type. New picks the best backend available on the running system.
package clipboard

import (
	"errors"
	"sync"

	cmdclip "github.com/atotto/clipboard"
	sysclip "golang.design/x/clipboard"
)

// Common MIME types
const (
	MIMEText = "text/plain;charset=utf-8"
	MIMEPNG  = "image/png"
)

var (
	// ErrUnsupported is returned when a backend cannot handle a MIME type
	ErrUnsupported = errors.New("clipboard: unsupported format")
	// ErrEmpty is returned when the clipboard holds none of the requested types
	ErrEmpty = errors.New("clipboard: empty")
)

// Clipboard reads and writes typed clipboard content
type Clipboard interface {
	// Read returns the first of the given MIME types the clipboard holds
	Read(mimes ...string) (data []byte, mime string, err error)
	// Write replaces the clipboard content
	Write(mime string, data []byte) error
}

var (
	sysOnce sync.Once
	sysErr  error
)

// New returns the system clipboard when a display is available, the
// command-line clipboard when a helper tool is installed, and a process-local
// clipboard otherwise.
func New() Clipboard {
	if c, err := NewSystem(); err == nil {
		return c
	}
	if c, err := NewCommand(); err == nil {
		return c
	}
	return NewMemory()
}

// System is the native clipboard. It handles text and PNG images.
type System struct{}

// NewSystem initializes the native clipboard
func NewSystem() (*System, error) {
	sysOnce.Do(func() {
		sysErr = sysclip.Init()
	})
	if sysErr != nil {
		return nil, sysErr
	}
	return &System{}, nil
}

func systemFormat(mime string) (sysclip.Format, bool) {
	switch mime {
	case MIMEText:
		return sysclip.FmtText, true
	case MIMEPNG:
		return sysclip.FmtImage, true
	}
	return 0, false
}

// Read implements Clipboard
func (s *System) Read(mimes ...string) ([]byte, string, error) {
	supported := false
	for _, mime := range mimes {
		format, ok := systemFormat(mime)
		if !ok {
			continue
		}
		supported = true
		if data := sysclip.Read(format); len(data) > 0 {
			return data, mime, nil
		}
	}
	if !supported {
		return nil, "", ErrUnsupported
	}
	return nil, "", ErrEmpty
}

// Write implements Clipboard
func (s *System) Write(mime string, data []byte) error {
	format, ok := systemFormat(mime)
	if !ok {
		return ErrUnsupported
	}
	sysclip.Write(format, data)
	return nil
}

// Command uses a clipboard helper tool (xclip, xsel, wl-copy, pbcopy).
// It handles text only.
type Command struct{}

// NewCommand checks that a helper tool is available
func NewCommand() (*Command, error) {
	if cmdclip.Unsupported {
		return nil, ErrUnsupported
	}
	return &Command{}, nil
}

// Read implements Clipboard
func (c *Command) Read(mimes ...string) ([]byte, string, error) {
	for _, mime := range mimes {
		if mime != MIMEText {
			continue
		}
		text, err := cmdclip.ReadAll()
		if err != nil {
			return nil, "", err
		}
		if text == "" {
			return nil, "", ErrEmpty
		}
		return []byte(text), mime, nil
	}
	return nil, "", ErrUnsupported
}

// Write implements Clipboard
func (c *Command) Write(mime string, data []byte) error {
	if mime != MIMEText {
		return ErrUnsupported
	}
	return cmdclip.WriteAll(string(data))
}

// Memory is a process-local clipboard holding one entry of any type
type Memory struct {
	mu   sync.Mutex
	mime string
	data []byte
}

// NewMemory returns an empty process-local clipboard
func NewMemory() *Memory {
	return &Memory{}
}

// Read implements Clipboard
func (m *Memory) Read(mimes ...string) ([]byte, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, mime := range mimes {
		if mime == m.mime && m.data != nil {
			data := make([]byte, len(m.data))
			copy(data, m.data)
			return data, mime, nil
		}
	}
	return nil, "", ErrEmpty
}

// Write implements Clipboard
func (m *Memory) Write(mime string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.mime = mime
	m.data = make([]byte, len(data))
	copy(m.data, data)
	return nil
}
