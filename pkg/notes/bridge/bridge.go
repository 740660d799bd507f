// Package bridge links a text property to a scratch file that an external
// editor works on. Changes travel through the file's modification time: the
// bridge stamps every write it makes and imports only newer content, while a
// content hash keeps values that came from the file from being written back.
package bridge

import (
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"io/fs"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"github.com/justyntemme/notes/pkg/framework/debug"
)

// ScratchSuffix is the suffix of the scratch file, so editors pick markdown mode
const ScratchSuffix = "md"

const (
	nameChars    = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	nameLength   = 6
	nameAttempts = 100
)

// Bridge owns one scratch file
type Bridge struct {
	log  *debug.Logger
	file *os.File
	path string

	hash    uint64
	modtime int64 // seconds, 0 until the first write
}

// CreateTemp creates a new file named XXXXXX.<suffix> in dir (os.TempDir if
// empty), opened read-write with mode 0600.
func CreateTemp(dir, suffix string) (*os.File, error) {
	if dir == "" {
		dir = os.TempDir()
	}

	name := make([]byte, nameLength)
	for range nameAttempts {
		for i := range name {
			name[i] = nameChars[rand.IntN(len(nameChars))]
		}

		path := filepath.Join(dir, string(name)+"."+suffix)
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create temp file: %w", err)
		}
		return f, nil
	}

	return nil, fmt.Errorf("create temp file in %s: %w", dir, fs.ErrExist)
}

// Create makes a scratch file in dir. A nil logger disables logging.
func Create(dir string, log *debug.Logger) (*Bridge, error) {
	if log == nil {
		log = debug.Discard()
	}

	f, err := CreateTemp(dir, ScratchSuffix)
	if err != nil {
		return nil, err
	}

	log.Info("scratch file: %s", f.Name())

	return &Bridge{
		log:  log,
		file: f,
		path: f.Name(),
	}, nil
}

// Path returns the scratch file path
func (b *Bridge) Path() string {
	return b.path
}

// Write replaces the file content with text unless it equals what the file
// is known to hold. It reports whether the file was rewritten.
func (b *Bridge) Write(text []byte) bool {
	hash := sum(text)
	if hash == b.hash {
		return false
	}

	st, err := os.Stat(b.path)
	if err != nil {
		b.log.Error("stat %s: %v", b.path, err)
		return false
	}
	if err := b.follow(st); err != nil {
		b.log.Error("reopen %s: %v", b.path, err)
		return false
	}

	if err := b.rewrite(text); err != nil {
		b.log.Error("write %s: %v", b.path, err)
		return false
	}

	now := time.Now().Truncate(time.Second)
	if err := os.Chtimes(b.path, time.Time{}, now); err != nil {
		b.log.Error("chtimes %s: %v", b.path, err)
		return false
	}

	b.hash = hash
	b.modtime = now.Unix()
	return true
}

func (b *Bridge) rewrite(text []byte) error {
	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if err := b.file.Truncate(0); err != nil {
		return err
	}
	if err := b.file.Sync(); err != nil {
		return err
	}
	if _, err := b.file.Write(text); err != nil {
		return err
	}
	return b.file.Sync()
}

// Poll imports the file content if it was modified after the last write.
// Nothing is imported before the bridge wrote the file once.
func (b *Bridge) Poll() ([]byte, bool) {
	st, err := os.Stat(b.path)
	if err != nil {
		b.log.Error("stat %s: %v", b.path, err)
		return nil, false
	}

	mtime := st.ModTime().Unix()
	if b.modtime == 0 || mtime <= b.modtime {
		return nil, false
	}

	if err := b.follow(st); err != nil {
		b.log.Error("reopen %s: %v", b.path, err)
		return nil, false
	}

	text, err := b.read()
	if err != nil {
		b.log.Error("read %s: %v", b.path, err)
		return nil, false
	}

	b.hash = sum(text)
	b.modtime = mtime
	return text, true
}

// follow reopens the path when an editor replaced the file instead of
// writing it in place
func (b *Bridge) follow(st fs.FileInfo) error {
	own, err := b.file.Stat()
	if err == nil && os.SameFile(own, st) {
		return nil
	}

	f, err := os.OpenFile(b.path, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	b.file.Close()
	b.file = f
	return nil
}

func (b *Bridge) read() ([]byte, error) {
	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	text, err := io.ReadAll(b.file)
	if err != nil {
		return nil, err
	}
	if text == nil {
		text = []byte{}
	}
	return text, nil
}

// Close removes the scratch file
func (b *Bridge) Close() error {
	rmErr := os.Remove(b.path)
	closeErr := b.file.Close()
	if rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
		return rmErr
	}
	return closeErr
}

func sum(text []byte) uint64 {
	h := fnv.New64a()
	h.Write(text)
	return h.Sum64()
}
