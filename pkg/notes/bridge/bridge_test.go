package bridge

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justyntemme/notes/pkg/framework/debug"
)

func newBridge(t *testing.T) (*Bridge, *bytes.Buffer) {
	t.Helper()

	var buf bytes.Buffer
	b, err := Create(t.TempDir(), debug.New(&buf, "bridge", debug.FlagLevel))
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b, &buf
}

// edit simulates an external editor saving content at a later time
func edit(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	later := time.Now().Add(10 * time.Second)
	require.NoError(t, os.Chtimes(path, later, later))
}

func TestCreate(t *testing.T) {
	b, _ := newBridge(t)

	assert.Regexp(t, regexp.MustCompile(`^[A-Za-z0-9]{6}\.md$`), filepath.Base(b.Path()))

	st, err := os.Stat(b.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), st.Mode().Perm())
}

func TestCreateTemp(t *testing.T) {
	dir := t.TempDir()

	f, err := CreateTemp(dir, "png")
	require.NoError(t, err)
	defer f.Close()
	assert.Regexp(t, regexp.MustCompile(`^[A-Za-z0-9]{6}\.png$`), filepath.Base(f.Name()))
	assert.Equal(t, dir, filepath.Dir(f.Name()))

	_, err = CreateTemp(filepath.Join(dir, "missing"), "png")
	assert.Error(t, err)
}

func TestWrite(t *testing.T) {
	b, _ := newBridge(t)

	before := time.Now().Truncate(time.Second)
	assert.True(t, b.Write([]byte("hello")))

	content, err := os.ReadFile(b.Path())
	require.NoError(t, err)
	assert.Equal(t, "hello", string(content))

	st, err := os.Stat(b.Path())
	require.NoError(t, err)
	assert.Zero(t, st.ModTime().Nanosecond())
	assert.False(t, st.ModTime().Before(before))

	assert.False(t, b.Write([]byte("hello")), "unchanged text is not rewritten")

	assert.True(t, b.Write([]byte("hi")))
	content, err = os.ReadFile(b.Path())
	require.NoError(t, err)
	assert.Equal(t, "hi", string(content), "previous content is truncated")
}

func TestOwnWriteIsNotImported(t *testing.T) {
	b, _ := newBridge(t)

	require.True(t, b.Write([]byte("hello")))

	_, changed := b.Poll()
	assert.False(t, changed)
}

func TestPollWithoutBaseline(t *testing.T) {
	b, _ := newBridge(t)

	edit(t, b.Path(), "early bird")

	_, changed := b.Poll()
	assert.False(t, changed, "nothing is imported before the first write")
}

func TestPollImportsExternalEdit(t *testing.T) {
	b, _ := newBridge(t)
	require.True(t, b.Write([]byte("hello")))

	edit(t, b.Path(), "hello world")

	text, changed := b.Poll()
	assert.True(t, changed)
	assert.Equal(t, "hello world", string(text))

	_, changed = b.Poll()
	assert.False(t, changed, "an edit is imported once")

	assert.False(t, b.Write([]byte("hello world")), "imported text is not written back")
}

func TestPollEmptyFile(t *testing.T) {
	b, _ := newBridge(t)
	require.True(t, b.Write([]byte("hello")))

	edit(t, b.Path(), "")

	text, changed := b.Poll()
	assert.True(t, changed)
	assert.NotNil(t, text)
	assert.Empty(t, text)
}

func TestPollFollowsReplacedFile(t *testing.T) {
	b, _ := newBridge(t)
	require.True(t, b.Write([]byte("hello")))

	tmp := b.Path() + "~"
	require.NoError(t, os.WriteFile(tmp, []byte("swapped"), 0o600))
	require.NoError(t, os.Rename(tmp, b.Path()))
	later := time.Now().Add(10 * time.Second)
	require.NoError(t, os.Chtimes(b.Path(), later, later))

	text, changed := b.Poll()
	require.True(t, changed)
	assert.Equal(t, "swapped", string(text))

	require.True(t, b.Write([]byte("again")))
	content, err := os.ReadFile(b.Path())
	require.NoError(t, err)
	assert.Equal(t, "again", string(content))
}

func TestWriteFollowsReplacedFile(t *testing.T) {
	b, _ := newBridge(t)
	require.True(t, b.Write([]byte("hello")))

	tmp := b.Path() + "~"
	require.NoError(t, os.WriteFile(tmp, []byte("from editor"), 0o600))
	require.NoError(t, os.Rename(tmp, b.Path()))

	require.True(t, b.Write([]byte("from host")))
	content, err := os.ReadFile(b.Path())
	require.NoError(t, err)
	assert.Equal(t, "from host", string(content))

	edit(t, b.Path(), "edited again")
	text, changed := b.Poll()
	require.True(t, changed)
	assert.Equal(t, "edited again", string(text))
}

func TestPollMissingFile(t *testing.T) {
	b, log := newBridge(t)
	require.True(t, b.Write([]byte("hello")))

	require.NoError(t, os.Remove(b.Path()))

	_, changed := b.Poll()
	assert.False(t, changed)
	assert.Contains(t, log.String(), "[ERROR]")
	assert.Contains(t, log.String(), "stat")
}

func TestClose(t *testing.T) {
	b, err := Create(t.TempDir(), nil)
	require.NoError(t, err)

	require.NoError(t, b.Close())
	_, err = os.Stat(b.Path())
	assert.True(t, os.IsNotExist(err))
}
