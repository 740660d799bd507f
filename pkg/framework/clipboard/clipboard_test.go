package clipboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory(t *testing.T) {
	m := NewMemory()

	_, _, err := m.Read(MIMEText)
	assert.ErrorIs(t, err, ErrEmpty)

	src := []byte("hello")
	require.NoError(t, m.Write(MIMEText, src))
	src[0] = 'j'

	data, mime, err := m.Read(MIMEPNG, MIMEText)
	require.NoError(t, err)
	assert.Equal(t, MIMEText, mime)
	assert.Equal(t, "hello", string(data))

	require.NoError(t, m.Write("image/gif", []byte("GIF89a")))
	_, _, err = m.Read(MIMEText)
	assert.ErrorIs(t, err, ErrEmpty, "a write replaces every type")

	data, mime, err = m.Read(MIMEPNG, "image/gif")
	require.NoError(t, err)
	assert.Equal(t, "image/gif", mime)
	assert.Equal(t, []byte("GIF89a"), data)
}

func TestSystemFormat(t *testing.T) {
	tests := []struct {
		mime string
		ok   bool
	}{
		{MIMEText, true},
		{MIMEPNG, true},
		{"image/jpeg", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.mime, func(t *testing.T) {
			_, ok := systemFormat(tt.mime)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestCommandRejectsNonText(t *testing.T) {
	c := &Command{}

	assert.ErrorIs(t, c.Write(MIMEPNG, []byte{1}), ErrUnsupported)
	_, _, err := c.Read(MIMEPNG)
	assert.ErrorIs(t, err, ErrUnsupported)
}
