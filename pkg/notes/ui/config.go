package ui

import (
	"os"
	"strings"
)

// Defaults used when the environment does not say otherwise
const (
	DefaultEditor = "vi"
	DefaultOpener = "xdg-open"
)

// Config holds the external programs and directories the UI uses
type Config struct {
	Editor  string // command line of the terminal editor, split on whitespace
	Opener  string // program that opens a file with the desktop default
	TempDir string // directory for scratch files, os.TempDir when empty
}

// ConfigFromEnv reads EDITOR, NOTES_OPENER and TMPDIR
func ConfigFromEnv() Config {
	return Config{
		Editor:  os.Getenv("EDITOR"),
		Opener:  os.Getenv("NOTES_OPENER"),
		TempDir: os.Getenv("TMPDIR"),
	}
}

func (c Config) editorArgs() []string {
	args := strings.Fields(c.Editor)
	if len(args) == 0 {
		args = []string{DefaultEditor}
	}
	return args
}

func (c Config) opener() string {
	if c.Opener == "" {
		return DefaultOpener
	}
	return c.Opener
}
