package main

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/term"

	"github.com/justyntemme/notes/pkg/framework/debug"
	"github.com/justyntemme/notes/pkg/framework/spawn"
	"github.com/justyntemme/notes/pkg/host"
	"github.com/justyntemme/notes/pkg/notes/ui"
)

// editor runs the text editor on the scratch file in the controlling
// terminal. Quitting the editor closes the UI.
type editor struct {
	host *host.Host
	argv []string
	log  *debug.Logger

	mu   sync.Mutex
	proc *spawn.Process
}

func newEditor(h *host.Host, argv []string, log *debug.Logger) *editor {
	return &editor{host: h, argv: argv, log: log}
}

func (e *editor) start() error {
	var env []string
	if w, h, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
		env = append(env, fmt.Sprintf("COLUMNS=%d", w), fmt.Sprintf("LINES=%d", h))
	}

	p, err := spawn.Start(e.argv,
		spawn.WithStdio(os.Stdin, os.Stdout, os.Stderr),
		spawn.WithEnv(env...),
	)
	if err != nil {
		return fmt.Errorf("editor: %w", err)
	}

	e.mu.Lock()
	e.proc = p
	e.mu.Unlock()

	go e.watch(p)
	return nil
}

// watch closes the UI once p exits on its own
func (e *editor) watch(p *spawn.Process) {
	<-p.Done()

	e.mu.Lock()
	current := e.proc == p
	if current {
		e.proc = nil
	}
	e.mu.Unlock()

	if current {
		e.host.Do(func(u *ui.UI) { u.Close() })
	}
}

// restart replaces the running editor so it shows the rewritten file
func (e *editor) restart() {
	e.stop()
	if err := e.start(); err != nil {
		e.log.Error("%v", err)
		e.host.Do(func(u *ui.UI) { u.Close() })
	}
}

func (e *editor) stop() {
	e.mu.Lock()
	p := e.proc
	e.proc = nil
	e.mu.Unlock()

	if p == nil {
		return
	}
	if err := p.Kill(); err != nil {
		e.log.Warn("stop editor: %v", err)
	}
	<-p.Done()
}
