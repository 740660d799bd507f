package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/justyntemme/notes/pkg/framework/debug"
	"github.com/justyntemme/notes/pkg/host"
	"github.com/justyntemme/notes/pkg/host/remote"
	"github.com/justyntemme/notes/pkg/notes"
	"github.com/justyntemme/notes/pkg/notes/ui"
)

var config struct {
	session  string
	listen   string
	rate     time.Duration
	logLevel string
	logFile  string
	noUI     bool
	attach   bool
	scale    float32
}

var rootCmd = &cobra.Command{
	Use:   "notes-host",
	Short: "Run the notes plugin with its editor bridge",
	Long: `notes-host runs the notes plugin together with its UI in one process.

The note text is mirrored into a scratch file edited with $EDITOR. Changes
made in the editor flow back into the plugin state, which is kept in a
session file between runs. With --listen the properties are also served
to websocket clients.`,
	Version:      notes.Info.Version,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVarP(&config.session, "session", "s", "notes.session",
		"Session file restored at start and saved on exit (empty disables)")
	flags.StringVarP(&config.listen, "listen", "l", "",
		"Serve the websocket remote on this address, e.g. :8080 (empty disables)")
	flags.DurationVar(&config.rate, "rate", host.DefaultRate,
		"Period of the processing cycle")
	flags.StringVar(&config.logLevel, "log-level", "info",
		"Log level (trace|debug|info|warn|error)")
	flags.StringVar(&config.logFile, "log-file", "",
		"Append log messages to this file instead of stderr")
	flags.BoolVar(&config.noUI, "no-ui", false,
		"Run the plugin without UI")
	flags.BoolVarP(&config.attach, "attach", "a", true,
		"Run the editor in this terminal when stdin is a terminal")
	flags.Float32Var(&config.scale, "scale", 0,
		"UI scale factor (0 uses the default)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	_ = godotenv.Load()

	level, err := debug.ParseLevel(config.logLevel)
	if err != nil {
		return err
	}
	log := debug.New(os.Stderr, "notes", debug.DefaultFlags)
	if config.logFile != "" {
		fileLog, closeLog, err := debug.NewFileLogger(config.logFile, "notes", debug.DefaultFlags)
		if err != nil {
			return err
		}
		defer closeLog()
		log = fileLog
	}
	log.SetLevel(level)

	flush, err := debug.InitSentry(log, debug.SentryOptions{
		DSN:         os.Getenv("NOTES_SENTRY_DSN"),
		Release:     notes.Info.Version,
		Environment: os.Getenv("NOTES_ENVIRONMENT"),
	})
	if err != nil {
		log.Warn("error reporting disabled: %v", err)
	}
	defer flush()

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	attach := config.attach && !config.noUI && term.IsTerminal(int(os.Stdin.Fd()))

	var ed *editor
	opts := host.Options{
		Logger:   log,
		NoUI:     config.noUI,
		UIConfig: ui.ConfigFromEnv(),
		Scale:    config.scale,
	}
	if attach {
		// Run is the only caller of OnReinit, ed is set before it starts
		opts.OnReinit = func() { ed.restart() }
	}

	h, err := host.New(opts)
	if err != nil {
		return err
	}
	defer h.Close()

	if config.session != "" {
		if err := h.LoadSessionFile(config.session); err != nil {
			return fmt.Errorf("load session: %w", err)
		}
	}

	if config.listen != "" {
		srv := remote.New(h, log)
		defer srv.Close()

		mux := http.NewServeMux()
		mux.Handle("/ws", srv)
		hs := &http.Server{Addr: config.listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("remote: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			hs.Shutdown(shutdownCtx)
		}()
		log.Info("remote listening on %s/ws", config.listen)
	}

	if u := h.UI(); u != nil {
		if attach {
			ed = newEditor(h, u.EditorArgs(), log)
			if err := ed.start(); err != nil {
				return err
			}
			defer ed.stop()
		} else {
			log.Info("editing %s", u.ScratchPath())
		}
	}

	err = h.Run(ctx, config.rate)
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	if config.session != "" {
		if serr := h.SaveSessionFile(config.session); serr != nil {
			return errors.Join(err, fmt.Errorf("save session: %w", serr))
		}
	}
	return err
}
