package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/stonefire/cloudsync/internal/notify"
	"github.com/stonefire/cloudsync/internal/utils"
)

const timeFormat = "2006-01-02T15:04:05.000Z07:00"

type Options struct {
	Level slog.Level
	// File, when set, receives a plain-text copy of every record.
	File string
	// Sender enables mailing of warnings; nil disables it.
	Sender  notify.Sender
	Subject string
	// Stdout defaults to os.Stdout.
	Stdout io.Writer
}

// Logging is the process-wide logger plus the resources behind it.
type Logging struct {
	Logger *slog.Logger
	// Mailer is nil when mail is disabled. Its Run loop is owned by the caller.
	Mailer *notify.Mailer
	file   *os.File
}

// Setup builds the console, file and notify handlers behind one logger.
func Setup(opts *Options) (*Logging, error) {
	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}

	handlers := []slog.Handler{
		tint.NewHandler(stdout, &tint.Options{
			Level:      opts.Level,
			TimeFormat: timeFormat,
			NoColor:    !isTerminal(stdout),
		}),
	}

	l := &Logging{}

	if opts.File != "" {
		if err := utils.EnsureParent(opts.File); err != nil {
			return nil, fmt.Errorf("log directory: %w", err)
		}
		file, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		l.file = file
		handlers = append(handlers, slog.NewTextHandler(file, &slog.HandlerOptions{Level: opts.Level}))
	}

	if opts.Sender != nil {
		// delivery failures go to console and file only
		l.Mailer = notify.NewMailer(opts.Sender, opts.Subject, slog.New(NewFanoutHandler(handlers...)))
		handlers = append(handlers, notify.NewHandler(l.Mailer))
	}

	l.Logger = slog.New(NewFanoutHandler(handlers...))
	return l, nil
}

func (l *Logging) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
