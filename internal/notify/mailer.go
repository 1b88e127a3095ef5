package notify

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/stonefire/cloudsync/internal/queue"
)

const flushTimeout = 10 * time.Second

// Message is one notification waiting to be mailed.
type Message struct {
	Time  time.Time
	Level slog.Level
	Body  string
}

// Mailer drains the notification queue and hands each message to a Sender.
type Mailer struct {
	queue   *queue.Queue[Message]
	sender  Sender
	subject string
	log     *slog.Logger
}

// NewMailer creates a mailer. log receives delivery failures and must not
// route back into a notify Handler; nil discards them.
func NewMailer(sender Sender, subject string, log *slog.Logger) *Mailer {
	if subject == "" {
		subject = DefaultSubject
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Mailer{
		queue:   queue.New[Message](),
		sender:  sender,
		subject: subject,
		log:     log,
	}
}

// Post enqueues a message. Never blocks.
func (m *Mailer) Post(msg Message) {
	m.queue.Push(msg)
}

func (m *Mailer) Pending() int {
	return m.queue.Len()
}

// Run sends queued messages until ctx is done, then flushes what is left.
func (m *Mailer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
			m.drain(flushCtx)
			cancel()
			return nil
		case <-m.queue.Ready():
			m.drain(ctx)
		}
	}
}

func (m *Mailer) drain(ctx context.Context) {
	for _, msg := range m.queue.PopAll() {
		if err := m.sender.Send(ctx, m.subject, msg.Body); err != nil {
			m.log.Debug("notification not delivered", "level", msg.Level, "error", err)
			continue
		}
		m.log.Debug("notification sent", "level", msg.Level)
	}
}
