// Package bot handles inbound messages: buffering, notification and
// keyword replies.
package bot

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/adrianva1983/whatsApp-bot/internal/metrics"
	"github.com/adrianva1983/whatsApp-bot/internal/models"
	"github.com/adrianva1983/whatsApp-bot/internal/normalize"
)

// replyTimeout bounds a single automatic reply.
const replyTimeout = 30 * time.Second

// Buffer stores recent messages per sender number.
type Buffer interface {
	Push(key string, entry models.BufferEntry)
}

// Notifier fans message notifications out to live viewers.
type Notifier interface {
	BroadcastMessage(n models.Notification)
}

// Sender delivers a text message to a chat.
type Sender interface {
	SendText(ctx context.Context, to, text string) error
}

// Pipeline processes inbound messages one at a time.
type Pipeline struct {
	buffer    Buffer
	notifier  Notifier
	sender    Sender
	responder *Responder
	logger    zerolog.Logger
}

// NewPipeline creates a pipeline. A nil responder disables replies.
func NewPipeline(buffer Buffer, notifier Notifier, sender Sender, responder *Responder, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		buffer:    buffer,
		notifier:  notifier,
		sender:    sender,
		responder: responder,
		logger:    logger.With().Str("component", "bot").Logger(),
	}
}

// Handle buffers, announces and answers one inbound message. Failures are
// logged and never escape.
func (p *Pipeline) Handle(in models.Inbound) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().
				Interface("panic", r).
				Str("id", in.Key.ID).
				Msg("message handler panicked")
		}
	}()

	if in.Key.FromMe || in.Message == nil {
		return
	}

	summary := normalize.Summarize(in)
	number := summary.SenderNumber()

	p.buffer.Push(number, models.BufferEntry{Summary: summary, Raw: in})
	metrics.MessagesReceived.WithLabelValues(string(summary.ChatType)).Inc()

	p.logger.Info().
		Str("id", summary.ID).
		Str("chatType", string(summary.ChatType)).
		Str("from", number).
		Str("group", summary.GroupID).
		Str("kind", summary.Kind).
		Str("text", summary.Text).
		Msg("message received")

	p.notifier.BroadcastMessage(models.NotificationFor(summary))

	p.reply(in.Key.RemoteJID, summary.Text)
}

func (p *Pipeline) reply(chat, text string) {
	if p.responder == nil {
		return
	}

	answer, ok := p.responder.Reply(text)
	if !ok {
		metrics.RepliesSent.WithLabelValues("skipped").Inc()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), replyTimeout)
	defer cancel()

	if err := p.sender.SendText(ctx, chat, answer); err != nil {
		metrics.RepliesSent.WithLabelValues("error").Inc()
		p.logger.Error().Err(err).Str("chat", chat).Msg("failed to send reply")
		return
	}
	metrics.RepliesSent.WithLabelValues("ok").Inc()
}
