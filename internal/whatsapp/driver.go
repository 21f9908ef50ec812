package whatsapp

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"github.com/adrianva1983/whatsApp-bot/internal/models"
	"github.com/adrianva1983/whatsApp-bot/internal/session"
)

// Driver is one whatsmeow client session.
type Driver struct {
	client    *whatsmeow.Client
	sink      session.Sink
	logger    zerolog.Logger
	handlerID uint32

	mu       sync.Mutex
	cancelQR context.CancelFunc
}

var _ session.Driver = (*Driver)(nil)

// Connect opens the websocket. An unpaired device first subscribes to the
// QR channel so pairing codes reach the sink.
func (d *Driver) Connect(ctx context.Context) error {
	if d.client.Store.ID == nil {
		qrCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		qrChan, err := d.client.GetQRChannel(qrCtx)
		if err != nil {
			cancel()
			return fmt.Errorf("get QR channel: %w", err)
		}

		d.mu.Lock()
		d.cancelQR = cancel
		d.mu.Unlock()

		go d.consumeQR(qrChan)
	}

	return d.client.Connect()
}

func (d *Driver) consumeQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for item := range qrChan {
		switch item.Event {
		case whatsmeow.QRChannelEventCode:
			d.sink(session.QR{Code: item.Code})
		case whatsmeow.QRChannelTimeout.Event:
			d.sink(session.Closed{Reason: session.QRAttemptsEnded, StatusCode: session.CodeTimedOut})
		case whatsmeow.QRChannelSuccess.Event:
			d.logger.Info().Msg("pairing succeeded")
		default:
			d.logger.Warn().Str("event", item.Event).Err(item.Error).Msg("pairing failed")
			if item.Error != nil {
				d.sink(session.Closed{Reason: item.Error.Error(), StatusCode: session.CodeBadSession})
			}
		}
	}
}

// SendText sends a plain conversation message.
func (d *Driver) SendText(ctx context.Context, to, text string) error {
	jid, err := types.ParseJID(to)
	if err != nil {
		return fmt.Errorf("parse jid %q: %w", to, err)
	}

	msg := &waE2E.Message{Conversation: proto.String(text)}
	if _, err := d.client.SendMessage(ctx, jid, msg); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// End disconnects without logging out. Events are no longer forwarded.
func (d *Driver) End() {
	d.mu.Lock()
	if d.cancelQR != nil {
		d.cancelQR()
		d.cancelQR = nil
	}
	d.mu.Unlock()

	d.client.RemoveEventHandler(d.handlerID)
	d.client.Disconnect()
}

// Logout unlinks the device.
func (d *Driver) Logout(ctx context.Context) error {
	return d.client.Logout(ctx)
}

// SaveCredentials persists the device state.
func (d *Driver) SaveCredentials(ctx context.Context) error {
	return d.client.Store.Save(ctx)
}

// Identity returns the linked account.
func (d *Driver) Identity() *models.Identity {
	id := d.client.Store.ID
	if id == nil {
		return nil
	}
	return &models.Identity{
		ID:   id.ToNonAD().String(),
		Name: d.client.Store.PushName,
	}
}

func (d *Driver) handleEvent(evt any) {
	if ev, ok := translate(evt); ok {
		d.sink(ev)
	}
}

// translate maps a whatsmeow event to a session event.
func translate(evt any) (any, bool) {
	switch e := evt.(type) {
	case *events.Connected:
		return session.Opened{}, true
	case *events.PairSuccess, *events.PushNameSetting:
		return session.CredsUpdated{}, true
	case *events.LoggedOut:
		return session.Closed{
			Reason:     fmt.Sprintf("logged out (reason %d)", int(e.Reason)),
			StatusCode: session.CodeLoggedOut,
		}, true
	case *events.ConnectFailure:
		code := session.CodeBadSession
		if e.Reason.IsLoggedOut() {
			code = session.CodeLoggedOut
		}
		reason := e.Message
		if reason == "" {
			reason = fmt.Sprintf("connect failure (reason %d)", int(e.Reason))
		}
		return session.Closed{Reason: reason, StatusCode: code}, true
	case *events.StreamReplaced:
		return session.Closed{Reason: "Stream Errored (conflict)", StatusCode: session.CodeConnectionReplaced}, true
	case *events.ClientOutdated:
		return session.Closed{Reason: "client outdated", StatusCode: session.CodeBadSession}, true
	case *events.Disconnected:
		return session.Closed{Reason: "Connection Closed", StatusCode: session.CodeConnectionClosed}, true
	case *events.Message:
		return session.Message{Inbound: toInbound(e)}, true
	}
	return nil, false
}

// toInbound converts a whatsmeow message event to the raw inbound shape.
func toInbound(e *events.Message) models.Inbound {
	in := models.Inbound{
		Key: models.MessageKey{
			RemoteJID: e.Info.Chat.String(),
			ID:        e.Info.ID,
			FromMe:    e.Info.IsFromMe,
		},
		PushName: e.Info.PushName,
		Message:  e.Message,
	}
	if e.Info.IsGroup {
		in.Key.Participant = e.Info.Sender.ToNonAD().String()
	}
	if !e.Info.Timestamp.IsZero() {
		in.Timestamp = e.Info.Timestamp.Unix()
	}
	return in
}
