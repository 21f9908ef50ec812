// Package session owns the single logical WhatsApp session and reconciles
// driver lifecycle events into a state machine.
package session

import (
	"context"
	"errors"

	"github.com/adrianva1983/whatsApp-bot/internal/models"
)

// Close codes reported with Closed events. The numbering follows the
// disconnect reasons of the WhatsApp Web protocol.
const (
	CodeLoggedOut          = 401
	CodeTimedOut           = 408
	CodeConnectionClosed   = 428
	CodeConnectionReplaced = 440
	CodeBadSession         = 500
)

// QRAttemptsEnded is the close reason reported once every QR reference of a
// pairing session has expired.
const QRAttemptsEnded = "QR refs attempts ended"

var (
	// ErrNotConnected is returned when no driver instance is established.
	ErrNotConnected = errors.New("session: socket not started")
	// ErrSuperseded is returned by a connect attempt that was overtaken by a
	// reset, restart or logout before it finished.
	ErrSuperseded = errors.New("session: connect attempt superseded")
)

// Driver is one live protocol session.
type Driver interface {
	// Connect opens the socket. Pairing progress and the outcome are
	// reported through the sink the driver was opened with.
	Connect(ctx context.Context) error
	// SendText sends a plain text message to a chat JID.
	SendText(ctx context.Context, to, text string) error
	// End closes the socket without logging out.
	End()
	// Logout unlinks the device from the account.
	Logout(ctx context.Context) error
	// SaveCredentials persists the current credential state.
	SaveCredentials(ctx context.Context) error
	// Identity returns the linked account, or nil when not linked yet.
	Identity() *models.Identity
}

// Sink receives driver events: QR, Opened, Closed, CredsUpdated or Message.
type Sink func(event any)

// Factory creates drivers from persisted credentials.
type Factory interface {
	// Open hydrates the stored credentials and builds a driver that reports
	// its events to sink.
	Open(ctx context.Context, sink Sink) (Driver, error)
	// Discard deletes the persisted credentials.
	Discard(ctx context.Context) error
}

// QR carries a fresh pairing code.
type QR struct {
	Code string
}

// Opened reports that the socket is open.
type Opened struct{}

// Closed reports that the socket closed.
type Closed struct {
	Reason     string
	StatusCode int
}

// CredsUpdated reports a change of the credential state.
type CredsUpdated struct{}

// Message carries an inbound message.
type Message struct {
	Inbound models.Inbound
}
