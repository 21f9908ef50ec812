// Package whatsapp adapts whatsmeow to the session driver contract.
package whatsapp

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow"
	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/adrianva1983/whatsApp-bot/internal/session"
	"github.com/adrianva1983/whatsApp-bot/internal/store"
)

// Factory builds whatsmeow-backed drivers from a credential store.
type Factory struct {
	creds  store.CredentialStore
	logger zerolog.Logger
}

// NewFactory creates a driver factory.
func NewFactory(creds store.CredentialStore, logger zerolog.Logger) *Factory {
	return &Factory{
		creds:  creds,
		logger: logger.With().Str("component", "whatsapp").Logger(),
	}
}

// Open loads the stored device and wraps a new client around it.
func (f *Factory) Open(ctx context.Context, sink session.Sink) (session.Driver, error) {
	device, err := f.creds.Device(ctx)
	if err != nil {
		return nil, fmt.Errorf("load device: %w", err)
	}

	client := whatsmeow.NewClient(device, waLog.Zerolog(f.logger.With().Str("module", "client").Logger()))
	client.EnableAutoReconnect = false

	d := &Driver{
		client: client,
		sink:   sink,
		logger: f.logger,
	}
	d.handlerID = client.AddEventHandler(d.handleEvent)

	f.logger.Debug().Bool("paired", device.ID != nil).Msg("driver opened")
	return d, nil
}

// Discard deletes the stored credentials.
func (f *Factory) Discard(ctx context.Context) error {
	return f.creds.Reset(ctx)
}
