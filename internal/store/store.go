package store

import (
	"context"
	"fmt"

	wastore "go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
)

// CredentialStore persists the linked-device credentials of the bot.
// Both SQLiteCredentials and PostgresCredentials implement this interface.
type CredentialStore interface {
	// Device returns the stored device, or a fresh unpaired one.
	Device(ctx context.Context) (*wastore.Device, error)
	// Reset deletes every stored credential.
	Reset(ctx context.Context) error
	// Dir returns the directory holding the credentials, or "" when they
	// do not live on the local filesystem.
	Dir() string

	// Connection management
	Ping(ctx context.Context) error
	Close() error
}

// deleteDevices removes every device from a container.
func deleteDevices(ctx context.Context, container *sqlstore.Container) error {
	devices, err := container.GetAllDevices(ctx)
	if err != nil {
		return fmt.Errorf("list devices: %w", err)
	}
	for _, device := range devices {
		if err := device.Delete(ctx); err != nil {
			return fmt.Errorf("delete device: %w", err)
		}
	}
	return nil
}
