package models

// Status is the lifecycle state of the WhatsApp session.
type Status string

const (
	StatusInit          Status = "init"
	StatusWaitingQR     Status = "waiting-qr"
	StatusOpenNotLinked Status = "open-but-not-linked"
	StatusConnected     Status = "connected"
	StatusReconnecting  Status = "reconnecting"
	StatusLoggingOut    Status = "logging-out"
	StatusLoggedOut     Status = "logged-out"
	StatusClosed        Status = "closed"
)

// Identity is the linked WhatsApp account.
type Identity struct {
	ID   string `json:"id"`             // full JID of the device
	Name string `json:"name,omitempty"` // push name, when known
}

// SessionState is a snapshot of the single logical session.
type SessionState struct {
	Status    Status    `json:"status"`
	QRPayload string    `json:"qrPayload,omitempty"` // data URL, only while waiting for a scan
	LastError string    `json:"lastError,omitempty"`
	Identity  *Identity `json:"identity,omitempty"`
}

// Normalize enforces the state invariants: the QR payload only exists while
// waiting for a scan and the identity only exists while connected.
func (s *SessionState) Normalize() {
	if s.Status != StatusWaitingQR {
		s.QRPayload = ""
	}
	if s.Status != StatusConnected {
		s.Identity = nil
	}
}

// Clone returns a copy that shares no pointers with s.
func (s SessionState) Clone() SessionState {
	if s.Identity != nil {
		id := *s.Identity
		s.Identity = &id
	}
	return s
}
