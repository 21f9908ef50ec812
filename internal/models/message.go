package models

import (
	"encoding/json"
	"strings"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"google.golang.org/protobuf/encoding/protojson"
)

const (
	// GroupSuffix marks a group chat JID.
	GroupSuffix = "@g.us"
	// UserSuffix is the domain of a personal chat JID.
	UserSuffix = "@s.whatsapp.net"
)

// MessageKey identifies an inbound message and its chat.
type MessageKey struct {
	RemoteJID   string `json:"remoteJid"`
	Participant string `json:"participant,omitempty"` // sender inside a group
	ID          string `json:"id"`
	FromMe      bool   `json:"fromMe"`
}

// Inbound is a raw inbound message as delivered by the driver.
type Inbound struct {
	Key       MessageKey     `json:"key"`
	PushName  string         `json:"pushName,omitempty"`
	Timestamp int64          `json:"messageTimestamp,omitempty"` // epoch seconds or milliseconds
	Message   *waE2E.Message `json:"-"`
}

// MarshalJSON renders the protobuf payload with protojson so the raw view
// keeps the wire field names.
func (in Inbound) MarshalJSON() ([]byte, error) {
	type plain Inbound
	out := struct {
		plain
		Message json.RawMessage `json:"message,omitempty"`
	}{plain: plain(in)}

	if in.Message != nil {
		data, err := protojson.Marshal(in.Message)
		if err != nil {
			return nil, err
		}
		out.Message = data
	}
	return json.Marshal(out)
}

// ChatType distinguishes private from group chats.
type ChatType string

const (
	ChatPrivate ChatType = "private"
	ChatGroup   ChatType = "group"
)

// Sender is the author of a message.
type Sender struct {
	Number      string `json:"number,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

// Quoted describes the message being replied to.
type Quoted struct {
	Kind string `json:"kind,omitempty"`
	Text string `json:"text,omitempty"`
}

// Summary is the flat view of an inbound message. It is built once and never mutated.
type Summary struct {
	ChatType   ChatType        `json:"chatType"`
	ID         string          `json:"id,omitempty"`
	Timestamp  string          `json:"timestamp,omitempty"` // ISO-8601
	Sender     *Sender         `json:"sender,omitempty"`
	GroupID    string          `json:"groupId,omitempty"`
	Kind       string          `json:"kind"`
	Text       string          `json:"text,omitempty"`
	Mentions   []string        `json:"mentions,omitempty"`
	Quoted     *Quoted         `json:"quoted,omitempty"`
	MediaFlags map[string]bool `json:"mediaFlags,omitempty"`
}

// SenderNumber returns the sender phone number or "".
func (s Summary) SenderNumber() string {
	if s.Sender == nil {
		return ""
	}
	return s.Sender.Number
}

// BufferEntry pairs a summary with the raw event it came from.
type BufferEntry struct {
	Summary Summary
	Raw     Inbound
}

// Notification is the lightweight message-arrival event pushed to SSE clients.
type Notification struct {
	IsGroup bool   `json:"isGroup"`
	Number  string `json:"number"`
	GroupID string `json:"groupId,omitempty"`
	Text    string `json:"text"`
}

// NotificationFor builds the SSE notification for a summary.
func NotificationFor(s Summary) Notification {
	return Notification{
		IsGroup: s.ChatType == ChatGroup,
		Number:  s.SenderNumber(),
		GroupID: s.GroupID,
		Text:    s.Text,
	}
}

// JIDToNumber strips the domain from a JID: "5215512345678@s.whatsapp.net" -> "5215512345678".
func JIDToNumber(jid string) string {
	number, _, _ := strings.Cut(jid, "@")
	return number
}

// DigitsOnly drops every non-digit character.
func DigitsOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}

// NumberToJID builds a personal chat JID from a phone number, or "" if it has no digits.
func NumberToJID(number string) string {
	clean := DigitsOnly(number)
	if clean == "" {
		return ""
	}
	return clean + UserSuffix
}
