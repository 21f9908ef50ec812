// Package normalize turns raw inbound WhatsApp messages into flat summaries.
package normalize

import (
	"math"
	"strings"
	"time"

	"go.mau.fi/whatsmeow/proto/waE2E"

	"github.com/adrianva1983/whatsApp-bot/internal/models"
)

// KindUnknown is reported for messages without any content field.
const KindUnknown = "unknown"

// secondsThreshold separates epoch seconds from epoch milliseconds.
const secondsThreshold = 10_000_000_000

// skippedKinds are transport metadata fields that never describe the content.
var skippedKinds = map[string]bool{
	"senderKeyDistributionMessage": true,
	"messageContextInfo":           true,
}

// Summarize builds the summary of an inbound message. Missing sub-fields are
// simply left out.
func Summarize(in models.Inbound) models.Summary {
	remote := in.Key.RemoteJID
	isGroup := strings.HasSuffix(remote, models.GroupSuffix)

	s := models.Summary{
		ChatType:   models.ChatPrivate,
		ID:         in.Key.ID,
		Timestamp:  ToISO(in.Timestamp),
		Kind:       Kind(in.Message),
		Text:       strings.TrimSpace(Text(in.Message)),
		Mentions:   Mentions(in.Message),
		Quoted:     QuotedOf(in.Message),
		MediaFlags: MediaFlags(in.Message),
	}

	number := models.JIDToNumber(remote)
	if isGroup {
		s.ChatType = models.ChatGroup
		s.GroupID = number
		number = models.JIDToNumber(in.Key.Participant)
	}
	if number != "" || in.PushName != "" {
		s.Sender = &models.Sender{Number: number, DisplayName: in.PushName}
	}
	return s
}

// Text extracts the body of a message using a fixed priority order.
func Text(m *waE2E.Message) string {
	return textOf(m, true)
}

func textOf(m *waE2E.Message, unwrap bool) string {
	switch {
	case m.GetConversation() != "":
		return m.GetConversation()
	case m.GetExtendedTextMessage().GetText() != "":
		return m.GetExtendedTextMessage().GetText()
	case m.GetEphemeralMessage().GetMessage() != nil:
		if !unwrap {
			return ""
		}
		return textOf(m.GetEphemeralMessage().GetMessage(), false)
	case m.GetImageMessage().GetCaption() != "":
		return m.GetImageMessage().GetCaption()
	case m.GetVideoMessage().GetCaption() != "":
		return m.GetVideoMessage().GetCaption()
	case m.GetButtonsResponseMessage().GetSelectedButtonID() != "":
		return m.GetButtonsResponseMessage().GetSelectedButtonID()
	case m.GetListResponseMessage().GetSingleSelectReply().GetSelectedRowID() != "":
		return m.GetListResponseMessage().GetSingleSelectReply().GetSelectedRowID()
	case m.GetDocumentWithCaptionMessage().GetMessage().GetDocumentMessage().GetCaption() != "":
		return m.GetDocumentWithCaptionMessage().GetMessage().GetDocumentMessage().GetCaption()
	}
	return ""
}

// Kind names the dominant content field of a message after one ephemeral unwrap.
func Kind(m *waE2E.Message) string {
	if inner := m.GetEphemeralMessage().GetMessage(); inner != nil {
		m = inner
	}
	return firstField(m)
}

// firstField returns the JSON name of the first populated content field.
func firstField(m *waE2E.Message) string {
	if m == nil {
		return KindUnknown
	}
	rm := m.ProtoReflect()
	fields := rm.Descriptor().Fields()
	for i := 0; i < fields.Len(); i++ {
		fd := fields.Get(i)
		if skippedKinds[fd.JSONName()] || !rm.Has(fd) {
			continue
		}
		return fd.JSONName()
	}
	return KindUnknown
}

// contextInfo returns the first present context info, in fallback order.
// The protobuf model has no conversation-level context, so mentions and
// quotes share the same chain.
func contextInfo(m *waE2E.Message) *waE2E.ContextInfo {
	switch {
	case m.GetExtendedTextMessage().GetContextInfo() != nil:
		return m.GetExtendedTextMessage().GetContextInfo()
	case m.GetImageMessage().GetContextInfo() != nil:
		return m.GetImageMessage().GetContextInfo()
	case m.GetVideoMessage().GetContextInfo() != nil:
		return m.GetVideoMessage().GetContextInfo()
	}
	return m.GetEphemeralMessage().GetMessage().GetExtendedTextMessage().GetContextInfo()
}

// Mentions returns the mentioned phone numbers in order, or nil.
func Mentions(m *waE2E.Message) []string {
	jids := contextInfo(m).GetMentionedJID()
	if len(jids) == 0 {
		return nil
	}
	out := make([]string, 0, len(jids))
	for _, jid := range jids {
		out = append(out, models.JIDToNumber(jid))
	}
	return out
}

// QuotedOf describes the replied-to message, or returns nil.
func QuotedOf(m *waE2E.Message) *models.Quoted {
	qm := contextInfo(m).GetQuotedMessage()
	if qm == nil {
		return nil
	}

	q := &models.Quoted{Text: quotedText(qm)}
	if kind := firstField(qm); kind != KindUnknown {
		q.Kind = kind
	}
	if q.Kind == "" && q.Text == "" {
		return nil
	}
	return q
}

func quotedText(qm *waE2E.Message) string {
	for _, text := range []string{
		qm.GetConversation(),
		qm.GetExtendedTextMessage().GetText(),
		qm.GetImageMessage().GetCaption(),
		qm.GetVideoMessage().GetCaption(),
	} {
		if text != "" {
			return text
		}
	}
	return ""
}

// MediaFlags reports which media categories a message carries. Only true
// flags are kept; nil means none.
func MediaFlags(m *waE2E.Message) map[string]bool {
	src := m
	if inner := m.GetEphemeralMessage().GetMessage(); inner != nil && firstField(inner) != KindUnknown {
		src = inner
	}

	candidates := []struct {
		name    string
		present bool
	}{
		{"image", src.GetImageMessage() != nil},
		{"video", src.GetVideoMessage() != nil},
		{"audio", src.GetAudioMessage() != nil},
		{"document", src.GetDocumentMessage() != nil},
		{"sticker", src.GetStickerMessage() != nil},
		{"location", src.GetLocationMessage() != nil || src.GetLiveLocationMessage() != nil},
		{"contact", src.GetContactMessage() != nil || src.GetContactsArrayMessage() != nil},
	}

	var flags map[string]bool
	for _, c := range candidates {
		if !c.present {
			continue
		}
		if flags == nil {
			flags = make(map[string]bool)
		}
		flags[c.name] = true
	}
	return flags
}

// ToISO converts an epoch timestamp in seconds or milliseconds to ISO-8601.
// Zero yields "".
func ToISO(ts int64) string {
	if ts == 0 {
		return ""
	}
	ms := ts
	if math.Abs(float64(ts)) < secondsThreshold {
		ms = ts * 1000
	}
	return time.UnixMilli(ms).UTC().Format("2006-01-02T15:04:05.000Z07:00")
}
