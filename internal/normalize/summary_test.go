package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"google.golang.org/protobuf/proto"

	"github.com/adrianva1983/whatsApp-bot/internal/models"
)

func privateInbound(msg *waE2E.Message) models.Inbound {
	return models.Inbound{
		Key:      models.MessageKey{RemoteJID: "5215512345678@s.whatsapp.net", ID: "ABC123"},
		PushName: "Ana",
		Message:  msg,
	}
}

func TestSummarize_PrivateConversation(t *testing.T) {
	s := Summarize(privateInbound(&waE2E.Message{Conversation: proto.String("hi")}))

	assert.Equal(t, models.ChatPrivate, s.ChatType)
	assert.Equal(t, "hi", s.Text)
	assert.Equal(t, "conversation", s.Kind)
	assert.Empty(t, s.MediaFlags)
	assert.Nil(t, s.Mentions)
	assert.Nil(t, s.Quoted)
	assert.Empty(t, s.GroupID)
	require.NotNil(t, s.Sender)
	assert.Equal(t, "5215512345678", s.Sender.Number)
	assert.Equal(t, "Ana", s.Sender.DisplayName)
}

func TestSummarize_GroupUsesParticipant(t *testing.T) {
	in := models.Inbound{
		Key: models.MessageKey{
			RemoteJID:   "120363025246125888@g.us",
			Participant: "5215599999999@s.whatsapp.net",
			ID:          "G1",
		},
		Message: &waE2E.Message{Conversation: proto.String("hola grupo")},
	}

	s := Summarize(in)

	assert.Equal(t, models.ChatGroup, s.ChatType)
	assert.Equal(t, "120363025246125888", s.GroupID)
	require.NotNil(t, s.Sender)
	assert.Equal(t, "5215599999999", s.Sender.Number)
	assert.Empty(t, s.Sender.DisplayName)
}

func TestSummarize_TrimsText(t *testing.T) {
	s := Summarize(privateInbound(&waE2E.Message{Conversation: proto.String("  precio  ")}))
	assert.Equal(t, "precio", s.Text)
}

func TestText_PriorityOrder(t *testing.T) {
	tests := []struct {
		name string
		msg  *waE2E.Message
		want string
	}{
		{"nil message", nil, ""},
		{"conversation wins", &waE2E.Message{
			Conversation:        proto.String("plain"),
			ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("extended")},
		}, "plain"},
		{"extended text", &waE2E.Message{
			ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("extended")},
		}, "extended"},
		{"ephemeral unwrap", &waE2E.Message{
			EphemeralMessage: &waE2E.FutureProofMessage{Message: &waE2E.Message{Conversation: proto.String("secret")}},
		}, "secret"},
		{"ephemeral result is final", &waE2E.Message{
			EphemeralMessage: &waE2E.FutureProofMessage{Message: &waE2E.Message{}},
			ImageMessage:     &waE2E.ImageMessage{Caption: proto.String("outer caption")},
		}, ""},
		{"ephemeral unwraps once", &waE2E.Message{
			EphemeralMessage: &waE2E.FutureProofMessage{Message: &waE2E.Message{
				EphemeralMessage: &waE2E.FutureProofMessage{Message: &waE2E.Message{Conversation: proto.String("deep")}},
			}},
		}, ""},
		{"image caption", &waE2E.Message{
			ImageMessage: &waE2E.ImageMessage{Caption: proto.String("photo")},
		}, "photo"},
		{"video caption", &waE2E.Message{
			VideoMessage: &waE2E.VideoMessage{Caption: proto.String("clip")},
		}, "clip"},
		{"button reply", &waE2E.Message{
			ButtonsResponseMessage: &waE2E.ButtonsResponseMessage{SelectedButtonID: proto.String("btn-1")},
		}, "btn-1"},
		{"list reply", &waE2E.Message{
			ListResponseMessage: &waE2E.ListResponseMessage{
				SingleSelectReply: &waE2E.ListResponseMessage_SingleSelectReply{SelectedRowID: proto.String("row-7")},
			},
		}, "row-7"},
		{"document with caption", &waE2E.Message{
			DocumentWithCaptionMessage: &waE2E.FutureProofMessage{Message: &waE2E.Message{
				DocumentMessage: &waE2E.DocumentMessage{Caption: proto.String("invoice")},
			}},
		}, "invoice"},
		{"audio has no text", &waE2E.Message{AudioMessage: &waE2E.AudioMessage{}}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Text(tt.msg))
		})
	}
}

func TestKind(t *testing.T) {
	assert.Equal(t, KindUnknown, Kind(nil))
	assert.Equal(t, KindUnknown, Kind(&waE2E.Message{}))
	assert.Equal(t, "imageMessage", Kind(&waE2E.Message{ImageMessage: &waE2E.ImageMessage{}}))
	assert.Equal(t, "extendedTextMessage", Kind(&waE2E.Message{
		EphemeralMessage: &waE2E.FutureProofMessage{Message: &waE2E.Message{
			ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("x")},
		}},
	}))
	assert.Equal(t, "conversation", Kind(&waE2E.Message{
		Conversation:       proto.String("hi"),
		MessageContextInfo: &waE2E.MessageContextInfo{},
	}))
}

func TestMentions(t *testing.T) {
	msg := &waE2E.Message{
		ExtendedTextMessage: &waE2E.ExtendedTextMessage{
			Text: proto.String("@a @b"),
			ContextInfo: &waE2E.ContextInfo{
				MentionedJID: []string{"111@s.whatsapp.net", "222@s.whatsapp.net"},
			},
		},
	}
	assert.Equal(t, []string{"111", "222"}, Mentions(msg))

	t.Run("first present context wins", func(t *testing.T) {
		msg := &waE2E.Message{
			ExtendedTextMessage: &waE2E.ExtendedTextMessage{ContextInfo: &waE2E.ContextInfo{}},
			ImageMessage: &waE2E.ImageMessage{ContextInfo: &waE2E.ContextInfo{
				MentionedJID: []string{"333@s.whatsapp.net"},
			}},
		}
		assert.Nil(t, Mentions(msg))
	})

	t.Run("ephemeral extended text", func(t *testing.T) {
		msg := &waE2E.Message{
			EphemeralMessage: &waE2E.FutureProofMessage{Message: &waE2E.Message{
				ExtendedTextMessage: &waE2E.ExtendedTextMessage{ContextInfo: &waE2E.ContextInfo{
					MentionedJID: []string{"444@s.whatsapp.net"},
				}},
			}},
		}
		assert.Equal(t, []string{"444"}, Mentions(msg))
	})
}

func TestQuotedOf(t *testing.T) {
	assert.Nil(t, QuotedOf(&waE2E.Message{Conversation: proto.String("hi")}))

	msg := &waE2E.Message{
		VideoMessage: &waE2E.VideoMessage{ContextInfo: &waE2E.ContextInfo{
			QuotedMessage: &waE2E.Message{ImageMessage: &waE2E.ImageMessage{Caption: proto.String("the cat")}},
		}},
	}
	q := QuotedOf(msg)
	require.NotNil(t, q)
	assert.Equal(t, "imageMessage", q.Kind)
	assert.Equal(t, "the cat", q.Text)

	t.Run("kind without text", func(t *testing.T) {
		msg := &waE2E.Message{
			ExtendedTextMessage: &waE2E.ExtendedTextMessage{ContextInfo: &waE2E.ContextInfo{
				QuotedMessage: &waE2E.Message{StickerMessage: &waE2E.StickerMessage{}},
			}},
		}
		q := QuotedOf(msg)
		require.NotNil(t, q)
		assert.Equal(t, "stickerMessage", q.Kind)
		assert.Empty(t, q.Text)
	})
}

func TestMediaFlags(t *testing.T) {
	assert.Nil(t, MediaFlags(nil))
	assert.Nil(t, MediaFlags(&waE2E.Message{Conversation: proto.String("hi")}))

	flags := MediaFlags(&waE2E.Message{
		ImageMessage:        &waE2E.ImageMessage{},
		LiveLocationMessage: &waE2E.LiveLocationMessage{},
	})
	assert.Equal(t, map[string]bool{"image": true, "location": true}, flags)

	flags = MediaFlags(&waE2E.Message{
		EphemeralMessage: &waE2E.FutureProofMessage{Message: &waE2E.Message{
			ContactsArrayMessage: &waE2E.ContactsArrayMessage{},
		}},
	})
	assert.Equal(t, map[string]bool{"contact": true}, flags)
}

func TestToISO(t *testing.T) {
	assert.Empty(t, ToISO(0))
	assert.Equal(t, "2023-11-14T22:13:20.000Z", ToISO(1_700_000_000))
	assert.Equal(t, "2023-11-14T22:13:20.123Z", ToISO(1_700_000_000_123))
}

func TestSummarize_Timestamp(t *testing.T) {
	in := privateInbound(&waE2E.Message{Conversation: proto.String("hi")})
	in.Timestamp = 1_700_000_000
	assert.Equal(t, "2023-11-14T22:13:20.000Z", Summarize(in).Timestamp)
}
