package whatsapp

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"github.com/adrianva1983/whatsApp-bot/internal/session"
)

func TestTranslate(t *testing.T) {
	tests := []struct {
		name string
		evt  any
		want any
	}{
		{"connected", &events.Connected{}, session.Opened{}},
		{"pair success", &events.PairSuccess{}, session.CredsUpdated{}},
		{"push name", &events.PushNameSetting{}, session.CredsUpdated{}},
		{"disconnected", &events.Disconnected{}, session.Closed{Reason: "Connection Closed", StatusCode: 428}},
		{"replaced", &events.StreamReplaced{}, session.Closed{Reason: "Stream Errored (conflict)", StatusCode: 440}},
		{"outdated", &events.ClientOutdated{}, session.Closed{Reason: "client outdated", StatusCode: 500}},
		{
			"connect failure logged out",
			&events.ConnectFailure{Reason: events.ConnectFailureLoggedOut, Message: "401"},
			session.Closed{Reason: "401", StatusCode: 401},
		},
		{
			"connect failure other",
			&events.ConnectFailure{Reason: events.ConnectFailureReason(500)},
			session.Closed{Reason: "connect failure (reason 500)", StatusCode: 500},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := translate(tt.evt)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTranslate_LoggedOut(t *testing.T) {
	got, ok := translate(&events.LoggedOut{Reason: events.ConnectFailureLoggedOut})
	require.True(t, ok)

	closed, isClosed := got.(session.Closed)
	require.True(t, isClosed)
	assert.Equal(t, session.CodeLoggedOut, closed.StatusCode)
	assert.Contains(t, closed.Reason, "logged out")
}

func TestTranslate_Ignored(t *testing.T) {
	_, ok := translate(&events.Receipt{})
	assert.False(t, ok)
}

func TestToInbound_Private(t *testing.T) {
	ts := time.Unix(1_700_000_000, 0)
	evt := &events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{
				Chat:   types.NewJID("34600111222", types.DefaultUserServer),
				Sender: types.NewJID("34600111222", types.DefaultUserServer),
			},
			ID:        "ABC",
			PushName:  "Ana",
			Timestamp: ts,
		},
		Message: &waE2E.Message{Conversation: proto.String("hola")},
	}

	got, ok := translate(evt)
	require.True(t, ok)
	in := got.(session.Message).Inbound

	assert.Equal(t, "34600111222@s.whatsapp.net", in.Key.RemoteJID)
	assert.Empty(t, in.Key.Participant)
	assert.Equal(t, "ABC", in.Key.ID)
	assert.False(t, in.Key.FromMe)
	assert.Equal(t, "Ana", in.PushName)
	assert.Equal(t, int64(1_700_000_000), in.Timestamp)
	assert.Equal(t, "hola", in.Message.GetConversation())
}

func TestToInbound_Group(t *testing.T) {
	sender := types.NewJID("34600111222", types.DefaultUserServer)
	sender.Device = 3

	in := toInbound(&events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{
				Chat:     types.NewJID("120363000000000000", types.GroupServer),
				Sender:   sender,
				IsGroup:  true,
				IsFromMe: true,
			},
			ID: "G1",
		},
	})

	assert.Equal(t, "120363000000000000@g.us", in.Key.RemoteJID)
	assert.Equal(t, "34600111222@s.whatsapp.net", in.Key.Participant)
	assert.True(t, in.Key.FromMe)
	assert.Zero(t, in.Timestamp)
}

func TestRenderQR(t *testing.T) {
	payload, err := RenderQR("2@abc,def,ghi")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(payload, "data:image/png;base64,"))
	assert.Greater(t, len(payload), len("data:image/png;base64,"))
}
