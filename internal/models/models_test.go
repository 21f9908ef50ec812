package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"google.golang.org/protobuf/proto"
)

func TestSessionState_Normalize(t *testing.T) {
	tests := []struct {
		name      string
		in        SessionState
		wantQR    bool
		wantIdent bool
	}{
		{"waiting keeps qr", SessionState{Status: StatusWaitingQR, QRPayload: "data:x", Identity: &Identity{ID: "1"}}, true, false},
		{"connected keeps identity", SessionState{Status: StatusConnected, QRPayload: "data:x", Identity: &Identity{ID: "1"}}, false, true},
		{"reconnecting drops both", SessionState{Status: StatusReconnecting, QRPayload: "data:x", Identity: &Identity{ID: "1"}}, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := tt.in
			s.Normalize()
			assert.Equal(t, tt.wantQR, s.QRPayload != "")
			assert.Equal(t, tt.wantIdent, s.Identity != nil)
		})
	}
}

func TestSessionState_CloneSharesNothing(t *testing.T) {
	s := SessionState{Status: StatusConnected, Identity: &Identity{ID: "1", Name: "Shop"}}
	c := s.Clone()
	c.Identity.Name = "Other"

	assert.Equal(t, "Shop", s.Identity.Name)
}

func TestJIDHelpers(t *testing.T) {
	assert.Equal(t, "34600111222", JIDToNumber("34600111222@s.whatsapp.net"))
	assert.Equal(t, "12036", JIDToNumber("12036@g.us"))
	assert.Equal(t, "", JIDToNumber(""))

	assert.Equal(t, "34600111222", DigitsOnly("+34 600-111-222"))
	assert.Equal(t, "34600111222@s.whatsapp.net", NumberToJID("+34 600 111 222"))
	assert.Equal(t, "", NumberToJID("abc"))
}

func TestNotificationFor(t *testing.T) {
	n := NotificationFor(Summary{
		ChatType: ChatGroup,
		GroupID:  "12036@g.us",
		Sender:   &Sender{Number: "34600111222"},
		Text:     "hola",
	})
	assert.Equal(t, Notification{IsGroup: true, Number: "34600111222", GroupID: "12036@g.us", Text: "hola"}, n)

	assert.Equal(t, "", NotificationFor(Summary{ChatType: ChatPrivate}).Number)
}

func TestInbound_MarshalJSON(t *testing.T) {
	in := Inbound{
		Key:       MessageKey{RemoteJID: "34600111222@s.whatsapp.net", ID: "ABC"},
		PushName:  "Ana",
		Timestamp: 1700000000,
		Message:   &waE2E.Message{Conversation: proto.String("hola")},
	}

	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, "Ana", out["pushName"])
	assert.Equal(t, map[string]any{"conversation": "hola"}, out["message"])
	assert.Equal(t, "ABC", out["key"].(map[string]any)["id"])
}

func TestInbound_MarshalJSONWithoutMessage(t *testing.T) {
	data, err := json.Marshal(Inbound{Key: MessageKey{ID: "ABC"}})
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"message"`)
}
