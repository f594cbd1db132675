package publish

import (
	"errors"

	"maunium.net/go/mautrix"
	mevt "maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/matrix-org/feedbot/internal/render"
)

// MatrixClient is the subset of *mautrix.Client this sink needs, narrowed
// from types/service.go's MatrixClient interface so tests can supply a fake.
type MatrixClient interface {
	JoinRoom(roomIDorAlias, serverName string, content interface{}) (*mautrix.RespJoinRoom, error)
	SendMessageEvent(roomID id.RoomID, eventType mevt.Type, contentJSON interface{}, extra ...mautrix.ReqSendEvent) (*mautrix.RespSendEvent, error)
}

// MatrixSink posts rendered messages as m.notice events, grounded on
// services/rssbot/rssbot.go's sendToRooms/itemToHTML and widened from "one
// feed, many rooms" to this system's one-subscription-to-one-room model.
type MatrixSink struct {
	client MatrixClient
}

// NewMatrixSink wraps an already-constructed Matrix client. Client
// construction (homeserver URL, access token, device ID, sync store) is the
// composition root's job, mirroring clients.initClient.
func NewMatrixSink(client MatrixClient) *MatrixSink {
	return &MatrixSink{client: client}
}

func (s *MatrixSink) Post(channelID string, msg render.Message) (string, error) {
	content := mevt.MessageEventContent{
		Body:          msg.PlainBody,
		MsgType:       mevt.MsgNotice,
		Format:        mevt.FormatHTML,
		FormattedBody: msg.FormattedBody,
	}
	resp, err := s.client.SendMessageEvent(id.RoomID(channelID), mevt.EventMessage, content)
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", nil
	}
	return string(resp.EventID), nil
}

func (s *MatrixSink) NotifyRemoved(channelID string, msg render.Message) error {
	_, err := s.Post(channelID, msg)
	return err
}

func (s *MatrixSink) ResolveChannel(channelID string) (bool, error) {
	if channelID == "" {
		return false, errors.New("publish: empty channel id")
	}
	resp, err := s.client.JoinRoom(channelID, "", nil)
	if err != nil {
		return false, err
	}
	return resp != nil, nil
}
