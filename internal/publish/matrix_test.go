package publish

import (
	"errors"
	"testing"

	"maunium.net/go/mautrix"
	mevt "maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/matrix-org/feedbot/internal/render"
)

type fakeMatrixClient struct {
	sendErr     error
	joinErr     error
	lastRoomID  id.RoomID
	lastContent interface{}
	eventID     id.EventID
}

func (f *fakeMatrixClient) JoinRoom(roomIDorAlias, serverName string, content interface{}) (*mautrix.RespJoinRoom, error) {
	if f.joinErr != nil {
		return nil, f.joinErr
	}
	return &mautrix.RespJoinRoom{RoomID: id.RoomID(roomIDorAlias)}, nil
}

func (f *fakeMatrixClient) SendMessageEvent(roomID id.RoomID, eventType mevt.Type, contentJSON interface{}, extra ...mautrix.ReqSendEvent) (*mautrix.RespSendEvent, error) {
	f.lastRoomID = roomID
	f.lastContent = contentJSON
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return &mautrix.RespSendEvent{EventID: f.eventID}, nil
}

func TestMatrixSinkPostReturnsEventID(t *testing.T) {
	fake := &fakeMatrixClient{eventID: id.EventID("$abc123")}
	sink := NewMatrixSink(fake)
	msgID, err := sink.Post("!room:example.org", render.Message{PlainBody: "hi", FormattedBody: "<b>hi</b>"})
	if err != nil {
		t.Fatalf("Post returned error: %v", err)
	}
	if msgID != "$abc123" {
		t.Fatalf("got message id %q, want $abc123", msgID)
	}
}

func TestMatrixSinkPostPropagatesError(t *testing.T) {
	fake := &fakeMatrixClient{sendErr: errors.New("boom")}
	sink := NewMatrixSink(fake)
	if _, err := sink.Post("!room:example.org", render.Message{}); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestMatrixSinkResolveChannel(t *testing.T) {
	fake := &fakeMatrixClient{}
	sink := NewMatrixSink(fake)
	ok, err := sink.ResolveChannel("!room:example.org")
	if err != nil || !ok {
		t.Fatalf("ResolveChannel = (%v, %v), want (true, nil)", ok, err)
	}
}

func TestMatrixSinkResolveChannelRejectsEmpty(t *testing.T) {
	sink := NewMatrixSink(&fakeMatrixClient{})
	if _, err := sink.ResolveChannel(""); err == nil {
		t.Fatal("expected error for empty channel id")
	}
}
