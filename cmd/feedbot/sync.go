package main

import (
	"strings"

	log "github.com/sirupsen/logrus"
	"maunium.net/go/mautrix"
	mevt "maunium.net/go/mautrix/event"

	"github.com/matrix-org/feedbot/internal/command"
	"github.com/matrix-org/feedbot/internal/metrics"
)

// startSync registers the message and invite handlers on client's syncer and
// begins the long-running sync loop. Grounded on clients.go's initClient/
// onMessageEvent/onRoomMemberEvent: one syncer, one m.room.message handler
// that tokenizes and dispatches chat commands, one invite-autojoin handler.
// Unlike the teacher, there's exactly one bot identity here, so the whole
// multi-client registry initClient manages is unnecessary.
func startSync(client *mautrix.Client, commands []command.Command) {
	syncer, ok := client.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		log.Error("feedbot: client syncer is not a *mautrix.DefaultSyncer, cannot register handlers")
		return
	}

	syncer.OnEventType(mevt.EventMessage, func(_ mautrix.EventSource, event *mevt.Event) {
		onMessageEvent(client, commands, event)
	})
	syncer.OnEventType(mevt.StateMember, func(_ mautrix.EventSource, event *mevt.Event) {
		onRoomMemberEvent(client, event)
	})

	go func() {
		if err := client.Sync(); err != nil {
			log.WithError(err).Error("feedbot: fatal sync error")
		}
	}()
}

func onMessageEvent(client *mautrix.Client, commands []command.Command, event *mevt.Event) {
	if err := event.Content.ParseRaw(mevt.EventMessage); err != nil {
		return
	}
	message := event.Content.AsMessage()
	body := message.Body
	if body == "" || message.MsgType == mevt.MsgNotice {
		return // m.notice is our own reply type; ignore to prevent loops
	}
	if body[0] != '!' {
		return
	}

	args := command.Tokenize(body[1:])
	if len(args) == 0 {
		return
	}

	ctx := command.Context{
		ChannelID: event.RoomID.String(),
		ServerID:  homeserverOf(event.Sender.String()),
		UserID:    event.Sender.String(),
	}

	reply, matched := command.Dispatch(commands, ctx, args)
	if !matched {
		return
	}
	metrics.IncrementCommand(args[0], metrics.StatusSuccess)

	content := mevt.MessageEventContent{MsgType: mevt.MsgNotice, Body: reply}
	if _, err := client.SendMessageEvent(event.RoomID, mevt.EventMessage, content); err != nil {
		log.WithError(err).WithField("room_id", event.RoomID).Warn("feedbot: failed to send command reply")
	}
}

func onRoomMemberEvent(client *mautrix.Client, event *mevt.Event) {
	if err := event.Content.ParseRaw(mevt.StateMember); err != nil {
		return
	}
	if event.StateKey == nil || *event.StateKey != client.UserID.String() {
		return
	}
	if event.Content.AsMember().Membership != "invite" {
		return
	}
	log.WithFields(log.Fields{"room_id": event.RoomID, "inviter": event.Sender}).Info("feedbot: accepting invite")
	if _, err := client.JoinRoom(event.RoomID.String(), "", nil); err != nil {
		log.WithError(err).WithField("room_id", event.RoomID).Warn("feedbot: failed to accept invite")
	}
}

// homeserverOf extracts the server name portion of a Matrix user or room ID
// ("@user:example.org" -> "example.org"), used to scope subscriptions per
// homeserver the way spec.md's server_id field requires.
func homeserverOf(matrixID string) string {
	if i := strings.IndexByte(matrixID, ':'); i >= 0 {
		return matrixID[i+1:]
	}
	return matrixID
}
