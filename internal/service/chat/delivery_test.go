package chat

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"testing"

	"nova_chat_server/internal/model"
	"nova_chat_server/pkg/enum/message/message_status_enum"
	"nova_chat_server/pkg/enum/message/message_type_enum"
)

func TestDirectMessageRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	env.store.addUser("U1")
	env.store.addUser("U2")
	alice := env.connect("U1")
	bob := env.connect("U2")
	drain(t, alice)
	drain(t, bob)

	env.send(t, alice, EventMessageSend, SendMessagePayload{
		TargetUuid: "U2",
		Type:       message_type_enum.Text,
		Content:    "ciphertext-blob",
		ClientTag:  "tag-1",
	})

	aliceFrames := drain(t, alice)
	acks := eventsOf(aliceFrames, EventMessageSent)
	if len(acks) != 1 {
		t.Fatalf("sender should get exactly one ack, got %d", len(acks))
	}
	var ack MessageSentAck
	decodeData(t, acks[0], &ack)
	if ack.ClientTag != "tag-1" {
		t.Fatalf("client tag must round-trip, got %q", ack.ClientTag)
	}

	// 对端在线：发送方还应收到 delivered 状态通知
	statuses := eventsOf(aliceFrames, EventMessageStatus)
	if len(statuses) != 1 {
		t.Fatalf("expected one delivered notification, got %d", len(statuses))
	}
	var status MessageStatusPayload
	decodeData(t, statuses[0], &status)
	if status.Status != message_status_enum.Delivered {
		t.Fatalf("expected delivered status, got %d", status.Status)
	}

	bobFrames := drain(t, bob)
	if len(eventsOf(bobFrames, EventConversationCreated)) != 1 {
		t.Fatal("recipient should learn about the new conversation")
	}
	received := eventsOf(bobFrames, EventMessageReceived)
	if len(received) != 1 {
		t.Fatalf("recipient should get the message once, got %d", len(received))
	}
	var msg struct {
		Content string `json:"content"`
	}
	decodeData(t, received[0], &msg)
	if msg.Content != "ciphertext-blob" {
		t.Fatal("content must be relayed opaquely")
	}

	msgUuid, _ := strconv.ParseInt(ack.MessageUuid, 10, 64)
	stored := env.store.messages[msgUuid]
	if stored == nil || stored.Status != message_status_enum.Delivered {
		t.Fatal("stored message should be delivered")
	}
}

func TestSendMessageValidation(t *testing.T) {
	env := newTestEnv(t)
	env.store.addUser("U1")
	env.store.addUser("U2")
	env.store.addConversation("CONV1", "U2", "U3")
	uc := env.connect("U1")
	drain(t, uc)

	cases := []struct {
		name    string
		payload SendMessagePayload
	}{
		{"unknown type", SendMessagePayload{TargetUuid: "U2", Type: 9, Content: "x"}},
		{"empty content", SendMessagePayload{TargetUuid: "U2", Type: message_type_enum.Text}},
		{"oversize content", SendMessagePayload{TargetUuid: "U2", Type: message_type_enum.Text,
			Content: strings.Repeat("a", env.server.maxContent+1)}},
		{"self target", SendMessagePayload{TargetUuid: "U1", Type: message_type_enum.Text, Content: "x"}},
		{"not a member", SendMessagePayload{ConversationUuid: "CONV1", Type: message_type_enum.Text, Content: "x"}},
	}
	for _, tc := range cases {
		env.send(t, uc, EventMessageSend, tc.payload)
		frames := drain(t, uc)
		if len(eventsOf(frames, EventError)) != 1 {
			t.Fatalf("%s: expected one error event, got %+v", tc.name, frames)
		}
		if len(env.store.messages) != 0 {
			t.Fatalf("%s: rejected send must not persist anything", tc.name)
		}
	}
}

func TestOfflineDeliveryPushOnceAndCatchup(t *testing.T) {
	env := newTestEnv(t)
	env.store.addUser("U1")
	env.store.addUser("U2")
	alice := env.connect("U1")
	drain(t, alice)

	env.send(t, alice, EventMessageSend, SendMessagePayload{
		TargetUuid: "U2",
		Type:       message_type_enum.Text,
		Content:    "offline-msg",
	})
	aliceFrames := drain(t, alice)
	if len(eventsOf(aliceFrames, EventMessageStatus)) != 0 {
		t.Fatal("no delivered notification while the recipient is offline")
	}
	if got := len(env.dispatcher.noticesFor("U2")); got != 1 {
		t.Fatalf("offline recipient should get exactly one push, got %d", got)
	}

	// 收件人上线：补投送达消息并回一条状态通知
	bob := env.connect("U2")
	bobFrames := drain(t, bob)
	if len(eventsOf(bobFrames, EventMessageReceived)) != 1 {
		t.Fatal("catch-up should deliver the pending message once")
	}
	aliceFrames = drain(t, alice)
	statuses := eventsOf(aliceFrames, EventMessageStatus)
	if len(statuses) != 1 {
		t.Fatalf("sender should get one catch-up status notification, got %d", len(statuses))
	}

	// 再次重连不重复补投
	env.disconnect(bob)
	bob2 := env.connect("U2")
	if got := len(eventsOf(drain(t, bob2), EventMessageReceived)); got != 0 {
		t.Fatalf("already-delivered message must not be re-sent, got %d", got)
	}
}

func TestCatchupGroupsStatusBySenderAndConversation(t *testing.T) {
	env := newTestEnv(t)
	env.store.addUser("U1")
	env.store.addUser("U2")
	env.store.addConversation("CONV1", "U1", "U2")
	alice := env.connect("U1")
	drain(t, alice)

	// 同一会话同一发送者积压两条
	for _, content := range []string{"m1", "m2"} {
		env.send(t, alice, EventMessageSend, SendMessagePayload{
			ConversationUuid: "CONV1",
			Type:             message_type_enum.Text,
			Content:          content,
		})
	}
	drain(t, alice)

	bob := env.connect("U2")
	if got := len(eventsOf(drain(t, bob), EventMessageReceived)); got != 2 {
		t.Fatalf("expected both pending messages, got %d", got)
	}
	statuses := eventsOf(drain(t, alice), EventMessageStatus)
	if len(statuses) != 1 {
		t.Fatalf("one status notification per (conversation, sender), got %d", len(statuses))
	}
	var status MessageStatusPayload
	decodeData(t, statuses[0], &status)
	if len(status.MessageUuids) != 2 {
		t.Fatalf("notification should carry both message uuids, got %d", len(status.MessageUuids))
	}
}

func TestReadConversationMonotonicAndReceipt(t *testing.T) {
	env := newTestEnv(t)
	env.store.addUser("U1")
	env.store.addUser("U2")
	env.store.addConversation("CONV1", "U1", "U2")
	alice := env.connect("U1")
	bob := env.connect("U2")
	drain(t, alice)
	drain(t, bob)

	env.send(t, alice, EventMessageSend, SendMessagePayload{
		ConversationUuid: "CONV1",
		Type:             message_type_enum.Text,
		Content:          "hello",
	})
	drain(t, alice)
	drain(t, bob)

	env.send(t, bob, EventConversationRead, ReadConversationPayload{ConversationUuid: "CONV1"})
	receipts := eventsOf(drain(t, alice), EventReadReceipt)
	if len(receipts) != 1 {
		t.Fatalf("sender should get one read receipt, got %d", len(receipts))
	}
	for _, msg := range env.store.messages {
		if msg.Status != message_status_enum.Read {
			t.Fatalf("message should be read, got status %d", msg.Status)
		}
	}

	// 重复标记已读：没有新行受影响，不再发回执
	env.send(t, bob, EventConversationRead, ReadConversationPayload{ConversationUuid: "CONV1"})
	if got := len(eventsOf(drain(t, alice), EventReadReceipt)); got != 0 {
		t.Fatalf("repeated read must not produce another receipt, got %d", got)
	}

	// 已读之后的送达推进必须是无操作（状态只进不退）
	for uuid := range env.store.messages {
		rows, err := env.server.repos.Message.UpdateStatusForward([]int64{uuid}, message_status_enum.Delivered)
		if err != nil || rows != 0 {
			t.Fatalf("read message must not regress to delivered, rows=%d err=%v", rows, err)
		}
	}
}

func TestReadConversationRequiresMembership(t *testing.T) {
	env := newTestEnv(t)
	env.store.addUser("U3")
	env.store.addConversation("CONV1", "U1", "U2")
	outsider := env.connect("U3")
	drain(t, outsider)

	env.send(t, outsider, EventConversationRead, ReadConversationPayload{ConversationUuid: "CONV1"})
	if got := len(eventsOf(drain(t, outsider), EventError)); got != 1 {
		t.Fatalf("non-member read should be rejected, got %d error events", got)
	}
}

func TestConcurrentDirectCreateSingleConversation(t *testing.T) {
	env := newTestEnv(t)
	env.store.addUser("U1")
	env.store.addUser("U2")
	alice := env.connect("U1")
	bob := env.connect("U2")
	drain(t, alice)
	drain(t, bob)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		env.send(t, alice, EventMessageSend, SendMessagePayload{
			TargetUuid: "U2", Type: message_type_enum.Text, Content: "from-alice",
		})
	}()
	go func() {
		defer wg.Done()
		env.send(t, bob, EventMessageSend, SendMessagePayload{
			TargetUuid: "U1", Type: message_type_enum.Text, Content: "from-bob",
		})
	}()
	wg.Wait()

	if got := len(env.store.convs); got != 1 {
		t.Fatalf("both peers must land in one conversation, got %d", got)
	}
	pairKey := model.DirectPairKey("U1", "U2")
	if _, ok := env.store.pairKeys[pairKey]; !ok {
		t.Fatal("conversation should be keyed by the sorted pair key")
	}
	convUuid := env.store.pairKeys[pairKey]
	for _, msg := range env.store.messages {
		if msg.ConversationUuid != convUuid {
			t.Fatal("all messages must belong to the single surviving conversation")
		}
	}
}

func TestHistoryFiltersHiddenMessages(t *testing.T) {
	env := newTestEnv(t)
	env.store.addUser("U1")
	env.store.addUser("U2")
	env.store.addConversation("CONV1", "U1", "U2")
	alice := env.connect("U1")
	drain(t, alice)

	env.send(t, alice, EventMessageSend, SendMessagePayload{
		ConversationUuid: "CONV1", Type: message_type_enum.Text, Content: "visible",
	})
	env.send(t, alice, EventMessageSend, SendMessagePayload{
		ConversationUuid: "CONV1", Type: message_type_enum.Text, Content: "hidden-later",
	})
	drain(t, alice)

	var hiddenUuid int64
	for uuid, msg := range env.store.messages {
		if msg.Content == "hidden-later" {
			hiddenUuid = uuid
		}
	}
	if err := env.server.HideMessage(context.Background(), hiddenUuid, "U2"); err != nil {
		t.Fatalf("hide failed: %v", err)
	}

	// U2 的历史里看不到，U1 的不受影响
	bobHistory, err := env.server.History(context.Background(), "CONV1", "U2", 50)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(bobHistory) != 1 || bobHistory[0].Content != "visible" {
		t.Fatalf("hidden message must be filtered for the hiding user, got %+v", bobHistory)
	}
	aliceHistory, err := env.server.History(context.Background(), "CONV1", "U1", 50)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(aliceHistory) != 2 {
		t.Fatalf("other participants keep the full history, got %d", len(aliceHistory))
	}
}

func TestTypingRelay(t *testing.T) {
	env := newTestEnv(t)
	env.store.addUser("U1")
	env.store.addUser("U2")
	env.store.addConversation("CONV1", "U1", "U2")
	alice := env.connect("U1")
	bob := env.connect("U2")
	drain(t, alice)
	drain(t, bob)

	env.send(t, alice, EventTypingStart, TypingPayload{ConversationUuid: "CONV1"})
	frames := eventsOf(drain(t, bob), EventTypingStart)
	if len(frames) != 1 {
		t.Fatalf("peer should see typing.start once, got %d", len(frames))
	}
	var notify TypingNotifyPayload
	decodeData(t, frames[0], &notify)
	if notify.UserUuid != "U1" {
		t.Fatalf("typing notification should name the typist, got %q", notify.UserUuid)
	}
	if len(drain(t, alice)) != 0 {
		t.Fatal("typist must not receive their own typing relay")
	}
}
