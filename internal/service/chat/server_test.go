package chat

import (
	"encoding/json"
	"fmt"
	"testing"
)

// testEnv 组装一套全内存依赖的网关实例
// 时钟和定时器都走 fakeScheduler，测试里用 Advance 推进时间
type testEnv struct {
	store      *fakeStore
	cache      *fakeCache
	dispatcher *fakeDispatcher
	scheduler  *fakeScheduler
	registry   *Registry
	server     *ChatServer
	connSeq    int
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := newFakeStore()
	cache := newFakeCache()
	dispatcher := &fakeDispatcher{}
	scheduler := newFakeScheduler()
	registry := NewRegistry()

	presence := NewPresenceService(cache, registry, &fakeUserRepo{store}, 0)
	presence.now = scheduler.Now

	server := NewChatServer(store.repositories(), cache, dispatcher, nil, presence, scheduler, nil)
	server.now = scheduler.Now

	return &testEnv{
		store:      store,
		cache:      cache,
		dispatcher: dispatcher,
		scheduler:  scheduler,
		registry:   registry,
		server:     server,
	}
}

// connect 模拟一条完成握手的连接（跳过真实 WebSocket 升级和认证）
func (e *testEnv) connect(userUuid string) *UserConn {
	e.connSeq++
	uc := newUserConn(fmt.Sprintf("conn-%d", e.connSeq), userUuid, "D-"+userUuid, nil)
	e.server.afterConnect(uc)
	return uc
}

// disconnect 模拟连接断开后的清理路径
func (e *testEnv) disconnect(uc *UserConn) {
	e.server.teardown(uc)
}

// drain 取出连接上当前积压的全部出站帧
func drain(t *testing.T, uc *UserConn) []Envelope {
	t.Helper()
	var out []Envelope
	for {
		select {
		case data := <-uc.sendBack:
			var env Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				t.Fatalf("malformed outbound frame: %v", err)
			}
			out = append(out, env)
		default:
			return out
		}
	}
}

// eventsOf 在一组帧里按事件名过滤
func eventsOf(envs []Envelope, name string) []Envelope {
	var out []Envelope
	for _, env := range envs {
		if env.Event == name {
			out = append(out, env)
		}
	}
	return out
}

// decodeData 解码事件载荷
func decodeData(t *testing.T, env Envelope, target any) {
	t.Helper()
	if err := json.Unmarshal(env.Data, target); err != nil {
		t.Fatalf("decode %s payload: %v", env.Event, err)
	}
}

// send 直接走分发表投一帧入站事件
func (e *testEnv) send(t *testing.T, uc *UserConn, event string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	frame, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	e.server.dispatch(uc, frame)
}

func TestDispatchUnknownEventKeepsConnection(t *testing.T) {
	env := newTestEnv(t)
	env.store.addUser("U1")
	uc := env.connect("U1")
	drain(t, uc)

	env.server.dispatch(uc, []byte(`{"event":"no.such.event"}`))

	frames := drain(t, uc)
	if len(eventsOf(frames, EventError)) != 1 {
		t.Fatalf("expected one error event, got %d frames", len(frames))
	}
	// 连接未被关闭，还能继续收帧
	env.server.dispatch(uc, []byte(`{"event":"ping"}`))
	if len(eventsOf(drain(t, uc), EventPong)) != 1 {
		t.Fatal("connection should stay usable after an error event")
	}
}

func TestDispatchMalformedFrame(t *testing.T) {
	env := newTestEnv(t)
	env.store.addUser("U1")
	uc := env.connect("U1")
	drain(t, uc)

	env.server.dispatch(uc, []byte(`{not json`))
	if len(eventsOf(drain(t, uc), EventError)) != 1 {
		t.Fatal("malformed frame should produce an error event")
	}
}
