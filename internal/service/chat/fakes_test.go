package chat

import (
	"context"
	"sort"
	"sync"
	"time"

	"nova_chat_server/internal/dao/mysql/repository"
	"nova_chat_server/internal/infrastructure/mq"
	"nova_chat_server/internal/model"
	"nova_chat_server/pkg/enum/call/call_status_enum"
	"nova_chat_server/pkg/enum/message/message_status_enum"
	"nova_chat_server/pkg/errorx"

	"gorm.io/gorm"
)

// 本文件是 chat 包测试共用的内存假实现：
// 仓储假实现保留和真实现相同的守卫语义（状态只进不退、终态粘滞、唯一键裁决），
// 调度器假实现提供虚拟时钟，让超时路径不用真等。

func errNotFound() error {
	return errorx.New(errorx.CodeNotFound, "record not found")
}

// ==================== 缓存 ====================

type fakeCache struct {
	mu      sync.Mutex
	data    map[string]string
	down    bool // 模拟缓存整体不可用
	tasks   []func()
	syncRun bool // true 时 SubmitTask 同步执行
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string]string), syncRun: true}
}

func (c *fakeCache) Set(_ context.Context, key, value string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.down {
		return errorx.New(errorx.CodeCacheError, "cache down")
	}
	c.data[key] = value
	return nil
}

func (c *fakeCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.down {
		return "", errorx.New(errorx.CodeCacheError, "cache down")
	}
	return c.data[key], nil
}

func (c *fakeCache) GetOrError(ctx context.Context, key string) (string, error) {
	v, err := c.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if v == "" {
		return "", errNotFound()
	}
	return v, nil
}

func (c *fakeCache) MGet(_ context.Context, keys ...string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.down {
		return nil, errorx.New(errorx.CodeCacheError, "cache down")
	}
	values := make([]string, len(keys))
	for i, key := range keys {
		values[i] = c.data[key]
	}
	return values, nil
}

func (c *fakeCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.down {
		return errorx.New(errorx.CodeCacheError, "cache down")
	}
	delete(c.data, key)
	return nil
}

func (c *fakeCache) SubmitTask(action func()) {
	if c.syncRun {
		action()
		return
	}
	c.mu.Lock()
	c.tasks = append(c.tasks, action)
	c.mu.Unlock()
}

// ==================== 推送分发 ====================

type fakeDispatcher struct {
	mu      sync.Mutex
	notices []mq.PushNotice
}

func (d *fakeDispatcher) Notify(_ context.Context, notice mq.PushNotice) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notices = append(d.notices, notice)
	return nil
}

func (d *fakeDispatcher) Close() error { return nil }

func (d *fakeDispatcher) noticesFor(userUuid string) []mq.PushNotice {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []mq.PushNotice
	for _, n := range d.notices {
		if n.UserId == userUuid {
			out = append(out, n)
		}
	}
	return out
}

// ==================== 虚拟时钟调度器 ====================

type fakeTimer struct {
	deadline time.Time
	fn       func()
	stopped  bool
	fired    bool
}

func (t *fakeTimer) Stop() bool {
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

type fakeScheduler struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (s *fakeScheduler) AfterFunc(d time.Duration, fn func()) TimerHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	timer := &fakeTimer{deadline: s.now.Add(d), fn: fn}
	s.timers = append(s.timers, timer)
	return timer
}

func (s *fakeScheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Advance 推进虚拟时钟并触发到期的定时器回调
func (s *fakeScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	s.now = s.now.Add(d)
	var due []*fakeTimer
	for _, timer := range s.timers {
		if !timer.stopped && !timer.fired && !timer.deadline.After(s.now) {
			timer.fired = true
			due = append(due, timer)
		}
	}
	s.mu.Unlock()
	for _, timer := range due {
		timer.fn()
	}
}

// ==================== 写入端 ====================

type fakeSink struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func (s *fakeSink) WriteEvent(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, data)
	return nil
}

func (s *fakeSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *fakeSink) frameCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

// ==================== 仓储 ====================

type fakeStore struct {
	mu        sync.Mutex
	users     map[string]*model.UserInfo
	devices   map[string]*model.Device
	convs     map[string]*model.Conversation // key: uuid
	pairKeys  map[string]string              // pair_key -> conv uuid
	members   map[string][]model.ConversationMember
	messages  map[int64]*model.Message
	hides     map[int64]map[string]struct{}
	calls     map[int64]*model.Call
	callParts map[int64][]model.CallParticipant
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:     make(map[string]*model.UserInfo),
		devices:   make(map[string]*model.Device),
		convs:     make(map[string]*model.Conversation),
		pairKeys:  make(map[string]string),
		members:   make(map[string][]model.ConversationMember),
		messages:  make(map[int64]*model.Message),
		hides:     make(map[int64]map[string]struct{}),
		calls:     make(map[int64]*model.Call),
		callParts: make(map[int64][]model.CallParticipant),
	}
}

func (st *fakeStore) addUser(uuid string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.users[uuid] = &model.UserInfo{Uuid: uuid, Nickname: uuid}
}

func (st *fakeStore) addConversation(uuid string, memberUuids ...string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.convs[uuid] = &model.Conversation{Uuid: uuid, Type: model.ConversationGroup}
	for _, userUuid := range memberUuids {
		st.members[uuid] = append(st.members[uuid],
			model.ConversationMember{ConversationUuid: uuid, UserUuid: userUuid})
	}
}

func (st *fakeStore) repositories() *repository.Repositories {
	return repository.NewTestRepositories(
		&fakeUserRepo{st}, &fakeDeviceRepo{st}, &fakeSessionRepo{},
		&fakeConvRepo{st}, &fakeMemberRepo{st}, &fakeMessageRepo{st}, &fakeCallRepo{st},
	)
}

type fakeUserRepo struct{ st *fakeStore }

func (r *fakeUserRepo) Create(user *model.UserInfo) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	r.st.users[user.Uuid] = user
	return nil
}

func (r *fakeUserRepo) FindByUuid(uuid string) (*model.UserInfo, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if user, ok := r.st.users[uuid]; ok {
		return user, nil
	}
	return nil, errNotFound()
}

func (r *fakeUserRepo) FindByTelephone(telephone string) (*model.UserInfo, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for _, user := range r.st.users {
		if user.Telephone == telephone {
			return user, nil
		}
	}
	return nil, errNotFound()
}

func (r *fakeUserRepo) ExistsByUuid(uuid string) (bool, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	_, ok := r.st.users[uuid]
	return ok, nil
}

func (r *fakeUserRepo) UpdateLastOnline(string, time.Time) error  { return nil }
func (r *fakeUserRepo) UpdateLastOffline(string, time.Time) error { return nil }

type fakeDeviceRepo struct{ st *fakeStore }

func (r *fakeDeviceRepo) Create(device *model.Device) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	r.st.devices[device.Uuid] = device
	return nil
}

func (r *fakeDeviceRepo) FindByUuid(uuid string) (*model.Device, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if device, ok := r.st.devices[uuid]; ok {
		return device, nil
	}
	return nil, errNotFound()
}

func (r *fakeDeviceRepo) FindByUser(userUuid string) ([]model.Device, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var out []model.Device
	for _, device := range r.st.devices {
		if device.UserUuid == userUuid {
			out = append(out, *device)
		}
	}
	return out, nil
}

func (r *fakeDeviceRepo) TouchLastSeen(string, time.Time) error { return nil }
func (r *fakeDeviceRepo) Delete(string) error                   { return nil }

// fakeSessionRepo chat 包的测试不经过握手认证，只需满足接口
type fakeSessionRepo struct{}

func (r *fakeSessionRepo) Create(*model.UserSession) error { return nil }
func (r *fakeSessionRepo) FindActiveByAccessHash(string, time.Time) (*model.UserSession, error) {
	return nil, errNotFound()
}
func (r *fakeSessionRepo) FindActiveByRefreshHash(string, time.Time) (*model.UserSession, error) {
	return nil, errNotFound()
}
func (r *fakeSessionRepo) FindByUser(string) ([]model.UserSession, error) { return nil, nil }
func (r *fakeSessionRepo) FindByUserAndDevice(string, string) ([]model.UserSession, error) {
	return nil, nil
}
func (r *fakeSessionRepo) DeleteByUserAndDevice(string, string) error { return nil }
func (r *fakeSessionRepo) DeleteByUser(string) error                  { return nil }
func (r *fakeSessionRepo) TouchLastUsed(string, time.Time) error      { return nil }

type fakeConvRepo struct{ st *fakeStore }

func (r *fakeConvRepo) Create(conv *model.Conversation) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if conv.PairKey.Valid {
		if _, exists := r.st.pairKeys[conv.PairKey.String]; exists {
			// 和真实现一样用 gorm 的唯一键错误裁决竞争
			return gorm.ErrDuplicatedKey
		}
		r.st.pairKeys[conv.PairKey.String] = conv.Uuid
	}
	clone := *conv
	r.st.convs[conv.Uuid] = &clone
	return nil
}

func (r *fakeConvRepo) FindByUuid(uuid string) (*model.Conversation, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if conv, ok := r.st.convs[uuid]; ok {
		return conv, nil
	}
	return nil, errNotFound()
}

func (r *fakeConvRepo) FindDirectByPairKey(pairKey string) (*model.Conversation, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if uuid, ok := r.st.pairKeys[pairKey]; ok {
		return r.st.convs[uuid], nil
	}
	return nil, errNotFound()
}

func (r *fakeConvRepo) TouchLastMessage(uuid, summary string, t time.Time) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if conv, ok := r.st.convs[uuid]; ok {
		conv.LastMessage = summary
		conv.LastMessageAt = nullTime(t)
	}
	return nil
}

type fakeMemberRepo struct{ st *fakeStore }

func (r *fakeMemberRepo) CreateBatch(members []model.ConversationMember) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for _, m := range members {
		r.st.members[m.ConversationUuid] = append(r.st.members[m.ConversationUuid], m)
	}
	return nil
}

func (r *fakeMemberRepo) FindByConversation(convUuid string) ([]model.ConversationMember, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	return append([]model.ConversationMember(nil), r.st.members[convUuid]...), nil
}

func (r *fakeMemberRepo) FindConversationUuidsByUser(userUuid string) ([]string, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var out []string
	for convUuid, members := range r.st.members {
		for _, m := range members {
			if m.UserUuid == userUuid {
				out = append(out, convUuid)
				break
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func (r *fakeMemberRepo) IsMember(convUuid, userUuid string) (bool, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for _, m := range r.st.members[convUuid] {
		if m.UserUuid == userUuid {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeMemberRepo) UpdateLastRead(convUuid, userUuid string, t time.Time) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	members := r.st.members[convUuid]
	for i := range members {
		if members[i].UserUuid == userUuid {
			members[i].LastReadAt = nullTime(t)
		}
	}
	return nil
}

type fakeMessageRepo struct{ st *fakeStore }

func (r *fakeMessageRepo) Create(message *model.Message) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	clone := *message
	r.st.messages[message.Uuid] = &clone
	return nil
}

func (r *fakeMessageRepo) FindByUuid(uuid int64) (*model.Message, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if msg, ok := r.st.messages[uuid]; ok {
		return msg, nil
	}
	return nil, errNotFound()
}

func (r *fakeMessageRepo) FindByConversationForUser(convUuid, userUuid string, limit int) ([]model.Message, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var out []model.Message
	for _, msg := range r.st.messages {
		if msg.ConversationUuid != convUuid {
			continue
		}
		if hidden, ok := r.st.hides[msg.Uuid]; ok {
			if _, isHidden := hidden[userUuid]; isHidden {
				continue
			}
		}
		out = append(out, *msg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Uuid < out[j].Uuid })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// UpdateStatusForward 和真实现一致：status < to 才更新
func (r *fakeMessageRepo) UpdateStatusForward(uuids []int64, to int8) (int64, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var rows int64
	for _, uuid := range uuids {
		if msg, ok := r.st.messages[uuid]; ok && msg.Status < to {
			msg.Status = to
			rows++
		}
	}
	return rows, nil
}

func (r *fakeMessageRepo) AdvanceConversationStatus(convUuid, excludeSender string, to int8) (int64, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var rows int64
	for _, msg := range r.st.messages {
		if msg.ConversationUuid == convUuid && msg.SendId != excludeSender && msg.Status < to {
			msg.Status = to
			rows++
		}
	}
	return rows, nil
}

func (r *fakeMessageRepo) FindUndelivered(userUuid string, since time.Time, limit int) ([]model.Message, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	memberOf := make(map[string]struct{})
	for convUuid, members := range r.st.members {
		for _, m := range members {
			if m.UserUuid == userUuid {
				memberOf[convUuid] = struct{}{}
			}
		}
	}
	var out []model.Message
	for _, msg := range r.st.messages {
		if _, ok := memberOf[msg.ConversationUuid]; !ok {
			continue
		}
		if msg.SendId == userUuid || msg.Status != message_status_enum.Sent {
			continue
		}
		if msg.SendAt.Valid && msg.SendAt.Time.Before(since) {
			continue
		}
		out = append(out, *msg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Uuid < out[j].Uuid })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeMessageRepo) HideForUser(msgUuid int64, userUuid string) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if _, ok := r.st.messages[msgUuid]; !ok {
		return errNotFound()
	}
	if r.st.hides[msgUuid] == nil {
		r.st.hides[msgUuid] = make(map[string]struct{})
	}
	r.st.hides[msgUuid][userUuid] = struct{}{}
	return nil
}

type fakeCallRepo struct{ st *fakeStore }

func (r *fakeCallRepo) CreateWithParticipants(call *model.Call, parts []model.CallParticipant) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	clone := *call
	r.st.calls[call.Uuid] = &clone
	r.st.callParts[call.Uuid] = append([]model.CallParticipant(nil), parts...)
	return nil
}

func (r *fakeCallRepo) FindByUuid(uuid int64) (*model.Call, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if call, ok := r.st.calls[uuid]; ok {
		return call, nil
	}
	return nil, errNotFound()
}

// Answer 只允许响铃 -> 通话中
func (r *fakeCallRepo) Answer(uuid int64, _ string, startedAt time.Time) (bool, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	call, ok := r.st.calls[uuid]
	if !ok || call.Status != call_status_enum.Ringing {
		return false, nil
	}
	call.Status = call_status_enum.InProgress
	call.StartedAt = nullTime(startedAt)
	return true, nil
}

// Terminate 终态粘滞：已在终态的行不再转移
func (r *fakeCallRepo) Terminate(uuid int64, to int8, endedAt time.Time, durationSecs int64, endedBy string) (bool, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	call, ok := r.st.calls[uuid]
	if !ok || call_status_enum.IsTerminal(call.Status) {
		return false, nil
	}
	call.Status = to
	call.EndedAt = nullTime(endedAt)
	call.DurationSecs = durationSecs
	call.EndedBy = endedBy
	return true, nil
}
