package chat

import "sync"

// Registry 连接注册表
// 维护三张映射：连接号->写入端、用户->连接号集合、会话->订阅连接号集合
// 全部修改在同一把读写锁下原子完成；任何 IO 都在锁外做（先快照再写）
type Registry struct {
	mu    sync.RWMutex
	conns map[string]registryEntry
	users map[string]map[string]struct{} // userID -> set(connID)
	convs map[string]map[string]struct{} // convUuid -> set(connID)
	subs  map[string]map[string]struct{} // connID -> set(convUuid)，注销时反向清理用
}

type registryEntry struct {
	userID string
	sink   Sink
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]registryEntry),
		users: make(map[string]map[string]struct{}),
		convs: make(map[string]map[string]struct{}),
		subs:  make(map[string]map[string]struct{}),
	}
}

// Register 登记一条连接，返回是否是该用户的第一条连接
func (r *Registry) Register(connID, userID string, sink Sink) (first bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[connID] = registryEntry{userID: userID, sink: sink}
	set, ok := r.users[userID]
	if !ok {
		set = make(map[string]struct{})
		r.users[userID] = set
	}
	first = len(set) == 0
	set[connID] = struct{}{}
	return first
}

// Unregister 注销一条连接，返回其用户和是否是该用户最后一条连接
// 对未登记的连接号调用是无害的
func (r *Registry) Unregister(connID string) (userID string, last bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.conns[connID]
	if !ok {
		return "", false
	}
	delete(r.conns, connID)
	userID = entry.userID
	if set, ok := r.users[userID]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(r.users, userID)
			last = true
		}
	}
	for convUuid := range r.subs[connID] {
		if set, ok := r.convs[convUuid]; ok {
			delete(set, connID)
			if len(set) == 0 {
				delete(r.convs, convUuid)
			}
		}
	}
	delete(r.subs, connID)
	return userID, last
}

// Subscribe 把连接加入若干会话的订阅集合
func (r *Registry) Subscribe(connID string, convUuids ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[connID]; !ok {
		return
	}
	subSet, ok := r.subs[connID]
	if !ok {
		subSet = make(map[string]struct{})
		r.subs[connID] = subSet
	}
	for _, convUuid := range convUuids {
		subSet[convUuid] = struct{}{}
		convSet, ok := r.convs[convUuid]
		if !ok {
			convSet = make(map[string]struct{})
			r.convs[convUuid] = convSet
		}
		convSet[connID] = struct{}{}
	}
}

// SubscribeUser 把某用户当前的所有连接订阅到一个会话
// 在线期间被拉进新会话时用
func (r *Registry) SubscribeUser(userID, convUuid string) {
	r.mu.RLock()
	connIDs := make([]string, 0, len(r.users[userID]))
	for connID := range r.users[userID] {
		connIDs = append(connIDs, connID)
	}
	r.mu.RUnlock()
	for _, connID := range connIDs {
		r.Subscribe(connID, convUuid)
	}
}

// HasConnections 判断用户当前是否有在线连接
func (r *Registry) HasConnections(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userID]) > 0
}

// SendToUser 给某用户的所有连接写一帧，返回是否至少投给了一条连接
func (r *Registry) SendToUser(userID string, data []byte) bool {
	r.mu.RLock()
	sinks := make([]Sink, 0, len(r.users[userID]))
	for connID := range r.users[userID] {
		if entry, ok := r.conns[connID]; ok {
			sinks = append(sinks, entry.sink)
		}
	}
	r.mu.RUnlock()

	for _, sink := range sinks {
		_ = sink.WriteEvent(data)
	}
	return len(sinks) > 0
}

// BroadcastToConversation 给订阅了某会话的连接广播一帧
// exceptUser 非空时跳过该用户的全部连接（通常是动作发起者自己）
func (r *Registry) BroadcastToConversation(convUuid, exceptUser string, data []byte) {
	r.mu.RLock()
	sinks := make([]Sink, 0, len(r.convs[convUuid]))
	for connID := range r.convs[convUuid] {
		entry, ok := r.conns[connID]
		if !ok || entry.userID == exceptUser {
			continue
		}
		sinks = append(sinks, entry.sink)
	}
	r.mu.RUnlock()

	for _, sink := range sinks {
		_ = sink.WriteEvent(data)
	}
}

// BroadcastAll 给所有连接广播一帧（上下线通知用）
func (r *Registry) BroadcastAll(exceptUser string, data []byte) {
	r.mu.RLock()
	sinks := make([]Sink, 0, len(r.conns))
	for _, entry := range r.conns {
		if entry.userID == exceptUser {
			continue
		}
		sinks = append(sinks, entry.sink)
	}
	r.mu.RUnlock()

	for _, sink := range sinks {
		_ = sink.WriteEvent(data)
	}
}
