// Package chat 实现实时连接网关：
// 连接注册表与握手、消息投递流水线、通话信令状态机和在线状态发布
package chat

import (
	"context"
	"encoding/json"
	"runtime/debug"
	"time"

	"nova_chat_server/internal/config"
	"nova_chat_server/internal/dao/mysql/repository"
	"nova_chat_server/internal/dao/redis"
	"nova_chat_server/internal/infrastructure/mq"
	"nova_chat_server/internal/service/gate"
	"nova_chat_server/pkg/constants"
	"nova_chat_server/pkg/errorx"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ChatServer 连接网关
// 持有注册表、通话跟踪器和所有下游依赖，事件经分发表路由到各 handler
type ChatServer struct {
	registry   *Registry
	presence   *PresenceService
	repos      *repository.Repositories
	cache      redis.AsyncCacheService
	dispatcher mq.Dispatcher
	gate       *gate.Service
	scheduler  Scheduler
	tracker    *callTracker
	now        func() time.Time

	ringTimeout   time.Duration
	callGrace     time.Duration
	catchupWindow time.Duration
	catchupLimit  int
	maxContent    int

	handlers map[string]func(*UserConn, json.RawMessage)
}

func NewChatServer(
	repos *repository.Repositories,
	cache redis.AsyncCacheService,
	dispatcher mq.Dispatcher,
	g *gate.Service,
	presence *PresenceService,
	scheduler Scheduler,
	cfg *config.GatewayConfig,
) *ChatServer {
	s := &ChatServer{
		registry:      presence.registry,
		presence:      presence,
		repos:         repos,
		cache:         cache,
		dispatcher:    dispatcher,
		gate:          g,
		scheduler:     scheduler,
		tracker:       newCallTracker(),
		now:           time.Now,
		ringTimeout:   constants.DEFAULT_RING_TIMEOUT,
		callGrace:     constants.DEFAULT_CALL_GRACE,
		catchupWindow: constants.CATCHUP_WINDOW,
		catchupLimit:  constants.CATCHUP_BATCH_LIMIT,
		maxContent:    constants.MAX_CONTENT_SIZE,
	}
	if cfg != nil {
		if cfg.RingTimeoutSeconds > 0 {
			s.ringTimeout = time.Duration(cfg.RingTimeoutSeconds) * time.Second
		}
		if cfg.CallGraceSeconds > 0 {
			s.callGrace = time.Duration(cfg.CallGraceSeconds) * time.Second
		}
		if cfg.CatchupWindowHours > 0 {
			s.catchupWindow = time.Duration(cfg.CatchupWindowHours) * time.Hour
		}
		if cfg.CatchupBatchLimit > 0 {
			s.catchupLimit = cfg.CatchupBatchLimit
		}
		if cfg.MaxContentSizeBytes > 0 {
			s.maxContent = cfg.MaxContentSizeBytes
		}
	}
	s.handlers = map[string]func(*UserConn, json.RawMessage){
		EventMessageSend:           s.handleSendMessage,
		EventConversationRead:      s.handleReadConversation,
		EventMessageRead:           s.handleReadMessage,
		EventTypingStart:           s.handleTypingStart,
		EventTypingStop:            s.handleTypingStop,
		EventConversationJoin:      s.handleConversationJoin,
		EventCallInitiate:          s.handleCallInitiate,
		EventCallAnswer:            s.handleCallAnswer,
		EventCallIceCandidate:      s.relaySignal(EventCallIceCandidate),
		EventCallRenegotiate:       s.relaySignal(EventCallRenegotiate),
		EventCallRenegotiateAnswer: s.relaySignal(EventCallRenegotiateAnswer),
		EventCallMediaState:        s.relaySignal(EventCallMediaState),
		EventCallEnd:               s.handleCallEnd,
		EventCallDecline:           s.handleCallDecline,
		EventPing:                  s.handlePing,
	}
	return s
}

// Registry 暴露注册表（REST 层在线状态兜底查询用）
func (s *ChatServer) Registry() *Registry {
	return s.registry
}

// Serve 接管一条刚升级完成的 WebSocket 连接，阻塞到连接结束
//
// 握手协议：升级时不做认证，第一帧必须是 connect{token}，
// 超时或校验失败直接断开。凭证从不出现在 URL 里。
func (s *ChatServer) Serve(wsConn *websocket.Conn) {
	uc, ok := s.handshake(wsConn)
	if !ok {
		_ = wsConn.Close()
		return
	}
	defer s.teardown(uc)

	go uc.writePump()
	s.afterConnect(uc)

	wsConn.SetReadLimit(maxFrameSize)
	_ = wsConn.SetReadDeadline(time.Now().Add(pongWait))
	wsConn.SetPongHandler(func(string) error {
		return wsConn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := wsConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				zap.L().Debug("connection closed unexpectedly",
					zap.String("conn_id", uc.ConnID), zap.Error(err))
			}
			return
		}
		s.dispatch(uc, data)
	}
}

// handshake 等待并校验 connect 帧
func (s *ChatServer) handshake(wsConn *websocket.Conn) (*UserConn, bool) {
	wsConn.SetReadLimit(maxFrameSize)
	_ = wsConn.SetReadDeadline(time.Now().Add(constants.CONNECT_DEADLINE))

	_, data, err := wsConn.ReadMessage()
	if err != nil {
		return nil, false
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Event != EventConnect {
		s.writeDirect(wsConn, mustMarshalEvent(EventError, ErrorPayload{
			Code:    errorx.CodeInvalidParam,
			Message: "第一帧必须是connect事件",
		}))
		return nil, false
	}
	var payload ConnectPayload
	if err := json.Unmarshal(env.Data, &payload); err != nil || payload.Token == "" {
		s.writeDirect(wsConn, mustMarshalEvent(EventError, ErrorPayload{
			Code:    errorx.CodeInvalidParam,
			Message: "connect事件缺少token",
		}))
		return nil, false
	}

	userID, deviceID, err := s.gate.Validate(context.Background(), payload.Token)
	if err != nil {
		s.writeDirect(wsConn, mustMarshalEvent(EventError, ErrorPayload{
			Code:    errorx.GetCode(err),
			Message: "凭证无效或已过期",
		}))
		return nil, false
	}

	return newUserConn(uuid.NewString(), userID, deviceID, wsConn), true
}

// afterConnect 握手成功后的收尾：登记、订阅、上线广播、补投
func (s *ChatServer) afterConnect(uc *UserConn) {
	first := s.registry.Register(uc.ConnID, uc.UserID, uc)

	// 订阅该用户参与的全部会话
	convUuids, err := s.repos.Member.FindConversationUuidsByUser(uc.UserID)
	if err != nil {
		zap.L().Error("load conversations for subscribe failed",
			zap.String("user", uc.UserID), zap.Error(err))
	} else if len(convUuids) > 0 {
		s.registry.Subscribe(uc.ConnID, convUuids...)
	}

	// 重连取消断线宽限期
	s.cancelGrace(uc.UserID)

	if first {
		s.presence.PublishOnline(context.Background(), uc.UserID, uc.ConnID)
	}

	_ = uc.WriteEvent(mustMarshalEvent(EventConnectOK, ConnectOKPayload{
		ConnID:   uc.ConnID,
		UserUuid: uc.UserID,
	}))

	s.catchUp(uc)

	s.cache.SubmitTask(func() {
		if err := s.repos.Device.TouchLastSeen(uc.DeviceID, s.now()); err != nil {
			zap.L().Warn("touch device last_seen failed", zap.Error(err))
		}
	})

	zap.L().Info("connection established",
		zap.String("conn_id", uc.ConnID),
		zap.String("user_id", uc.UserID),
		zap.String("device_id", uc.DeviceID))
}

// teardown 连接结束时的清理
func (s *ChatServer) teardown(uc *UserConn) {
	uc.Close()
	userID, last := s.registry.Unregister(uc.ConnID)
	if userID == "" {
		return
	}
	if last {
		s.presence.PublishOffline(context.Background(), userID)
		// 用户还在通话中的话，给重连留一个宽限期
		s.startGrace(userID)
	}
	zap.L().Info("connection closed",
		zap.String("conn_id", uc.ConnID),
		zap.String("user_id", userID),
		zap.Bool("last", last))
}

// dispatch 按事件名路由一帧，panic 只打断当前事件不打断连接
func (s *ChatServer) dispatch(uc *UserConn, data []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			zap.L().Error("event handler panic",
				zap.String("conn_id", uc.ConnID),
				zap.Any("panic", rec),
				zap.String("stack", string(debug.Stack())))
		}
	}()

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.sendError(uc, errorx.CodeInvalidParam, "无法解析的事件帧")
		return
	}
	handler, ok := s.handlers[env.Event]
	if !ok {
		s.sendError(uc, errorx.CodeInvalidParam, "未知事件: "+env.Event)
		return
	}
	handler(uc, env.Data)
}

func (s *ChatServer) handlePing(uc *UserConn, _ json.RawMessage) {
	_ = uc.WriteEvent(mustMarshalEvent(EventPong, nil))
}

// sendError 给单条连接发 error 事件，连接保持打开
func (s *ChatServer) sendError(uc *UserConn, code int, msg string) {
	_ = uc.WriteEvent(mustMarshalEvent(EventError, ErrorPayload{Code: code, Message: msg}))
}

// writeDirect 握手阶段的直接写（此时写循环尚未启动）
func (s *ChatServer) writeDirect(wsConn *websocket.Conn, data []byte) {
	if data == nil {
		return
	}
	_ = wsConn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = wsConn.WriteMessage(websocket.TextMessage, data)
}
