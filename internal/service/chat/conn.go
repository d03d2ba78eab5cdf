package chat

import (
	"sync"
	"time"

	"nova_chat_server/pkg/constants"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second // 单次写操作的超时
	pongWait   = 60 * time.Second // 等待 pong 的最长时间，超过视为死连接
	pingPeriod = (pongWait * 9) / 10

	// 读帧上限：密文内容上限再加信封和信令字段的余量
	maxFrameSize = constants.MAX_CONTENT_SIZE + 4*1024
)

// Sink 出站写入端
// 注册表只依赖这个接口，测试中用内存实现替代真实连接
type Sink interface {
	// WriteEvent 把一帧投入发送队列，队列满时丢弃并返回错误
	WriteEvent(data []byte) error
	// Close 关闭写入端，幂等
	Close()
}

// UserConn 一条已通过握手的客户端连接
// 每条连接一对读写 goroutine：读循环在 server 里跑，写循环是 writePump
type UserConn struct {
	ConnID   string
	UserID   string
	DeviceID string

	conn      *websocket.Conn
	sendBack  chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newUserConn(connID, userID, deviceID string, conn *websocket.Conn) *UserConn {
	return &UserConn{
		ConnID:   connID,
		UserID:   userID,
		DeviceID: deviceID,
		conn:     conn,
		sendBack: make(chan []byte, constants.CHANNEL_SIZE),
		done:     make(chan struct{}),
	}
}

// WriteEvent 实现 Sink
// 非阻塞投递：慢消费者的队列满了就丢帧记日志，不能拖住广播方
func (c *UserConn) WriteEvent(data []byte) error {
	if data == nil {
		return nil
	}
	select {
	case <-c.done:
		return websocket.ErrCloseSent
	default:
	}
	select {
	case c.sendBack <- data:
		return nil
	default:
		zap.L().Warn("send buffer full, dropping frame",
			zap.String("conn_id", c.ConnID),
			zap.String("user_id", c.UserID))
		return errSendBufferFull
	}
}

// Close 实现 Sink，触发写循环退出并关闭底层连接
func (c *UserConn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

// writePump 写循环：串行消费发送队列，定期发 ping 保活
// 底层连接同一时刻只允许一个写者，所有写操作都收拢到这里
func (c *UserConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()
	for {
		select {
		case data := <-c.sendBack:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				zap.L().Debug("write frame failed",
					zap.String("conn_id", c.ConnID), zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// errSendBufferFull 发送队列已满
var errSendBufferFull = &bufferFullError{}

type bufferFullError struct{}

func (*bufferFullError) Error() string { return "send buffer full" }
